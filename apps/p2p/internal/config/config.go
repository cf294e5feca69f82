package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort              int
	KVBackend            string // memory | pebble | postgres
	PebblePath           string
	DbURL                string
	KafkaBroker          string
	KafkaTopic           string
	BroadcastEnabled     bool
	OrderTTLMinutes      int
	MaxPriceDeviationPct float64
}

// NewConfig loads configuration from environment variables
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:              getEnvInt("API_PORT", 8080),
		KVBackend:            getEnv("KV_BACKEND", "memory"),
		PebblePath:           getEnv("PEBBLE_PATH", "data/p2p"),
		DbURL:                os.Getenv("DB_URL"),
		KafkaBroker:          os.Getenv("KAFKA_BROKER"),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "p2p-trade-events"),
		BroadcastEnabled:     getEnvBool("BROADCAST_ENABLED", false),
		OrderTTLMinutes:      getEnvInt("ORDER_TTL_MINUTES", 15),
		MaxPriceDeviationPct: getEnvFloat("MAX_PRICE_DEVIATION_PCT", 2.0),
	}

	if cfg.KVBackend == "postgres" && cfg.DbURL == "" {
		log.Fatalf("environment variable DB_URL is required when KV_BACKEND=postgres")
	}
	if cfg.BroadcastEnabled && cfg.KafkaBroker == "" {
		log.Fatalf("environment variable KAFKA_BROKER is required when BROADCAST_ENABLED=true")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
