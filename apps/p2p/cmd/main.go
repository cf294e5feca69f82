package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/api"
	"p2p/apps/p2p/internal/config"
	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/matching"
	"p2p/apps/p2p/internal/notifier"
	"p2p/apps/p2p/internal/repository"
	"p2p/apps/p2p/internal/reputation"
	"p2p/apps/p2p/internal/traderoom"
)

func main() {
	// Initialize zap logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	// Load configuration from environment variables
	cfg := config.NewConfig()

	logger.Info("Starting application with configuration",
		zap.Int("api_port", cfg.APIPort),
		zap.String("kv_backend", cfg.KVBackend),
		zap.Bool("broadcast_enabled", cfg.BroadcastEnabled),
		zap.Int("order_ttl_minutes", cfg.OrderTTLMinutes),
		zap.Float64("max_price_deviation_pct", cfg.MaxPriceDeviationPct),
	)

	// Select the KV backend
	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open KV backend", zap.Error(err))
	}
	defer closeStore()

	locks := keylock.New()
	orderRepository := repository.NewOrderRepository(store, locks, time.Duration(cfg.OrderTTLMinutes)*time.Minute, logger)
	pairRepository := repository.NewPairRepository(store, locks, logger)
	roomRepository := repository.NewRoomRepository(store, locks, logger)
	merchantRepository := repository.NewMerchantRepository(store, locks, logger)
	notificationRepository := repository.NewNotificationRepository(store, logger)

	// Create the notification dispatcher, with the Kafka broadcast sink when
	// enabled
	var dispatcher *notifier.Dispatcher
	if cfg.BroadcastEnabled {
		dispatcher, err = notifier.NewDispatcherWithBroadcast(notificationRepository, cfg.KafkaBroker, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal("Failed to create notification dispatcher", zap.Error(err))
		}
	} else {
		dispatcher = notifier.NewDispatcher(notificationRepository, logger)
	}
	defer dispatcher.Close()

	reputationService := reputation.NewService(merchantRepository, logger)
	engine := matching.NewEngine(orderRepository, pairRepository, roomRepository, dispatcher, cfg.MaxPriceDeviationPct, logger)
	roomService := traderoom.NewService(roomRepository, pairRepository, orderRepository, reputationService, dispatcher, logger)

	// Create and start API server
	apiServer := api.NewServer(cfg.APIPort,
		api.NewOrderHandler(orderRepository, engine, dispatcher, logger),
		api.NewMatchHandler(engine, pairRepository, logger),
		api.NewRoomHandler(roomService, logger),
		api.NewMerchantHandler(reputationService, logger),
		api.NewNotificationHandler(notificationRepository, logger),
		logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Stop(ctx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Application shutdown complete")
}

// openStore builds the configured KV backend and returns it with its close
// func.
func openStore(cfg *config.Config) (kvstore.Store, func(), error) {
	switch cfg.KVBackend {
	case "pebble":
		store, err := kvstore.NewPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DbURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := kvstore.NewPostgresStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	default:
		return kvstore.NewMemoryStore(), func() {}, nil
	}
}
