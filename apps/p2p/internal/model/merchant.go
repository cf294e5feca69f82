package model

import (
	"time"
)

type MerchantLevel string

const (
	LevelNovice       MerchantLevel = "NOVICE"
	LevelIntermediate MerchantLevel = "INTERMEDIATE"
	LevelAdvanced     MerchantLevel = "ADVANCED"
	LevelPro          MerchantLevel = "PRO"
)

type TradeOutcome string

const (
	TradeCompleted TradeOutcome = "completed"
	TradeCancelled TradeOutcome = "cancelled"
	TradeDisputed  TradeOutcome = "disputed"
)

// MerchantStats is the rolling reputation record for one wallet address.
// Rating and level are derived fields: they are recomputed on every recorded
// trade and never written independently.
type MerchantStats struct {
	WalletAddress      string        `json:"wallet_address"`
	TotalTrades        int           `json:"total_trades"`
	CompletedTrades    int           `json:"completed_trades"`
	CancelledTrades    int           `json:"cancelled_trades"`
	DisputedTrades     int           `json:"disputed_trades"`
	CompletionRate     float64       `json:"completion_rate"` // percent
	AvgResponseMinutes float64       `json:"avg_response_minutes"`
	TotalVolume        float64       `json:"total_volume"` // currency units
	TotalTokenVolume   float64       `json:"total_token_volume"`
	Rating             float64       `json:"rating"` // clamped to [1,5] once trades exist
	Level              MerchantLevel `json:"level"`
	LastTradeAt        *time.Time    `json:"last_trade_at,omitempty"`
}

// NewMerchantStats is the lazy zero-state returned for wallets with no
// recorded history.
func NewMerchantStats(wallet string) *MerchantStats {
	return &MerchantStats{
		WalletAddress: wallet,
		Level:         LevelNovice,
	}
}

// TradeRecord is one immutable entry in a wallet's append-only trade log.
type TradeRecord struct {
	ID                 string       `json:"id"`
	WalletAddress      string       `json:"wallet_address"`
	CounterpartyWallet string       `json:"counterparty_wallet"`
	PairID             string       `json:"pair_id"`
	Token              string       `json:"token"`
	Amount             float64      `json:"amount"` // currency units
	TokenAmount        float64      `json:"token_amount"`
	Status             TradeOutcome `json:"status"`
	ResponseMinutes    float64      `json:"response_minutes"`
	CreatedAt          time.Time    `json:"created_at"`
}
