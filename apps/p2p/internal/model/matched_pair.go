package model

import (
	"time"
)

type PairStatus string

const (
	PairPending           PairStatus = "PENDING"
	PairPaymentConfirmed  PairStatus = "PAYMENT_CONFIRMED"
	PairAssetsTransferred PairStatus = "ASSETS_TRANSFERRED"
	PairCompleted         PairStatus = "COMPLETED"
	PairCancelled         PairStatus = "CANCELLED"
)

// MatchedPair is a committed pairing of exactly one BUY and one SELL order.
// It doubles as the write-ahead intent record for match commits: the pair is
// persisted before either order is flipped to MATCHED, so a crashed commit
// can be retried idempotently.
type MatchedPair struct {
	ID            string     `json:"id"`
	BuyOrderID    string     `json:"buy_order_id"`
	SellOrderID   string     `json:"sell_order_id"`
	BuyerWallet   string     `json:"buyer_wallet"`
	SellerWallet  string     `json:"seller_wallet"`
	Token         string     `json:"token"`
	Amount        float64    `json:"amount"` // currency units
	Price         float64    `json:"price"`  // midpoint of the two order prices
	PaymentMethod string     `json:"payment_method"`
	Status        PairStatus `json:"status"`
	RoomID        string     `json:"room_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TokenAmount converts the currency amount to token units at the agreed price.
func (p *MatchedPair) TokenAmount() float64 {
	if p.Price <= 0 {
		return 0
	}
	return p.Amount / p.Price
}

func (p *MatchedPair) Terminal() bool {
	return p.Status == PairCompleted || p.Status == PairCancelled
}
