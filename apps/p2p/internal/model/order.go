package model

import (
	"time"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	OrderPending          OrderStatus = "PENDING"
	OrderMatched          OrderStatus = "MATCHED"
	OrderPaymentConfirmed OrderStatus = "PAYMENT_CONFIRMED"
	OrderCompleted        OrderStatus = "COMPLETED"
	OrderCancelled        OrderStatus = "CANCELLED"
	OrderDisputed         OrderStatus = "DISPUTED"
	OrderExpired          OrderStatus = "EXPIRED"
)

// Order is a standing intent to buy or sell a token at a
// local-currency-denominated price. Amount bounds are in currency units.
type Order struct {
	ID            string      `json:"id"`
	Side          OrderSide   `json:"side"`
	Token         string      `json:"token"`
	WalletAddress string      `json:"wallet_address"`
	Price         float64     `json:"price"`
	MinAmount     float64     `json:"min_amount"`
	MaxAmount     float64     `json:"max_amount"`
	PaymentMethod string      `json:"payment_method"`
	Status        OrderStatus `json:"status"`
	MatchedWith   string      `json:"matched_with,omitempty"` // pair id while MATCHED
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// ExpiredAt reports whether the order's TTL has elapsed at the given
// instant. Only unclaimed orders expire: once a pair claims the order the
// settlement handshake owns its lifecycle, however long the bank transfer
// takes.
func (o *Order) ExpiredAt(now time.Time) bool {
	if o.Status == OrderMatched && o.MatchedWith != "" {
		return false
	}
	if o.Status != OrderPending && o.Status != OrderMatched {
		return false
	}
	return now.After(o.ExpiresAt)
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderCompleted, OrderCancelled, OrderDisputed, OrderExpired:
		return true
	}
	return false
}
