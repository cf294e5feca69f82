package events

import (
	"encoding/json"
	"time"
)

// Event types emitted by the core trade flow.
const (
	TypeOpenIntent        = "open_intent"
	TypeMatchCommitted    = "match_committed"
	TypePaymentConfirmed  = "payment_confirmed"
	TypeAssetsTransferred = "assets_transferred"
	TypeTradeCompleted    = "trade_completed"
	TypeTradeCancelled    = "trade_cancelled"
)

// TradeEvent is the fan-out payload sent to counterparties on order creation,
// match commit, and room state transitions. Delivery tracking is the
// dispatcher's concern; the core fires and forgets.
type TradeEvent struct {
	Type            string          `json:"type"`
	RecipientWallet string          `json:"recipient_wallet"`
	SenderWallet    string          `json:"sender_wallet"`
	OrderID         string          `json:"order_id"`
	OrderData       json.RawMessage `json:"order_data,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}
