package model

import (
	"encoding/json"
	"time"
)

// Notification is one delivered state-change event for a wallet. Read-state
// tracking lives here, not in the core trade flow.
type Notification struct {
	ID              string          `json:"id"`
	RecipientWallet string          `json:"recipient_wallet"`
	SenderWallet    string          `json:"sender_wallet"`
	Type            string          `json:"type"`
	OrderID         string          `json:"order_id"`
	OrderData       json.RawMessage `json:"order_data,omitempty"`
	Read            bool            `json:"read"`
	CreatedAt       time.Time       `json:"created_at"`
}
