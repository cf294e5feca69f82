package api

// CreateOrderRequest is the order creation input consumed from the wallet UI.
type CreateOrderRequest struct {
	Side          string  `json:"side"`
	Token         string  `json:"token"`
	WalletAddress string  `json:"wallet_address"`
	Price         float64 `json:"price"`
	MinAmount     float64 `json:"min_amount"`
	MaxAmount     float64 `json:"max_amount"`
	PaymentMethod string  `json:"payment_method"`
}

// UpdateOrderRequest carries owner edits to a still-pending order. Nil
// fields are left untouched.
type UpdateOrderRequest struct {
	Price         *float64 `json:"price,omitempty"`
	MinAmount     *float64 `json:"min_amount,omitempty"`
	MaxAmount     *float64 `json:"max_amount,omitempty"`
	PaymentMethod *string  `json:"payment_method,omitempty"`
}

// CommitMatchRequest commits one buy/sell pairing.
type CommitMatchRequest struct {
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
}

// RoomActionRequest identifies the acting party for room mutations.
type RoomActionRequest struct {
	WalletAddress string `json:"wallet_address"`
	Disputed      bool   `json:"disputed,omitempty"`
}

// ErrorResponse is the error body shape shared by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
