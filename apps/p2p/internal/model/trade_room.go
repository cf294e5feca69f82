package model

import (
	"time"
)

type RoomStatus string

const (
	RoomPending           RoomStatus = "pending"
	RoomPaymentConfirmed  RoomStatus = "payment_confirmed"
	RoomAssetsTransferred RoomStatus = "assets_transferred"
	RoomCompleted         RoomStatus = "completed"
	RoomCancelled         RoomStatus = "cancelled"
)

// TradeRoom is the bilateral confirmation channel bound 1:1 to a MatchedPair.
// The room only advances to payment_confirmed once both parties have set
// their confirmation flag.
type TradeRoom struct {
	ID           string     `json:"id"`
	PairID       string     `json:"pair_id"`
	BuyOrderID   string     `json:"buy_order_id"`
	SellOrderID  string     `json:"sell_order_id"`
	BuyerWallet  string     `json:"buyer_wallet"`
	SellerWallet string     `json:"seller_wallet"`
	Status       RoomStatus `json:"status"`

	BuyerPaymentConfirmed  bool       `json:"buyer_payment_confirmed"`
	SellerPaymentConfirmed bool       `json:"seller_payment_confirmed"`
	BuyerConfirmedAt       *time.Time `json:"buyer_confirmed_at,omitempty"`
	SellerConfirmedAt      *time.Time `json:"seller_confirmed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *TradeRoom) Terminal() bool {
	return r.Status == RoomCompleted || r.Status == RoomCancelled
}

// PartyOf maps a wallet address to its role in the room. ok is false when the
// wallet is not a party.
func (r *TradeRoom) PartyOf(wallet string) (buyer bool, ok bool) {
	switch wallet {
	case r.BuyerWallet:
		return true, true
	case r.SellerWallet:
		return false, true
	}
	return false, false
}
