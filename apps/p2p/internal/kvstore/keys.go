package kvstore

// Key namespaces. Orders use the plain colon convention; the settlement and
// reputation records keep the p2p_ prefix family so all trading state can be
// listed with a single prefix scan per concern.
const (
	OrderPrefix        = "orders:"
	PairPrefix         = "p2p_matched_"
	RoomPrefix         = "p2p_trade_room_"
	StatsPrefix        = "p2p_merchant_stats_"
	TradeLogPrefix     = "p2p_trade_log_"
	NotificationPrefix = "p2p_notifications_"
)

func OrderKey(id string) string { return OrderPrefix + id }

func PairKey(id string) string { return PairPrefix + id }

func RoomKey(id string) string { return RoomPrefix + id }

func StatsKey(wallet string) string { return StatsPrefix + wallet }

func TradeLogKey(wallet string) string { return TradeLogPrefix + wallet }

// NotificationWalletPrefix scopes a prefix scan to one recipient wallet.
func NotificationWalletPrefix(wallet string) string {
	return NotificationPrefix + wallet + "_"
}

func NotificationKey(wallet, id string) string {
	return NotificationWalletPrefix(wallet) + id
}
