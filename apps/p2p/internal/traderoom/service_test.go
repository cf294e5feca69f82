package traderoom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/matching"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/notifier"
	"p2p/apps/p2p/internal/repository"
	"p2p/apps/p2p/internal/reputation"
)

type fixture struct {
	orders     *repository.OrderRepository
	pairs      *repository.PairRepository
	rooms      *repository.RoomRepository
	reputation *reputation.Service
	service    *Service

	room  *model.TradeRoom
	pair  *model.MatchedPair
	clock time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// newFixture builds a committed match with an open trade room between
// "buyer" and "seller". All components share the fixture clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := kvstore.NewMemoryStore()
	locks := keylock.New()

	f := &fixture{clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.clock }

	orders := repository.NewOrderRepository(store, locks, repository.DefaultOrderTTL, logger)
	orders.SetClock(clock)
	pairs := repository.NewPairRepository(store, locks, logger)
	rooms := repository.NewRoomRepository(store, locks, logger)
	merchants := repository.NewMerchantRepository(store, locks, logger)
	dispatcher := notifier.NewDispatcher(repository.NewNotificationRepository(store, logger), logger)
	rep := reputation.NewService(merchants, logger)
	engine := matching.NewEngine(orders, pairs, rooms, dispatcher, matching.DefaultMaxDeviationPercent, logger)
	engine.SetClock(clock)
	service := NewService(rooms, pairs, orders, rep, dispatcher, logger)
	service.SetClock(clock)

	ctx := context.Background()
	buy, err := orders.CreateOrder(ctx, repository.CreateOrderSpec{
		Side: model.SideBuy, Token: "SOL", WalletAddress: "buyer",
		Price: 100, MinAmount: 100, MaxAmount: 500, PaymentMethod: "bank",
	})
	require.NoError(t, err)
	sell, err := orders.CreateOrder(ctx, repository.CreateOrderSpec{
		Side: model.SideSell, Token: "SOL", WalletAddress: "seller",
		Price: 101, MinAmount: 100, MaxAmount: 500, PaymentMethod: "bank",
	})
	require.NoError(t, err)

	pair, room, err := engine.CommitMatch(ctx, buy.ID, sell.ID)
	require.NoError(t, err)

	f.orders = orders
	f.pairs = pairs
	f.rooms = rooms
	f.reputation = rep
	f.service = service
	f.room = room
	f.pair = pair
	return f
}

func TestConfirmPaymentSingleParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	require.NoError(t, err)
	assert.True(t, room.BuyerPaymentConfirmed)
	assert.NotNil(t, room.BuyerConfirmedAt)
	assert.False(t, room.SellerPaymentConfirmed)
	assert.Equal(t, model.RoomPending, room.Status)
}

func TestConfirmPaymentRejectsStrangers(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ConfirmPayment(context.Background(), f.room.ID, "stranger")
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	require.NoError(t, err)

	second, err := f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.BuyerConfirmedAt, second.BuyerConfirmedAt)
	assert.Equal(t, model.RoomPending, second.Status)
}

func TestBothConfirmationsAdvanceRoomAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	require.NoError(t, err)

	room, err := f.service.ConfirmPayment(ctx, f.room.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, model.RoomPaymentConfirmed, room.Status)

	// Room and backing entities must agree about payment-confirmed status.
	pair, err := f.pairs.GetPair(ctx, f.pair.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PairPaymentConfirmed, pair.Status)

	for _, orderID := range []string{f.room.BuyOrderID, f.room.SellOrderID} {
		order, err := f.orders.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderPaymentConfirmed, order.Status)
	}

	// Re-confirming after the advance stays a no-op.
	again, err := f.service.ConfirmPayment(ctx, f.room.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, model.RoomPaymentConfirmed, again.Status)
}

func TestLateConfirmationsKeepOrdersCoherent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Bank transfers routinely outlive the order TTL. Confirmations landing
	// after the window must still advance the backing orders with the room
	// instead of letting them lapse to EXPIRED underneath it.
	f.advance(20 * time.Minute)

	_, err := f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	require.NoError(t, err)
	room, err := f.service.ConfirmPayment(ctx, f.room.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, model.RoomPaymentConfirmed, room.Status)

	for _, orderID := range []string{f.room.BuyOrderID, f.room.SellOrderID} {
		order, err := f.orders.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderPaymentConfirmed, order.Status)
	}
}

func TestSettlementFlowToCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Assets cannot move before payment is confirmed by both sides.
	_, err := f.service.MarkAssetsTransferred(ctx, f.room.ID)
	assert.True(t, apperr.IsConflict(err))

	_, err = f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	require.NoError(t, err)
	_, err = f.service.ConfirmPayment(ctx, f.room.ID, "seller")
	require.NoError(t, err)

	// Completion requires assets_transferred first.
	_, err = f.service.Complete(ctx, f.room.ID)
	assert.True(t, apperr.IsConflict(err))

	room, err := f.service.MarkAssetsTransferred(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomAssetsTransferred, room.Status)

	room, err = f.service.Complete(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomCompleted, room.Status)

	for _, orderID := range []string{f.room.BuyOrderID, f.room.SellOrderID} {
		order, err := f.orders.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderCompleted, order.Status)
	}

	// The terminal outcome feeds both parties' reputation.
	for _, wallet := range []string{"buyer", "seller"} {
		stats, err := f.reputation.GetMerchantStats(ctx, wallet)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalTrades)
		assert.Equal(t, 1, stats.CompletedTrades)
		assert.Equal(t, f.pair.Amount, stats.TotalVolume)
	}
}

func TestCancelRestoresOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.service.Cancel(ctx, f.room.ID, "seller", false)
	require.NoError(t, err)
	assert.Equal(t, model.RoomCancelled, room.Status)

	pair, err := f.pairs.GetPair(ctx, f.pair.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PairCancelled, pair.Status)

	for _, orderID := range []string{f.room.BuyOrderID, f.room.SellOrderID} {
		order, err := f.orders.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderPending, order.Status)
		assert.Empty(t, order.MatchedWith)
	}

	stats, err := f.reputation.GetMerchantStats(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CancelledTrades)

	// Terminal rooms reject further mutations.
	_, err = f.service.Cancel(ctx, f.room.ID, "seller", false)
	assert.True(t, apperr.IsConflict(err))
	_, err = f.service.ConfirmPayment(ctx, f.room.ID, "buyer")
	assert.True(t, apperr.IsConflict(err))
}

func TestDisputedCancelMarksOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Cancel(ctx, f.room.ID, "buyer", true)
	require.NoError(t, err)

	for _, orderID := range []string{f.room.BuyOrderID, f.room.SellOrderID} {
		order, err := f.orders.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderDisputed, order.Status)
	}

	stats, err := f.reputation.GetMerchantStats(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DisputedTrades)
}

func TestCancelRejectsStrangers(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Cancel(context.Background(), f.room.ID, "stranger", false)
	assert.True(t, apperr.IsUnauthorized(err))
}
