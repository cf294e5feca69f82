package matching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/notifier"
	"p2p/apps/p2p/internal/repository"
)

type fixture struct {
	orders *repository.OrderRepository
	pairs  *repository.PairRepository
	rooms  *repository.RoomRepository
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := kvstore.NewMemoryStore()
	locks := keylock.New()

	orders := repository.NewOrderRepository(store, locks, repository.DefaultOrderTTL, logger)
	pairs := repository.NewPairRepository(store, locks, logger)
	rooms := repository.NewRoomRepository(store, locks, logger)
	dispatcher := notifier.NewDispatcher(repository.NewNotificationRepository(store, logger), logger)
	engine := NewEngine(orders, pairs, rooms, dispatcher, DefaultMaxDeviationPercent, logger)

	return &fixture{orders: orders, pairs: pairs, rooms: rooms, engine: engine}
}

func (f *fixture) createOrder(t *testing.T, side model.OrderSide, wallet string, price, min, max float64) *model.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), repository.CreateOrderSpec{
		Side:          side,
		Token:         "SOL",
		WalletAddress: wallet,
		Price:         price,
		MinAmount:     min,
		MaxAmount:     max,
		PaymentMethod: "bank",
	})
	require.NoError(t, err)
	return order
}

func TestAmountOverlap(t *testing.T) {
	tests := []struct {
		name           string
		b1, b2, s1, s2 float64
		wantOK         bool
		wantAmount     float64
	}{
		{"identical ranges", 100, 500, 100, 500, true, 500},
		{"buyer ceiling lower", 100, 300, 100, 500, true, 300},
		{"seller ceiling lower", 100, 500, 100, 300, true, 300},
		{"touching at one point", 100, 200, 200, 400, true, 200},
		{"disjoint", 100, 200, 300, 400, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok := amountOverlap(tt.b1, tt.b2, tt.s1, tt.s2)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantAmount, amount)
				// The trade amount always lies within both ranges.
				assert.GreaterOrEqual(t, amount, tt.b1)
				assert.LessOrEqual(t, amount, tt.b2)
				assert.GreaterOrEqual(t, amount, tt.s1)
				assert.LessOrEqual(t, amount, tt.s2)
			}
		})
	}
}

func TestPriceDeviationIsAsymmetric(t *testing.T) {
	// Ask below or at the bid is always compatible.
	_, ok := priceDeviation(100, 90, 2)
	assert.True(t, ok)
	_, ok = priceDeviation(100, 100, 2)
	assert.True(t, ok)

	// Exactly at the band boundary is compatible (<=, not <).
	diff, ok := priceDeviation(100, 102, 2)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, diff, 1e-9)

	// Beyond the band is never compatible.
	_, ok = priceDeviation(100, 102.01, 2)
	assert.False(t, ok)
}

func TestFindMatchesExcludesSelfTrades(t *testing.T) {
	f := newFixture(t)
	buy := f.createOrder(t, model.SideBuy, "wallet-a", 100, 100, 500)
	f.createOrder(t, model.SideSell, "wallet-a", 100, 100, 500)

	candidates, err := f.engine.FindMatches(context.Background(), buy.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindMatchesFiltersPaymentMethod(t *testing.T) {
	f := newFixture(t)
	buy := f.createOrder(t, model.SideBuy, "wallet-a", 100, 100, 500)

	sell, err := f.orders.CreateOrder(context.Background(), repository.CreateOrderSpec{
		Side:          model.SideSell,
		Token:         "SOL",
		WalletAddress: "wallet-b",
		Price:         100,
		MinAmount:     100,
		MaxAmount:     500,
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	candidates, err := f.engine.FindMatches(context.Background(), buy.ID)
	require.NoError(t, err)
	assert.Empty(t, candidates, "different payment method must not match (sell %s)", sell.ID)
}

func TestFindMatchesRanksAndCaps(t *testing.T) {
	f := newFixture(t)
	buy := f.createOrder(t, model.SideBuy, "buyer", 100, 100, 500)

	// Seven compatible sellers at increasing asks; tighter prices score
	// higher.
	for i := 0; i < 7; i++ {
		price := 100 + float64(i)*0.25
		f.createOrder(t, model.SideSell, fmt.Sprintf("seller-%d", i), price, 100, 500)
	}

	candidates, err := f.engine.FindMatches(context.Background(), buy.ID)
	require.NoError(t, err)
	require.Len(t, candidates, MaxCandidates)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
	assert.Equal(t, 100.0, candidates[0].Order.Price)
}

func TestEndToEndMatchScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy := f.createOrder(t, model.SideBuy, "buyer", 100, 100, 500)
	sell := f.createOrder(t, model.SideSell, "seller", 101, 100, 500)

	candidates, err := f.engine.FindMatches(ctx, buy.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 500.0, candidates[0].TradeAmount)
	assert.Equal(t, 100.5, candidates[0].MatchPrice)

	pair, room, err := f.engine.CommitMatch(ctx, buy.ID, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PairPending, pair.Status)
	assert.Equal(t, model.RoomPending, room.Status)
	assert.Equal(t, 500.0, pair.Amount)
	assert.Equal(t, 100.5, pair.Price)

	gotBuy, err := f.orders.GetOrder(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderMatched, gotBuy.Status)
	assert.Equal(t, pair.ID, gotBuy.MatchedWith)

	gotSell, err := f.orders.GetOrder(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderMatched, gotSell.Status)
}

func TestCommitMatchRejectsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy := f.createOrder(t, model.SideBuy, "buyer", 100, 100, 500)
	sell := f.createOrder(t, model.SideSell, "seller", 101, 100, 500)
	other := f.createOrder(t, model.SideSell, "other-seller", 100, 100, 500)

	_, _, err := f.engine.CommitMatch(ctx, buy.ID, buy.ID)
	assert.True(t, apperr.IsValidation(err))

	_, _, err = f.engine.CommitMatch(ctx, buy.ID, sell.ID)
	require.NoError(t, err)

	// The buy order is claimed; a second pairing must be rejected.
	_, _, err = f.engine.CommitMatch(ctx, buy.ID, other.ID)
	assert.True(t, apperr.IsConflict(err))
}

func TestCommitMatchIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy := f.createOrder(t, model.SideBuy, "buyer", 100, 100, 500)
	sell := f.createOrder(t, model.SideSell, "seller", 101, 100, 500)

	pair1, room1, err := f.engine.CommitMatch(ctx, buy.ID, sell.ID)
	require.NoError(t, err)

	pair2, room2, err := f.engine.CommitMatch(ctx, buy.ID, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, pair1.ID, pair2.ID)
	assert.Equal(t, room1.ID, room2.ID)
}

func TestCancelMatchRestoresOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy := f.createOrder(t, model.SideBuy, "buyer", 100, 100, 500)
	sell := f.createOrder(t, model.SideSell, "seller", 101, 100, 500)

	pair, room, err := f.engine.CommitMatch(ctx, buy.ID, sell.ID)
	require.NoError(t, err)

	cancelled, err := f.engine.CancelMatch(ctx, pair.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PairCancelled, cancelled.Status)

	gotBuy, err := f.orders.GetOrder(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, gotBuy.Status)
	assert.Empty(t, gotBuy.MatchedWith)

	gotRoom, err := f.rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomCancelled, gotRoom.Status)
}

func TestExpiredOrdersNeverMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	f.orders.SetClock(func() time.Time { return now })

	buy := f.createOrder(t, model.SideBuy, "buyer", 100, 100, 500)
	f.createOrder(t, model.SideSell, "seller", 100, 100, 500)

	now = start.Add(20 * time.Minute)
	_, err := f.engine.FindMatches(ctx, buy.ID)
	assert.True(t, apperr.IsConflict(err), "expired subject cannot be matched")
}
