package reputation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

func newService(t *testing.T) (*Service, *repository.MerchantRepository) {
	t.Helper()
	merchants := repository.NewMerchantRepository(kvstore.NewMemoryStore(), keylock.New(), zap.NewNop())
	return NewService(merchants, zap.NewNop()), merchants
}

func record(wallet string, status model.TradeOutcome, amount, respMinutes float64) model.TradeRecord {
	return model.TradeRecord{
		WalletAddress:      wallet,
		CounterpartyWallet: "counterparty",
		Token:              "SOL",
		Amount:             amount,
		Status:             status,
		ResponseMinutes:    respMinutes,
	}
}

func TestUnknownWalletGetsZeroState(t *testing.T) {
	svc, _ := newService(t)

	stats, err := svc.GetMerchantStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalTrades)
	assert.Equal(t, model.LevelNovice, stats.Level)
	assert.Nil(t, stats.LastTradeAt)
}

func TestRecordTradeCounters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCompleted, 1000, 4)))
	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCancelled, 0, 0)))
	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeDisputed, 500, 0)))

	stats, err := svc.GetMerchantStats(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 1, stats.CompletedTrades)
	assert.Equal(t, 1, stats.CancelledTrades)
	assert.Equal(t, 1, stats.DisputedTrades)
	assert.InDelta(t, 100.0/3, stats.CompletionRate, 1e-9)
	assert.Equal(t, 1500.0, stats.TotalVolume)
	assert.NotNil(t, stats.LastTradeAt)
}

func TestIncrementalMeanResponseTime(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCompleted, 100, 4)))
	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCompleted, 100, 6)))

	stats, err := svc.GetMerchantStats(ctx, "w")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, stats.AvgResponseMinutes, 1e-9)
}

func TestRatingStaysInBounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// Worst case: everything cancelled. Rating floors at 1.
	for i := 0; i < 20; i++ {
		require.NoError(t, svc.RecordTrade(ctx, record("bad", model.TradeCancelled, 0, 0)))
	}
	stats, err := svc.GetMerchantStats(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats.Rating)

	// Best case: everything completed fast with huge volume. Rating caps at 5.
	for i := 0; i < 20; i++ {
		require.NoError(t, svc.RecordTrade(ctx, record("good", model.TradeCompleted, 100_000, 1)))
	}
	stats, err = svc.GetMerchantStats(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, 5.0, stats.Rating)
	assert.Greater(t, stats.TotalVolume, float64(VolumeBonusThreshold))
}

func TestDisputePenalty(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCompleted, 100, 10)))
	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeDisputed, 100, 10)))

	stats, err := svc.GetMerchantStats(ctx, "w")
	require.NoError(t, err)
	// 50% completion -> 2.5 stars, minus 0.5 dispute penalty, no bonuses
	// (avg response is 10 minutes).
	assert.InDelta(t, 2.0, stats.Rating, 1e-9)
}

func TestLevelThresholds(t *testing.T) {
	tests := []struct {
		total int
		rate  float64
		want  model.MerchantLevel
	}{
		{0, 0, model.LevelNovice},
		{9, 100, model.LevelNovice},
		{10, 94.9, model.LevelNovice},
		{10, 95, model.LevelIntermediate},
		{49, 100, model.LevelIntermediate},
		{50, 97.9, model.LevelIntermediate},
		{50, 98, model.LevelAdvanced},
		{199, 100, model.LevelAdvanced},
		{200, 98.9, model.LevelAdvanced},
		{200, 99, model.LevelPro},
		{1000, 100, model.LevelPro},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%.1f", tt.total, tt.rate), func(t *testing.T) {
			assert.Equal(t, tt.want, computeLevel(tt.total, tt.rate))
		})
	}
}

func TestLevelRecomputedOnEveryTrade(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCompleted, 100, 1)))
	}
	stats, err := svc.GetMerchantStats(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, model.LevelNovice, stats.Level)

	require.NoError(t, svc.RecordTrade(ctx, record("w", model.TradeCompleted, 100, 1)))
	stats, err = svc.GetMerchantStats(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, model.LevelIntermediate, stats.Level)
}

func TestTradeLogIsCapped(t *testing.T) {
	svc, merchants := newService(t)
	merchants.SetLogCap(5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		rec := record("w", model.TradeCompleted, float64(i), 1)
		rec.PairID = fmt.Sprintf("pair-%d", i)
		require.NoError(t, svc.RecordTrade(ctx, rec))
	}

	log, err := svc.GetTradeLog(ctx, "w")
	require.NoError(t, err)
	require.Len(t, log, 5)
	// Oldest entries were evicted first.
	assert.Equal(t, "pair-3", log[0].PairID)
	assert.Equal(t, "pair-7", log[4].PairID)
}

func TestGetTopMerchants(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordTrade(ctx, record("low", model.TradeCancelled, 0, 0)))
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.RecordTrade(ctx, record("high", model.TradeCompleted, 100, 1)))
	}

	top, err := svc.GetTopMerchants(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].WalletAddress)

	top, err = svc.GetTopMerchants(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
}
