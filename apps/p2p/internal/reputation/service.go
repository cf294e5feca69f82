// Package reputation derives rolling trust metrics per wallet from trade
// outcomes. Rating and level are pure functions of the counters and are
// recomputed on every recorded trade.
package reputation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

// VolumeBonusThreshold is the lifetime currency volume above which a
// merchant earns a rating bonus.
const VolumeBonusThreshold = 1_000_000

type Service struct {
	merchants *repository.MerchantRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(merchants *repository.MerchantRepository, logger *zap.Logger) *Service {
	return &Service{merchants: merchants, logger: logger, now: time.Now}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetMerchantStats returns the wallet's stats; unknown wallets get the
// zero-state default, never an error.
func (s *Service) GetMerchantStats(ctx context.Context, wallet string) (*model.MerchantStats, error) {
	return s.merchants.GetStats(ctx, wallet)
}

// GetTradeLog returns the wallet's capped trade history.
func (s *Service) GetTradeLog(ctx context.Context, wallet string) ([]model.TradeRecord, error) {
	return s.merchants.GetTradeLog(ctx, wallet)
}

// RecordTrade appends the record to the wallet's trade log and folds its
// outcome into the stats record.
func (s *Service) RecordTrade(ctx context.Context, rec model.TradeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	if err := s.merchants.AppendTradeRecord(ctx, rec); err != nil {
		return err
	}

	stats, err := s.merchants.MutateStats(ctx, rec.WalletAddress, func(m *model.MerchantStats) error {
		m.TotalTrades++
		switch rec.Status {
		case model.TradeCompleted:
			m.CompletedTrades++
		case model.TradeCancelled:
			m.CancelledTrades++
		case model.TradeDisputed:
			m.DisputedTrades++
		}

		m.CompletionRate = float64(m.CompletedTrades) / float64(m.TotalTrades) * 100

		// Incremental mean over all recorded trades.
		n := float64(m.TotalTrades)
		m.AvgResponseMinutes = (m.AvgResponseMinutes*(n-1) + rec.ResponseMinutes) / n

		m.TotalVolume += rec.Amount
		m.TotalTokenVolume += rec.TokenAmount

		m.Rating = computeRating(m)
		m.Level = computeLevel(m.TotalTrades, m.CompletionRate)

		at := rec.CreatedAt
		m.LastTradeAt = &at
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recorded trade",
		zap.String("wallet_address", rec.WalletAddress),
		zap.String("status", string(rec.Status)),
		zap.Int("total_trades", stats.TotalTrades),
		zap.Float64("rating", stats.Rating),
		zap.String("level", string(stats.Level)))
	return nil
}

// GetTopMerchants returns the highest-rated merchants, rating descending.
// Full scan of the stats namespace; fine at leaderboard scale.
func (s *Service) GetTopMerchants(ctx context.Context, limit int) ([]model.MerchantStats, error) {
	all, err := s.merchants.ListAllStats(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Rating > all[j].Rating
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// computeRating derives the 1-5 star rating: completion rate scaled to five
// stars, a dispute penalty of up to one star, and half-star bonuses for
// high lifetime volume and fast responses.
func computeRating(m *model.MerchantStats) float64 {
	rating := m.CompletionRate / 100 * 5

	if m.TotalTrades > 0 {
		rating -= float64(m.DisputedTrades) / float64(m.TotalTrades)
	}
	if m.TotalVolume > VolumeBonusThreshold {
		rating += 0.5
	}
	if m.AvgResponseMinutes < 5 {
		rating += 0.5
	}

	if rating < 1 {
		return 1
	}
	if rating > 5 {
		return 5
	}
	return rating
}

// computeLevel maps (totalTrades, completionRate) to a merchant tier. First
// matching rule wins.
func computeLevel(totalTrades int, completionRate float64) model.MerchantLevel {
	switch {
	case totalTrades < 10 || completionRate < 95:
		return model.LevelNovice
	case totalTrades < 50 || completionRate < 98:
		return model.LevelIntermediate
	case totalTrades < 200 || completionRate < 99:
		return model.LevelAdvanced
	default:
		return model.LevelPro
	}
}
