package repository

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/model"
)

// TradeLogCap bounds each wallet's trade log; oldest entries are evicted
// first.
const TradeLogCap = 1000

// MerchantRepository persists reputation state: one stats record plus one
// capped trade log per wallet. Stats are created lazily and never deleted.
type MerchantRepository struct {
	store  kvstore.Store
	locks  *keylock.KeyLock
	logger *zap.Logger
	logCap int
}

func NewMerchantRepository(store kvstore.Store, locks *keylock.KeyLock, logger *zap.Logger) *MerchantRepository {
	return &MerchantRepository{store: store, locks: locks, logger: logger, logCap: TradeLogCap}
}

// SetLogCap overrides the trade log cap. Test hook.
func (r *MerchantRepository) SetLogCap(n int) {
	r.logCap = n
}

// GetStats returns the wallet's stats, or the zero-state default when none
// have been recorded. Unknown wallets are never an error.
func (r *MerchantRepository) GetStats(ctx context.Context, wallet string) (*model.MerchantStats, error) {
	value, err := r.store.Get(ctx, kvstore.StatsKey(wallet))
	if err == kvstore.ErrKeyNotFound {
		return model.NewMerchantStats(wallet), nil
	}
	if err != nil {
		return nil, apperr.Storage("get merchant stats", err)
	}

	var stats model.MerchantStats
	if err := json.Unmarshal([]byte(value), &stats); err != nil {
		return nil, apperr.Storage("decode merchant stats", err)
	}
	return &stats, nil
}

// MutateStats runs a get/modify/put cycle for one wallet's stats under its
// key lock, creating the zero-state record on first touch.
func (r *MerchantRepository) MutateStats(ctx context.Context, wallet string, fn func(*model.MerchantStats) error) (*model.MerchantStats, error) {
	unlock := r.locks.Lock(kvstore.StatsKey(wallet))
	defer unlock()

	stats, err := r.GetStats(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if err := fn(stats); err != nil {
		return nil, err
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return nil, apperr.Storage("encode merchant stats", err)
	}
	if err := r.store.Put(ctx, kvstore.StatsKey(wallet), string(data)); err != nil {
		return nil, apperr.Storage("put merchant stats", err)
	}
	return stats, nil
}

// ListAllStats scans every stats record. Full scan by design; acceptable at
// the leaderboard's target scale.
func (r *MerchantRepository) ListAllStats(ctx context.Context) ([]model.MerchantStats, error) {
	keys, err := r.store.List(ctx, kvstore.StatsPrefix, 0)
	if err != nil {
		return nil, apperr.Storage("list merchant stats", err)
	}

	all := make([]model.MerchantStats, 0, len(keys))
	for _, key := range keys {
		wallet := strings.TrimPrefix(key, kvstore.StatsPrefix)
		stats, err := r.GetStats(ctx, wallet)
		if err != nil {
			return nil, err
		}
		all = append(all, *stats)
	}
	return all, nil
}

// AppendTradeRecord appends to the wallet's trade log, evicting the oldest
// entries beyond the cap. The log is stored as one JSON array value.
func (r *MerchantRepository) AppendTradeRecord(ctx context.Context, rec model.TradeRecord) error {
	key := kvstore.TradeLogKey(rec.WalletAddress)
	unlock := r.locks.Lock(key)
	defer unlock()

	log, err := r.tradeLogLocked(ctx, rec.WalletAddress)
	if err != nil {
		return err
	}

	log = append(log, rec)
	if len(log) > r.logCap {
		log = log[len(log)-r.logCap:]
	}

	data, err := json.Marshal(log)
	if err != nil {
		return apperr.Storage("encode trade log", err)
	}
	if err := r.store.Put(ctx, key, string(data)); err != nil {
		return apperr.Storage("put trade log", err)
	}
	return nil
}

// GetTradeLog returns the wallet's trade log, newest last. Missing logs are
// an empty slice, not an error.
func (r *MerchantRepository) GetTradeLog(ctx context.Context, wallet string) ([]model.TradeRecord, error) {
	unlock := r.locks.Lock(kvstore.TradeLogKey(wallet))
	defer unlock()
	return r.tradeLogLocked(ctx, wallet)
}

func (r *MerchantRepository) tradeLogLocked(ctx context.Context, wallet string) ([]model.TradeRecord, error) {
	value, err := r.store.Get(ctx, kvstore.TradeLogKey(wallet))
	if err == kvstore.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("get trade log", err)
	}

	var log []model.TradeRecord
	if err := json.Unmarshal([]byte(value), &log); err != nil {
		return nil, apperr.Storage("decode trade log", err)
	}
	return log, nil
}
