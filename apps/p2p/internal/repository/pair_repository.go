package repository

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/model"
)

// PairRepository persists committed MatchedPair records.
type PairRepository struct {
	store  kvstore.Store
	locks  *keylock.KeyLock
	logger *zap.Logger
	now    func() time.Time
}

func NewPairRepository(store kvstore.Store, locks *keylock.KeyLock, logger *zap.Logger) *PairRepository {
	return &PairRepository{store: store, locks: locks, logger: logger, now: time.Now}
}

func (r *PairRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *PairRepository) CreatePair(ctx context.Context, pair *model.MatchedPair) error {
	if err := r.put(ctx, pair); err != nil {
		return err
	}
	r.logger.Info("Created matched pair",
		zap.String("pair_id", pair.ID),
		zap.String("buy_order_id", pair.BuyOrderID),
		zap.String("sell_order_id", pair.SellOrderID),
		zap.Float64("amount", pair.Amount),
		zap.Float64("price", pair.Price))
	return nil
}

func (r *PairRepository) GetPair(ctx context.Context, id string) (*model.MatchedPair, error) {
	value, err := r.store.Get(ctx, kvstore.PairKey(id))
	if err == kvstore.ErrKeyNotFound {
		return nil, apperr.NotFound("matched pair", id)
	}
	if err != nil {
		return nil, apperr.Storage("get pair", err)
	}

	var pair model.MatchedPair
	if err := json.Unmarshal([]byte(value), &pair); err != nil {
		return nil, apperr.Storage("decode pair", err)
	}
	return &pair, nil
}

// Mutate runs a get/modify/put cycle for one pair under its key lock.
func (r *PairRepository) Mutate(ctx context.Context, id string, fn func(*model.MatchedPair) error) (*model.MatchedPair, error) {
	unlock := r.locks.Lock(kvstore.PairKey(id))
	defer unlock()

	pair, err := r.GetPair(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(pair); err != nil {
		return nil, err
	}

	pair.UpdatedAt = r.now()
	if err := r.put(ctx, pair); err != nil {
		return nil, err
	}
	return pair, nil
}

func (r *PairRepository) put(ctx context.Context, pair *model.MatchedPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return apperr.Storage("encode pair", err)
	}
	if err := r.store.Put(ctx, kvstore.PairKey(pair.ID), string(data)); err != nil {
		return apperr.Storage("put pair", err)
	}
	return nil
}
