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

// RoomRepository persists TradeRoom records.
type RoomRepository struct {
	store  kvstore.Store
	locks  *keylock.KeyLock
	logger *zap.Logger
	now    func() time.Time
}

func NewRoomRepository(store kvstore.Store, locks *keylock.KeyLock, logger *zap.Logger) *RoomRepository {
	return &RoomRepository{store: store, locks: locks, logger: logger, now: time.Now}
}

func (r *RoomRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *RoomRepository) CreateRoom(ctx context.Context, room *model.TradeRoom) error {
	if err := r.put(ctx, room); err != nil {
		return err
	}
	r.logger.Info("Created trade room",
		zap.String("room_id", room.ID),
		zap.String("pair_id", room.PairID),
		zap.String("buyer_wallet", room.BuyerWallet),
		zap.String("seller_wallet", room.SellerWallet))
	return nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, id string) (*model.TradeRoom, error) {
	value, err := r.store.Get(ctx, kvstore.RoomKey(id))
	if err == kvstore.ErrKeyNotFound {
		return nil, apperr.NotFound("trade room", id)
	}
	if err != nil {
		return nil, apperr.Storage("get room", err)
	}

	var room model.TradeRoom
	if err := json.Unmarshal([]byte(value), &room); err != nil {
		return nil, apperr.Storage("decode room", err)
	}
	return &room, nil
}

// Mutate runs a get/modify/put cycle for one room under its key lock. Two
// concurrent confirmations for the same room serialize here.
func (r *RoomRepository) Mutate(ctx context.Context, id string, fn func(*model.TradeRoom) error) (*model.TradeRoom, error) {
	unlock := r.locks.Lock(kvstore.RoomKey(id))
	defer unlock()

	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(room); err != nil {
		return nil, err
	}

	room.UpdatedAt = r.now()
	if err := r.put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepository) put(ctx context.Context, room *model.TradeRoom) error {
	data, err := json.Marshal(room)
	if err != nil {
		return apperr.Storage("encode room", err)
	}
	if err := r.store.Put(ctx, kvstore.RoomKey(room.ID), string(data)); err != nil {
		return apperr.Storage("put room", err)
	}
	return nil
}
