package repository

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/model"
)

// NotificationRepository persists per-wallet notification queues. Listing is
// best-effort: backend failures degrade to an empty result with a warning
// instead of failing the caller's request.
type NotificationRepository struct {
	store  kvstore.Store
	logger *zap.Logger
}

func NewNotificationRepository(store kvstore.Store, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{store: store, logger: logger}
}

func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return apperr.Storage("encode notification", err)
	}
	key := kvstore.NotificationKey(n.RecipientWallet, n.ID)
	if err := r.store.Put(ctx, key, string(data)); err != nil {
		return apperr.Storage("put notification", err)
	}
	return nil
}

// ListByWallet returns the wallet's notifications, unread first, newest
// first within each group.
func (r *NotificationRepository) ListByWallet(ctx context.Context, wallet string) []model.Notification {
	prefix := kvstore.NotificationWalletPrefix(wallet)
	keys, err := r.store.List(ctx, prefix, 0)
	if err != nil {
		r.logger.Warn("Failed to list notifications, returning empty set",
			zap.String("wallet_address", wallet), zap.Error(err))
		return []model.Notification{}
	}

	notifications := make([]model.Notification, 0, len(keys))
	for _, key := range keys {
		value, err := r.store.Get(ctx, key)
		if err != nil {
			r.logger.Warn("Failed to read notification, skipping",
				zap.String("key", key), zap.Error(err))
			continue
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(value), &n); err != nil {
			r.logger.Warn("Failed to decode notification, skipping",
				zap.String("key", key), zap.Error(err))
			continue
		}
		notifications = append(notifications, n)
	}

	sort.Slice(notifications, func(i, j int) bool {
		if notifications[i].Read != notifications[j].Read {
			return !notifications[i].Read
		}
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications
}

// MarkRead flips one notification's read flag.
func (r *NotificationRepository) MarkRead(ctx context.Context, wallet, id string) error {
	key := kvstore.NotificationKey(wallet, id)
	value, err := r.store.Get(ctx, key)
	if err == kvstore.ErrKeyNotFound {
		return apperr.NotFound("notification", id)
	}
	if err != nil {
		return apperr.Storage("get notification", err)
	}

	var n model.Notification
	if err := json.Unmarshal([]byte(value), &n); err != nil {
		return apperr.Storage("decode notification", err)
	}
	if n.Read {
		return nil
	}
	n.Read = true

	data, err := json.Marshal(&n)
	if err != nil {
		return apperr.Storage("encode notification", err)
	}
	if err := r.store.Put(ctx, key, string(data)); err != nil {
		return apperr.Storage("put notification", err)
	}
	return nil
}
