package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/keylock"
	"p2p/apps/p2p/internal/kvstore"
	"p2p/apps/p2p/internal/model"
)

// DefaultOrderTTL is the fixed expiry window assigned at order creation.
const DefaultOrderTTL = 15 * time.Minute

// OrderRepository owns the order book: creation, lazy expiry, and status
// transitions of individual orders. All mutations run under a per-order-id
// lock because the KV contract has no compare-and-swap.
type OrderRepository struct {
	store  kvstore.Store
	locks  *keylock.KeyLock
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewOrderRepository(store kvstore.Store, locks *keylock.KeyLock, ttl time.Duration, logger *zap.Logger) *OrderRepository {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	return &OrderRepository{
		store:  store,
		locks:  locks,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the repository clock. Test hook.
func (r *OrderRepository) SetClock(now func() time.Time) {
	r.now = now
}

// CreateOrderSpec is the validated input for a new order.
type CreateOrderSpec struct {
	Side          model.OrderSide
	Token         string
	WalletAddress string
	Price         float64
	MinAmount     float64
	MaxAmount     float64
	PaymentMethod string
}

func (s *CreateOrderSpec) validate() error {
	if s.Side != model.SideBuy && s.Side != model.SideSell {
		return apperr.Validation("side", "must be BUY or SELL")
	}
	if s.Token == "" {
		return apperr.Validation("token", "is required")
	}
	if s.WalletAddress == "" {
		return apperr.Validation("wallet_address", "is required")
	}
	if s.PaymentMethod == "" {
		return apperr.Validation("payment_method", "is required")
	}
	if s.Price <= 0 {
		return apperr.Validation("price", "must be positive")
	}
	if s.MinAmount <= 0 || s.MaxAmount <= 0 {
		return apperr.Validation("amount", "must be positive")
	}
	if s.MinAmount > s.MaxAmount {
		return apperr.Validation("amount", "min_amount exceeds max_amount")
	}
	return nil
}

// CreateOrder validates the spec, assigns id and expiry, and persists the
// order as PENDING.
func (r *OrderRepository) CreateOrder(ctx context.Context, spec CreateOrderSpec) (*model.Order, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	now := r.now()
	order := &model.Order{
		ID:            uuid.NewString(),
		Side:          spec.Side,
		Token:         strings.ToUpper(spec.Token),
		WalletAddress: spec.WalletAddress,
		Price:         spec.Price,
		MinAmount:     spec.MinAmount,
		MaxAmount:     spec.MaxAmount,
		PaymentMethod: spec.PaymentMethod,
		Status:        model.OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(r.ttl),
	}

	if err := r.put(ctx, order); err != nil {
		return nil, err
	}

	r.logger.Info("Created order",
		zap.String("order_id", order.ID),
		zap.String("side", string(order.Side)),
		zap.String("token", order.Token),
		zap.String("wallet_address", order.WalletAddress),
		zap.Float64("price", order.Price))
	return order, nil
}

// GetOrder loads one order, applying lazy expiry before returning it.
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	unlock := r.locks.Lock(kvstore.OrderKey(id))
	defer unlock()
	return r.getLocked(ctx, id)
}

func (r *OrderRepository) getLocked(ctx context.Context, id string) (*model.Order, error) {
	value, err := r.store.Get(ctx, kvstore.OrderKey(id))
	if err == kvstore.ErrKeyNotFound {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, apperr.Storage("get order", err)
	}

	var order model.Order
	if err := json.Unmarshal([]byte(value), &order); err != nil {
		return nil, apperr.Storage("decode order", err)
	}

	if order.ExpiredAt(r.now()) {
		order.Status = model.OrderExpired
		order.UpdatedAt = r.now()
		if err := r.put(ctx, &order); err != nil {
			return nil, err
		}
		r.logger.Info("Expired order on read", zap.String("order_id", order.ID))
	}
	return &order, nil
}

// OrderFilter narrows ListOrders results. Status accepts the stored statuses
// plus "active" as a synonym for PENDING.
type OrderFilter struct {
	Side          model.OrderSide
	Token         string
	Status        string
	WalletAddress string
}

func (f *OrderFilter) matches(o *model.Order) bool {
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Token != "" && !strings.EqualFold(f.Token, o.Token) {
		return false
	}
	if f.WalletAddress != "" && o.WalletAddress != f.WalletAddress {
		return false
	}
	if f.Status != "" {
		status := strings.ToUpper(f.Status)
		if status == "ACTIVE" {
			status = string(model.OrderPending)
		}
		if string(o.Status) != status {
			return false
		}
	}
	return true
}

// ListOrders scans the order namespace, flips any elapsed unclaimed order
// to EXPIRED (persisting the flip), then applies the filter. Expired orders
// are therefore never visible to "active" result sets.
func (r *OrderRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	keys, err := r.store.List(ctx, kvstore.OrderPrefix, 0)
	if err != nil {
		return nil, apperr.Storage("list orders", err)
	}

	orders := make([]model.Order, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, kvstore.OrderPrefix)

		unlock := r.locks.Lock(key)
		order, err := r.getLocked(ctx, id)
		unlock()
		if err != nil {
			if apperr.IsNotFound(err) {
				continue // deleted between List and Get
			}
			return nil, err
		}

		if filter.matches(order) {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

// OrderPatch carries owner-editable fields. Nil fields are left unchanged;
// id and created_at are never patchable.
type OrderPatch struct {
	Price         *float64
	MinAmount     *float64
	MaxAmount     *float64
	PaymentMethod *string
}

// UpdateOrder merges the patch into a still-PENDING order.
func (r *OrderRepository) UpdateOrder(ctx context.Context, id string, patch OrderPatch) (*model.Order, error) {
	return r.Mutate(ctx, id, func(o *model.Order) error {
		if o.Terminal() {
			return apperr.Conflict("order %s is %s and can no longer be edited", id, o.Status)
		}
		if o.Status != model.OrderPending {
			return apperr.Conflict("order %s is %s; only PENDING orders can be edited", id, o.Status)
		}

		if patch.Price != nil {
			if *patch.Price <= 0 {
				return apperr.Validation("price", "must be positive")
			}
			o.Price = *patch.Price
		}
		if patch.MinAmount != nil {
			o.MinAmount = *patch.MinAmount
		}
		if patch.MaxAmount != nil {
			o.MaxAmount = *patch.MaxAmount
		}
		if o.MinAmount <= 0 || o.MaxAmount <= 0 {
			return apperr.Validation("amount", "must be positive")
		}
		if o.MinAmount > o.MaxAmount {
			return apperr.Validation("amount", "min_amount exceeds max_amount")
		}
		if patch.PaymentMethod != nil {
			if *patch.PaymentMethod == "" {
				return apperr.Validation("payment_method", "is required")
			}
			o.PaymentMethod = *patch.PaymentMethod
		}
		return nil
	})
}

// CancelOrder sets CANCELLED. Only valid from PENDING or MATCHED.
func (r *OrderRepository) CancelOrder(ctx context.Context, id string) (*model.Order, error) {
	order, err := r.Mutate(ctx, id, func(o *model.Order) error {
		if o.Status != model.OrderPending && o.Status != model.OrderMatched {
			return apperr.Conflict("order %s is %s and cannot be cancelled", id, o.Status)
		}
		o.Status = model.OrderCancelled
		o.MatchedWith = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Cancelled order", zap.String("order_id", id))
	return order, nil
}

// Mutate runs a get/modify/put cycle for one order under its key lock. The
// mutation fn sees the post-lazy-expiry state; returning an error aborts the
// write.
func (r *OrderRepository) Mutate(ctx context.Context, id string, fn func(*model.Order) error) (*model.Order, error) {
	unlock := r.locks.Lock(kvstore.OrderKey(id))
	defer unlock()

	order, err := r.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(order); err != nil {
		return nil, err
	}

	order.UpdatedAt = r.now()
	if err := r.put(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) put(ctx context.Context, order *model.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return apperr.Storage("encode order", err)
	}
	if err := r.store.Put(ctx, kvstore.OrderKey(order.ID), string(data)); err != nil {
		return apperr.Storage("put order", err)
	}
	return nil
}
