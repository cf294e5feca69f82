// Package matching pairs compatible BUY and SELL intents. Queries are
// pull-based linear scans of the opposite side of the book, which is fine at
// the order-book sizes this service targets.
package matching

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/notifier"
	"p2p/apps/p2p/internal/repository"
)

const (
	// DefaultMaxDeviationPercent bounds how far a seller's ask may sit above
	// the buyer's stated price.
	DefaultMaxDeviationPercent = 2.0

	// MaxCandidates caps a match query's result set.
	MaxCandidates = 5
)

// Candidate is one compatible opposite-side order, scored and materializable
// into a MatchedPair on request.
type Candidate struct {
	Order        model.Order `json:"order"`
	TradeAmount  float64     `json:"trade_amount"`
	MatchPrice   float64     `json:"match_price"`
	PriceDiffPct float64     `json:"price_diff_pct"`
	Score        float64     `json:"score"`
}

type Engine struct {
	orders       *repository.OrderRepository
	pairs        *repository.PairRepository
	rooms        *repository.RoomRepository
	dispatcher   *notifier.Dispatcher
	logger       *zap.Logger
	maxDeviation float64
	now          func() time.Time
}

func NewEngine(orders *repository.OrderRepository, pairs *repository.PairRepository, rooms *repository.RoomRepository, dispatcher *notifier.Dispatcher, maxDeviation float64, logger *zap.Logger) *Engine {
	if maxDeviation <= 0 {
		maxDeviation = DefaultMaxDeviationPercent
	}
	return &Engine{
		orders:       orders,
		pairs:        pairs,
		rooms:        rooms,
		dispatcher:   dispatcher,
		logger:       logger,
		maxDeviation: maxDeviation,
		now:          time.Now,
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// FindMatches scans the opposite side of the book for orders compatible with
// the subject order and returns the top scored candidates.
func (e *Engine) FindMatches(ctx context.Context, orderID string) ([]Candidate, error) {
	subject, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if subject.Status != model.OrderPending {
		return nil, apperr.Conflict("order %s is %s and cannot be matched", orderID, subject.Status)
	}

	opposite := model.SideSell
	if subject.Side == model.SideSell {
		opposite = model.SideBuy
	}

	pool, err := e.orders.ListOrders(ctx, repository.OrderFilter{
		Side:   opposite,
		Token:  subject.Token,
		Status: string(model.OrderPending),
	})
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for i := range pool {
		cand := pool[i]
		if cand.WalletAddress == subject.WalletAddress {
			continue // no self-trading
		}
		if cand.PaymentMethod != subject.PaymentMethod {
			continue
		}

		c, ok := e.evaluate(subject, &cand)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	e.logger.Info("Match query",
		zap.String("order_id", orderID),
		zap.Int("pool_size", len(pool)),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// evaluate checks amount and price compatibility of one candidate and scores
// it. Incompatible candidates are excluded, not scored low.
func (e *Engine) evaluate(subject, cand *model.Order) (Candidate, bool) {
	buy, sell := subject, cand
	if subject.Side == model.SideSell {
		buy, sell = cand, subject
	}

	tradeAmount, ok := amountOverlap(buy.MinAmount, buy.MaxAmount, sell.MinAmount, sell.MaxAmount)
	if !ok {
		return Candidate{}, false
	}

	diffPct, ok := priceDeviation(buy.Price, sell.Price, e.maxDeviation)
	if !ok {
		return Candidate{}, false
	}

	score := tradeAmount/10_000 + (e.maxDeviation-diffPct)*10 + e.recencyBonus(cand)

	return Candidate{
		Order:        *cand,
		TradeAmount:  tradeAmount,
		MatchPrice:   (buy.Price + sell.Price) / 2,
		PriceDiffPct: diffPct,
		Score:        score,
	}, true
}

// amountOverlap intersects the two currency ranges. The trade amount is the
// smaller side's ceiling, not the midpoint.
func amountOverlap(buyMin, buyMax, sellMin, sellMax float64) (float64, bool) {
	overlapMin := math.Max(buyMin, sellMin)
	overlapMax := math.Min(buyMax, sellMax)
	if overlapMin > overlapMax {
		return 0, false
	}
	return math.Min(buyMax, sellMax), true
}

// priceDeviation returns how far the ask sits above the bid, in percent of
// the bid. An ask at or below the bid is always compatible; above it, the
// deviation band applies inclusively.
func priceDeviation(buyPrice, sellPrice, maxDeviation float64) (float64, bool) {
	diff := (sellPrice - buyPrice) / buyPrice * 100
	if diff > maxDeviation {
		return diff, false
	}
	return diff, true
}

// recencyBonus rewards newer candidate orders: a full point at creation,
// decaying linearly to zero over the order's TTL window.
func (e *Engine) recencyBonus(cand *model.Order) float64 {
	window := cand.ExpiresAt.Sub(cand.CreatedAt)
	if window <= 0 {
		return 0
	}
	remaining := cand.ExpiresAt.Sub(e.now())
	if remaining <= 0 {
		return 0
	}
	return math.Min(1, remaining.Seconds()/window.Seconds())
}

// CommitMatch materializes a committed pair from one BUY and one SELL order,
// flips both orders to MATCHED, and opens the trade room. The pair record is
// written first as the intent record, so a retry after a partial failure
// converges instead of double-matching.
func (e *Engine) CommitMatch(ctx context.Context, buyOrderID, sellOrderID string) (*model.MatchedPair, *model.TradeRoom, error) {
	buy, err := e.orders.GetOrder(ctx, buyOrderID)
	if err != nil {
		return nil, nil, err
	}
	sell, err := e.orders.GetOrder(ctx, sellOrderID)
	if err != nil {
		return nil, nil, err
	}

	if buy.Side != model.SideBuy || sell.Side != model.SideSell {
		return nil, nil, apperr.Validation("side", "match requires one BUY and one SELL order")
	}
	if buy.WalletAddress == sell.WalletAddress {
		return nil, nil, apperr.Conflict("self-trade: both orders belong to %s", buy.WalletAddress)
	}

	// Retry path: both orders already matched into the same live pair.
	if pair, room, ok, err := e.resumeCommit(ctx, buy, sell); err != nil {
		return nil, nil, err
	} else if ok {
		return pair, room, nil
	}

	if buy.Status != model.OrderPending {
		return nil, nil, apperr.Conflict("buy order %s is %s and cannot be matched", buy.ID, buy.Status)
	}
	if sell.Status != model.OrderPending {
		return nil, nil, apperr.Conflict("sell order %s is %s and cannot be matched", sell.ID, sell.Status)
	}
	if buy.Token != sell.Token {
		return nil, nil, apperr.Conflict("orders trade different tokens: %s vs %s", buy.Token, sell.Token)
	}
	if buy.PaymentMethod != sell.PaymentMethod {
		return nil, nil, apperr.Conflict("orders use different payment methods")
	}

	tradeAmount, ok := amountOverlap(buy.MinAmount, buy.MaxAmount, sell.MinAmount, sell.MaxAmount)
	if !ok {
		return nil, nil, apperr.Conflict("order amount ranges do not overlap")
	}
	if _, ok := priceDeviation(buy.Price, sell.Price, e.maxDeviation); !ok {
		return nil, nil, apperr.Conflict("seller price exceeds the allowed deviation band")
	}

	now := e.now()
	pair := &model.MatchedPair{
		ID:            uuid.NewString(),
		BuyOrderID:    buy.ID,
		SellOrderID:   sell.ID,
		BuyerWallet:   buy.WalletAddress,
		SellerWallet:  sell.WalletAddress,
		Token:         buy.Token,
		Amount:        tradeAmount,
		Price:         (buy.Price + sell.Price) / 2,
		PaymentMethod: buy.PaymentMethod,
		Status:        model.PairPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.pairs.CreatePair(ctx, pair); err != nil {
		return nil, nil, err
	}

	if err := e.claimOrder(ctx, buy.ID, pair.ID); err != nil {
		e.abortPair(ctx, pair.ID)
		return nil, nil, err
	}
	if err := e.claimOrder(ctx, sell.ID, pair.ID); err != nil {
		e.releaseOrder(ctx, buy.ID, pair.ID)
		e.abortPair(ctx, pair.ID)
		return nil, nil, err
	}

	room, err := e.openRoom(ctx, pair)
	if err != nil {
		return nil, nil, err
	}

	e.notifyParties(ctx, pair)
	return pair, room, nil
}

// resumeCommit detects a previously committed (possibly half-finished) match
// of the same two orders and completes it idempotently.
func (e *Engine) resumeCommit(ctx context.Context, buy, sell *model.Order) (*model.MatchedPair, *model.TradeRoom, bool, error) {
	if buy.Status != model.OrderMatched || buy.MatchedWith == "" {
		return nil, nil, false, nil
	}
	if sell.Status != model.OrderMatched || sell.MatchedWith != buy.MatchedWith {
		return nil, nil, false, nil
	}

	pair, err := e.pairs.GetPair(ctx, buy.MatchedWith)
	if err != nil {
		return nil, nil, false, err
	}
	if pair.BuyOrderID != buy.ID || pair.SellOrderID != sell.ID || pair.Terminal() {
		return nil, nil, false, nil
	}

	if pair.RoomID != "" {
		room, err := e.rooms.GetRoom(ctx, pair.RoomID)
		if err != nil {
			return nil, nil, false, err
		}
		return pair, room, true, nil
	}

	// Crashed after claiming the orders, before opening the room.
	room, err := e.openRoom(ctx, pair)
	if err != nil {
		return nil, nil, false, err
	}
	return pair, room, true, nil
}

// claimOrder flips a still-PENDING order to MATCHED against the given pair.
func (e *Engine) claimOrder(ctx context.Context, orderID, pairID string) error {
	_, err := e.orders.Mutate(ctx, orderID, func(o *model.Order) error {
		if o.Status != model.OrderPending {
			return apperr.Conflict("order %s is %s and cannot be matched", orderID, o.Status)
		}
		o.Status = model.OrderMatched
		o.MatchedWith = pairID
		return nil
	})
	return err
}

// releaseOrder undoes a claim after a failed commit. Best-effort rollback.
func (e *Engine) releaseOrder(ctx context.Context, orderID, pairID string) {
	_, err := e.orders.Mutate(ctx, orderID, func(o *model.Order) error {
		if o.Status != model.OrderMatched || o.MatchedWith != pairID {
			return apperr.Conflict("order %s no longer claimed by pair %s", orderID, pairID)
		}
		o.Status = model.OrderPending
		o.MatchedWith = ""
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to release order after aborted match",
			zap.String("order_id", orderID), zap.String("pair_id", pairID), zap.Error(err))
	}
}

func (e *Engine) abortPair(ctx context.Context, pairID string) {
	_, err := e.pairs.Mutate(ctx, pairID, func(p *model.MatchedPair) error {
		p.Status = model.PairCancelled
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to cancel aborted pair", zap.String("pair_id", pairID), zap.Error(err))
	}
}

func (e *Engine) openRoom(ctx context.Context, pair *model.MatchedPair) (*model.TradeRoom, error) {
	now := e.now()
	room := &model.TradeRoom{
		ID:           uuid.NewString(),
		PairID:       pair.ID,
		BuyOrderID:   pair.BuyOrderID,
		SellOrderID:  pair.SellOrderID,
		BuyerWallet:  pair.BuyerWallet,
		SellerWallet: pair.SellerWallet,
		Status:       model.RoomPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.rooms.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	if _, err := e.pairs.Mutate(ctx, pair.ID, func(p *model.MatchedPair) error {
		p.RoomID = room.ID
		return nil
	}); err != nil {
		return nil, err
	}
	pair.RoomID = room.ID
	return room, nil
}

func (e *Engine) notifyParties(ctx context.Context, pair *model.MatchedPair) {
	data, err := json.Marshal(pair)
	if err != nil {
		e.logger.Error("Failed to marshal pair for notification", zap.Error(err))
		data = nil
	}

	e.dispatcher.Notify(ctx, events.TradeEvent{
		Type:            events.TypeMatchCommitted,
		RecipientWallet: pair.BuyerWallet,
		SenderWallet:    pair.SellerWallet,
		OrderID:         pair.BuyOrderID,
		OrderData:       data,
	})
	e.dispatcher.Notify(ctx, events.TradeEvent{
		Type:            events.TypeMatchCommitted,
		RecipientWallet: pair.SellerWallet,
		SenderWallet:    pair.BuyerWallet,
		OrderID:         pair.SellOrderID,
		OrderData:       data,
	})
}

// CancelMatch dissolves a committed pair before settlement: the pair and its
// room go to cancelled and both orders are restored to PENDING. This is the
// one sanctioned backward transition (MATCHED -> PENDING).
func (e *Engine) CancelMatch(ctx context.Context, pairID string) (*model.MatchedPair, error) {
	pair, err := e.pairs.Mutate(ctx, pairID, func(p *model.MatchedPair) error {
		if p.Terminal() {
			return apperr.Conflict("pair %s is already %s", pairID, p.Status)
		}
		if p.Status != model.PairPending {
			return apperr.Conflict("pair %s is %s; settlement has started", pairID, p.Status)
		}
		p.Status = model.PairCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.releaseOrder(ctx, pair.BuyOrderID, pair.ID)
	e.releaseOrder(ctx, pair.SellOrderID, pair.ID)

	if pair.RoomID != "" {
		if _, err := e.rooms.Mutate(ctx, pair.RoomID, func(r *model.TradeRoom) error {
			if r.Terminal() {
				return nil
			}
			r.Status = model.RoomCancelled
			return nil
		}); err != nil {
			e.logger.Error("Failed to cancel room for cancelled pair",
				zap.String("pair_id", pairID), zap.Error(err))
		}
	}

	e.logger.Info("Cancelled match", zap.String("pair_id", pairID))
	return pair, nil
}
