// Package traderoom drives the bilateral settlement handshake bound to a
// matched pair: pending -> payment_confirmed -> assets_transferred ->
// completed, with cancelled reachable from any non-terminal state. Advancing
// beyond payment_confirmed is signalled by the external on-chain settlement
// collaborator; the room records the result.
package traderoom

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/notifier"
	"p2p/apps/p2p/internal/repository"
	"p2p/apps/p2p/internal/reputation"
)

// errAlreadyConfirmed aborts the room write on an idempotent re-confirmation
// so the auto-advance logic cannot fire twice.
var errAlreadyConfirmed = errors.New("party already confirmed")

type Service struct {
	rooms      *repository.RoomRepository
	pairs      *repository.PairRepository
	orders     *repository.OrderRepository
	reputation *reputation.Service
	dispatcher *notifier.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(rooms *repository.RoomRepository, pairs *repository.PairRepository, orders *repository.OrderRepository, rep *reputation.Service, dispatcher *notifier.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		rooms:      rooms,
		pairs:      pairs,
		orders:     orders,
		reputation: rep,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*model.TradeRoom, error) {
	return s.rooms.GetRoom(ctx, roomID)
}

// ConfirmPayment records one party's payment confirmation. The caller is
// identified as buyer or seller by wallet match. Once both flags are set the
// room auto-advances to payment_confirmed and the pair and backing orders
// are moved with it, exactly once.
func (s *Service) ConfirmPayment(ctx context.Context, roomID, wallet string) (*model.TradeRoom, error) {
	advanced := false
	room, err := s.rooms.Mutate(ctx, roomID, func(r *model.TradeRoom) error {
		buyer, ok := r.PartyOf(wallet)
		if !ok {
			return apperr.Unauthorized("wallet %s is not a party to room %s", wallet, roomID)
		}
		if r.Terminal() {
			return apperr.Conflict("room %s is already %s", roomID, r.Status)
		}

		at := s.now()
		if buyer {
			if r.BuyerPaymentConfirmed {
				return errAlreadyConfirmed
			}
			r.BuyerPaymentConfirmed = true
			r.BuyerConfirmedAt = &at
		} else {
			if r.SellerPaymentConfirmed {
				return errAlreadyConfirmed
			}
			r.SellerPaymentConfirmed = true
			r.SellerConfirmedAt = &at
		}

		if r.BuyerPaymentConfirmed && r.SellerPaymentConfirmed && r.Status == model.RoomPending {
			r.Status = model.RoomPaymentConfirmed
			advanced = true
		}
		return nil
	})
	if errors.Is(err, errAlreadyConfirmed) {
		// Idempotent no-op: return current state without re-triggering.
		return s.rooms.GetRoom(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment confirmation recorded",
		zap.String("room_id", roomID),
		zap.String("wallet_address", wallet),
		zap.Bool("advanced", advanced))

	if advanced {
		if err := s.propagatePaymentConfirmed(ctx, room); err != nil {
			return nil, err
		}
	}
	return room, nil
}

// propagatePaymentConfirmed keeps the pair and backing orders in agreement
// with the room about payment-confirmed status.
func (s *Service) propagatePaymentConfirmed(ctx context.Context, room *model.TradeRoom) error {
	if _, err := s.pairs.Mutate(ctx, room.PairID, func(p *model.MatchedPair) error {
		if p.Status == model.PairPending {
			p.Status = model.PairPaymentConfirmed
		}
		return nil
	}); err != nil {
		return err
	}

	for _, orderID := range []string{room.BuyOrderID, room.SellOrderID} {
		if _, err := s.orders.Mutate(ctx, orderID, func(o *model.Order) error {
			if o.Status == model.OrderMatched {
				o.Status = model.OrderPaymentConfirmed
			}
			return nil
		}); err != nil {
			return err
		}
	}

	s.notifyBoth(ctx, room, events.TypePaymentConfirmed)
	return nil
}

// MarkAssetsTransferred records the settlement collaborator's report that
// the escrowed assets moved. Valid only from payment_confirmed.
func (s *Service) MarkAssetsTransferred(ctx context.Context, roomID string) (*model.TradeRoom, error) {
	room, err := s.rooms.Mutate(ctx, roomID, func(r *model.TradeRoom) error {
		if r.Status != model.RoomPaymentConfirmed {
			return apperr.Conflict("room %s is %s; assets transfer requires payment_confirmed", roomID, r.Status)
		}
		r.Status = model.RoomAssetsTransferred
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.pairs.Mutate(ctx, room.PairID, func(p *model.MatchedPair) error {
		if p.Status == model.PairPaymentConfirmed {
			p.Status = model.PairAssetsTransferred
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.notifyBoth(ctx, room, events.TypeAssetsTransferred)
	return room, nil
}

// Complete finishes the handshake. Both orders end COMPLETED and the
// terminal outcome feeds each party's reputation.
func (s *Service) Complete(ctx context.Context, roomID string) (*model.TradeRoom, error) {
	room, err := s.rooms.Mutate(ctx, roomID, func(r *model.TradeRoom) error {
		if r.Status != model.RoomAssetsTransferred {
			return apperr.Conflict("room %s is %s; completion requires assets_transferred", roomID, r.Status)
		}
		r.Status = model.RoomCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.pairs.Mutate(ctx, room.PairID, func(p *model.MatchedPair) error {
		p.Status = model.PairCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, orderID := range []string{room.BuyOrderID, room.SellOrderID} {
		if _, err := s.orders.Mutate(ctx, orderID, func(o *model.Order) error {
			o.Status = model.OrderCompleted
			return nil
		}); err != nil {
			return nil, err
		}
	}

	s.recordOutcome(ctx, room, pair, model.TradeCompleted)
	s.notifyBoth(ctx, room, events.TypeTradeCompleted)

	s.logger.Info("Trade completed",
		zap.String("room_id", roomID),
		zap.String("pair_id", pair.ID),
		zap.Float64("amount", pair.Amount))
	return room, nil
}

// Cancel aborts the handshake from any non-terminal state. The pair is
// cancelled and the backing orders are restored to PENDING; a disputed
// cancellation instead leaves the orders DISPUTED. Either way the outcome is
// recorded against both parties' reputation.
func (s *Service) Cancel(ctx context.Context, roomID, wallet string, disputed bool) (*model.TradeRoom, error) {
	room, err := s.rooms.Mutate(ctx, roomID, func(r *model.TradeRoom) error {
		if _, ok := r.PartyOf(wallet); !ok {
			return apperr.Unauthorized("wallet %s is not a party to room %s", wallet, roomID)
		}
		if r.Terminal() {
			return apperr.Conflict("room %s is already %s", roomID, r.Status)
		}
		r.Status = model.RoomCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.pairs.Mutate(ctx, room.PairID, func(p *model.MatchedPair) error {
		if !p.Terminal() {
			p.Status = model.PairCancelled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, orderID := range []string{room.BuyOrderID, room.SellOrderID} {
		if _, err := s.orders.Mutate(ctx, orderID, func(o *model.Order) error {
			if o.Terminal() {
				return nil
			}
			if disputed {
				o.Status = model.OrderDisputed
				return nil
			}
			o.Status = model.OrderPending
			o.MatchedWith = ""
			return nil
		}); err != nil {
			return nil, err
		}
	}

	outcome := model.TradeCancelled
	if disputed {
		outcome = model.TradeDisputed
	}
	s.recordOutcome(ctx, room, pair, outcome)
	s.notifyBoth(ctx, room, events.TypeTradeCancelled)

	s.logger.Info("Trade cancelled",
		zap.String("room_id", roomID),
		zap.String("wallet_address", wallet),
		zap.Bool("disputed", disputed))
	return room, nil
}

// recordOutcome feeds the terminal outcome into both parties' reputation.
// Best-effort: a reputation write failure does not unwind the settlement.
func (s *Service) recordOutcome(ctx context.Context, room *model.TradeRoom, pair *model.MatchedPair, outcome model.TradeOutcome) {
	responseMinutes := s.now().Sub(room.CreatedAt).Minutes()
	if outcome != model.TradeCompleted {
		responseMinutes = 0
	}

	parties := [2][2]string{
		{room.BuyerWallet, room.SellerWallet},
		{room.SellerWallet, room.BuyerWallet},
	}
	for _, p := range parties {
		rec := model.TradeRecord{
			WalletAddress:      p[0],
			CounterpartyWallet: p[1],
			PairID:             pair.ID,
			Token:              pair.Token,
			Amount:             pair.Amount,
			TokenAmount:        pair.TokenAmount(),
			Status:             outcome,
			ResponseMinutes:    responseMinutes,
		}
		if err := s.reputation.RecordTrade(ctx, rec); err != nil {
			s.logger.Error("Failed to record trade outcome",
				zap.String("wallet_address", p[0]),
				zap.String("pair_id", pair.ID),
				zap.Error(err))
		}
	}
}

func (s *Service) notifyBoth(ctx context.Context, room *model.TradeRoom, eventType string) {
	s.dispatcher.Notify(ctx, events.TradeEvent{
		Type:            eventType,
		RecipientWallet: room.BuyerWallet,
		SenderWallet:    room.SellerWallet,
		OrderID:         room.BuyOrderID,
	})
	s.dispatcher.Notify(ctx, events.TradeEvent{
		Type:            eventType,
		RecipientWallet: room.SellerWallet,
		SenderWallet:    room.BuyerWallet,
		OrderID:         room.SellOrderID,
	})
}
