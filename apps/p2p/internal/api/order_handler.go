package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/apperr"
	"p2p/apps/p2p/internal/events"
	"p2p/apps/p2p/internal/matching"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/notifier"
	"p2p/apps/p2p/internal/repository"
)

// OrderHandler handles the order-book endpoints.
type OrderHandler struct {
	orders     *repository.OrderRepository
	engine     *matching.Engine
	dispatcher *notifier.Dispatcher
	logger     *zap.Logger
}

func NewOrderHandler(orders *repository.OrderRepository, engine *matching.Engine, dispatcher *notifier.Dispatcher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, engine: engine, dispatcher: dispatcher, logger: logger}
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), repository.CreateOrderSpec{
		Side:          model.OrderSide(strings.ToUpper(req.Side)),
		Token:         req.Token,
		WalletAddress: req.WalletAddress,
		Price:         req.Price,
		MinAmount:     req.MinAmount,
		MaxAmount:     req.MaxAmount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	// Announce the open intent to the broadcast queue so market makers can
	// react. Best-effort side channel.
	if data, err := json.Marshal(order); err == nil {
		h.dispatcher.Broadcast(events.TradeEvent{
			Type:         events.TypeOpenIntent,
			SenderWallet: order.WalletAddress,
			OrderID:      order.ID,
			OrderData:    data,
		})
	}

	writeJSON(w, h.logger, http.StatusCreated, order)
}

// ListOrders handles GET /api/orders?side=&token=&status=&wallet_address=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.OrderFilter{
		Side:          model.OrderSide(strings.ToUpper(q.Get("side"))),
		Token:         q.Get("token"),
		Status:        q.Get("status"),
		WalletAddress: q.Get("wallet_address"),
	}

	orders, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, orders)
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, order)
}

// UpdateOrder handles PATCH /api/orders/{id}
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	order, err := h.orders.UpdateOrder(r.Context(), id, repository.OrderPatch{
		Price:         req.Price,
		MinAmount:     req.MinAmount,
		MaxAmount:     req.MaxAmount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, order)
}

// CancelOrder handles POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, order)
}

// GetMatches handles GET /api/orders/{id}/matches
func (h *OrderHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	candidates, err := h.engine.FindMatches(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if candidates == nil {
		candidates = []matching.Candidate{}
	}
	writeJSON(w, h.logger, http.StatusOK, candidates)
}

// writeJSON writes a JSON response with the specified status code
func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	writeJSON(w, logger, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// writeDomainError maps a core error to its HTTP equivalent.
func writeDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	code := "internal_error"
	switch {
	case apperr.IsValidation(err):
		code = "validation_error"
	case apperr.IsNotFound(err):
		code = "not_found"
	case apperr.IsConflict(err):
		code = "conflict"
	case apperr.IsUnauthorized(err):
		code = "unauthorized"
	default:
		logger.Error("Request failed", zap.Error(err))
	}
	writeError(w, logger, status, code, err.Error())
}
