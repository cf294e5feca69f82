package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/matching"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/repository"
)

// MatchHandler handles match commit and pair lookup.
type MatchHandler struct {
	engine *matching.Engine
	pairs  *repository.PairRepository
	logger *zap.Logger
}

func NewMatchHandler(engine *matching.Engine, pairs *repository.PairRepository, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{engine: engine, pairs: pairs, logger: logger}
}

type commitMatchResponse struct {
	Pair *model.MatchedPair `json:"pair"`
	Room *model.TradeRoom   `json:"room"`
}

// CommitMatch handles POST /api/matches
func (h *MatchHandler) CommitMatch(w http.ResponseWriter, r *http.Request) {
	var req CommitMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}
	if req.BuyOrderID == "" || req.SellOrderID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_error", "buy_order_id and sell_order_id are required")
		return
	}

	pair, room, err := h.engine.CommitMatch(r.Context(), req.BuyOrderID, req.SellOrderID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, commitMatchResponse{Pair: pair, Room: room})
}

// GetPair handles GET /api/matches/{id}
func (h *MatchHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pair, err := h.pairs.GetPair(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, pair)
}

// CancelMatch handles POST /api/matches/{id}/cancel
func (h *MatchHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pair, err := h.engine.CancelMatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, pair)
}
