package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/traderoom"
)

// RoomHandler handles the trade room settlement endpoints.
type RoomHandler struct {
	rooms  *traderoom.Service
	logger *zap.Logger
}

func NewRoomHandler(rooms *traderoom.Service, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

// GetRoom handles GET /api/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	room, err := h.rooms.GetRoom(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, room)
}

// ConfirmPayment handles POST /api/rooms/{id}/confirm-payment
func (h *RoomHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RoomActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}
	if req.WalletAddress == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_error", "wallet_address is required")
		return
	}

	room, err := h.rooms.ConfirmPayment(r.Context(), id, req.WalletAddress)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, room)
}

// AssetsTransferred handles POST /api/rooms/{id}/assets-transferred, the
// settlement collaborator's success signal.
func (h *RoomHandler) AssetsTransferred(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	room, err := h.rooms.MarkAssetsTransferred(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, room)
}

// Complete handles POST /api/rooms/{id}/complete
func (h *RoomHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	room, err := h.rooms.Complete(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, room)
}

// Cancel handles POST /api/rooms/{id}/cancel
func (h *RoomHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RoomActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}
	if req.WalletAddress == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_error", "wallet_address is required")
		return
	}

	room, err := h.rooms.Cancel(r.Context(), id, req.WalletAddress, req.Disputed)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, room)
}
