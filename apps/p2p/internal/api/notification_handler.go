package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/repository"
)

// NotificationHandler exposes per-wallet notification queues.
type NotificationHandler struct {
	notifications *repository.NotificationRepository
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *repository.NotificationRepository, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List handles GET /api/notifications/{wallet}. Backend failures degrade to
// an empty list rather than failing the request.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	notifications := h.notifications.ListByWallet(r.Context(), wallet)
	writeJSON(w, h.logger, http.StatusOK, notifications)
}

// MarkRead handles POST /api/notifications/{wallet}/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.notifications.MarkRead(r.Context(), vars["wallet"], vars["id"]); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
