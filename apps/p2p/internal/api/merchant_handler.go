package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/reputation"
)

// MerchantHandler exposes the reputation service.
type MerchantHandler struct {
	reputation *reputation.Service
	logger     *zap.Logger
}

func NewMerchantHandler(rep *reputation.Service, logger *zap.Logger) *MerchantHandler {
	return &MerchantHandler{reputation: rep, logger: logger}
}

// GetMerchant handles GET /api/merchants/{wallet}. Unknown wallets return
// the zero-state record, never 404.
func (h *MerchantHandler) GetMerchant(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	stats, err := h.reputation.GetMerchantStats(r.Context(), wallet)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// GetTradeLog handles GET /api/merchants/{wallet}/trades
func (h *MerchantHandler) GetTradeLog(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	log, err := h.reputation.GetTradeLog(r.Context(), wallet)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if log == nil {
		log = []model.TradeRecord{}
	}
	writeJSON(w, h.logger, http.StatusOK, log)
}

// TopMerchants handles GET /api/merchants/top?limit=
func (h *MerchantHandler) TopMerchants(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	merchants, err := h.reputation.GetTopMerchants(r.Context(), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, merchants)
}
