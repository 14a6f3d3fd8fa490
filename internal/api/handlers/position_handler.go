package handlers

import (
	"net/http"
	"strconv"

	"tradecore/internal/engine"
	"tradecore/internal/repository"
)

// PositionHandler - чтение позиций
type PositionHandler struct {
	ledger *engine.PositionLedger
	repo   *repository.PositionRepository
}

// NewPositionHandler создает новый PositionHandler
func NewPositionHandler(ledger *engine.PositionLedger, repo *repository.PositionRepository) *PositionHandler {
	return &PositionHandler{ledger: ledger, repo: repo}
}

// GetOpen возвращает снапшот открытых позиций
// GET /api/v1/positions
func (h *PositionHandler) GetOpen(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ledger.OpenSnapshot())
}

// GetHistory возвращает последние позиции из хранилища
// GET /api/v1/positions/history?limit=50
func (h *PositionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 500 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be in [1, 500]")
			return
		}
		limit = v
	}

	positions, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORAGE", "failed to load positions")
		return
	}
	respondJSON(w, http.StatusOK, positions)
}
