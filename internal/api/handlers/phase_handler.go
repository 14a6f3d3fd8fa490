package handlers

import (
	"net/http"

	"tradecore/internal/engine"
)

// PhaseHandler - чтение состояния фазы автоматизации.
// Внешние скоринговые системы читают отсюда текущую фазу и готовность.
type PhaseHandler struct {
	phase *engine.PhaseController
}

// NewPhaseHandler создает новый PhaseHandler
func NewPhaseHandler(phase *engine.PhaseController) *PhaseHandler {
	return &PhaseHandler{phase: phase}
}

// GetPhase возвращает текущую фазу, готовность и снимок метрик
// GET /api/v1/phase
func (h *PhaseHandler) GetPhase(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.phase.State())
}
