package handlers

import (
	"encoding/json"
	"net/http"

	"tradecore/internal/engine"
	"tradecore/internal/models"
)

// RiskHandler - управление риск-профилем
//
// Профиль подменяется целиком (copy-on-write): частичные обновления
// не поддерживаются, чтобы оператор всегда видел полный действующий набор.
type RiskHandler struct {
	governor *engine.RiskGovernor
}

// NewRiskHandler создает новый RiskHandler
func NewRiskHandler(governor *engine.RiskGovernor) *RiskHandler {
	return &RiskHandler{governor: governor}
}

// GetProfile возвращает действующий риск-профиль
// GET /api/v1/risk-profile
func (h *RiskHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.governor.Profile())
}

// UpdateProfile атомарно подменяет риск-профиль
// PUT /api/v1/risk-profile
func (h *RiskHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.RiskProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "invalid JSON body")
		return
	}

	if err := h.governor.UpdateProfile(profile); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PROFILE", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, SuccessResponse{
		Message: "risk profile updated",
		Data:    h.governor.Profile(),
	})
}
