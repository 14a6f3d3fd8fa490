package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"tradecore/internal/engine"
	"tradecore/internal/models"
)

// EngineHandler - управление жизненным циклом движка
//
// Функции:
// - Текущий статус (состояние, деградация, возраст тика)
// - Запуск и штатная остановка
// - Ручной ввод в строй после аварийной остановки
// - Приём торговых сигналов от внешних скоринговых систем
type EngineHandler struct {
	engine *engine.Engine
}

// NewEngineHandler создает новый EngineHandler
func NewEngineHandler(e *engine.Engine) *EngineHandler {
	return &EngineHandler{engine: e}
}

// GetStatus возвращает текущий статус движка
// GET /api/v1/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// Start запускает движок
// POST /api/v1/start
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(r.Context()); err != nil {
		respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "engine started"})
}

// Stop штатно останавливает движок
// POST /api/v1/stop
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop("stopped by operator"); err != nil {
		respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "engine stopped"})
}

// Rearm вручную выводит движок из аварийного состояния
// POST /api/v1/rearm
func (h *EngineHandler) Rearm(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Rearm(); err != nil {
		if errors.Is(err, engine.ErrNotEmergencyStopped) {
			respondError(w, http.StatusConflict, "INVALID_STATE", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "engine re-armed, start explicitly to resume trading"})
}

// SubmitSignal принимает торговый сигнал в очередь движка
// POST /api/v1/signals
func (h *EngineHandler) SubmitSignal(w http.ResponseWriter, r *http.Request) {
	var sig models.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		respondError(w, http.StatusBadRequest, "MALFORMED_BODY", "invalid JSON body")
		return
	}

	if err := h.engine.Submit(sig); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSignal):
			respondError(w, http.StatusBadRequest, "INVALID_SIGNAL", err.Error())
		case errors.Is(err, engine.ErrNotRunning):
			respondError(w, http.StatusConflict, "NOT_RUNNING", err.Error())
		case errors.Is(err, engine.ErrQueueFull):
			respondError(w, http.StatusTooManyRequests, "QUEUE_FULL", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, SuccessResponse{Message: "signal enqueued"})
}
