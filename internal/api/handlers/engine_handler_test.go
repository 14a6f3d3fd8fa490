package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradecore/internal/models"
)

func TestEngineHandler_GetStatus(t *testing.T) {
	f := newEngineFixture()
	handler := NewEngineHandler(f.engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var status models.EngineStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.State != models.EngineStopped {
		t.Errorf("expected state %s, got %s", models.EngineStopped, status.State)
	}
}

func TestEngineHandler_StartStop(t *testing.T) {
	f := newEngineFixture()
	handler := NewEngineHandler(f.engine)

	w := httptest.NewRecorder()
	handler.Start(w, httptest.NewRequest(http.MethodPost, "/api/v1/start", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}
	if f.engine.State() != models.EngineRunning {
		t.Errorf("expected RUNNING after start, got %s", f.engine.State())
	}

	// Повторный запуск из RUNNING - конфликт
	w = httptest.NewRecorder()
	handler.Start(w, httptest.NewRequest(http.MethodPost, "/api/v1/start", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("double start: expected %d, got %d", http.StatusConflict, w.Code)
	}

	w = httptest.NewRecorder()
	handler.Stop(w, httptest.NewRequest(http.MethodPost, "/api/v1/stop", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected %d, got %d", http.StatusOK, w.Code)
	}
	if f.engine.State() != models.EngineStopped {
		t.Errorf("expected STOPPED after stop, got %s", f.engine.State())
	}
}

func TestEngineHandler_RearmRequiresEmergency(t *testing.T) {
	f := newEngineFixture()
	handler := NewEngineHandler(f.engine)

	w := httptest.NewRecorder()
	handler.Rearm(w, httptest.NewRequest(http.MethodPost, "/api/v1/rearm", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("rearm from STOPPED: expected %d, got %d", http.StatusConflict, w.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "INVALID_STATE" {
		t.Errorf("expected code INVALID_STATE, got %q", resp.Code)
	}
}

func TestEngineHandler_SubmitSignal(t *testing.T) {
	f := newEngineFixture()
	handler := NewEngineHandler(f.engine)

	signalBody := func(action string) string {
		sig := models.Signal{
			Action:     action,
			Symbol:     "BTCUSD",
			SizeHint:   0.5,
			Confidence: 0.8,
			Strategy:   "momentum",
			Timestamp:  time.Now(),
		}
		raw, _ := json.Marshal(sig)
		return string(raw)
	}

	t.Run("rejected while stopped", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", strings.NewReader(signalBody(models.ActionBuy)))
		handler.SubmitSignal(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected %d, got %d", http.StatusConflict, w.Code)
		}
	})

	t.Run("accepted while running", func(t *testing.T) {
		startEngine(t, f)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", strings.NewReader(signalBody(models.ActionBuy)))
		handler.SubmitSignal(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected %d, got %d (%s)", http.StatusAccepted, w.Code, w.Body.String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", strings.NewReader("{not json"))
		handler.SubmitSignal(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("invalid action", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signals", strings.NewReader(signalBody("HOLD")))
		handler.SubmitSignal(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected %d, got %d", http.StatusBadRequest, w.Code)
		}

		var resp ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Code != "INVALID_SIGNAL" {
			t.Errorf("expected code INVALID_SIGNAL, got %q", resp.Code)
		}
	})
}

func startEngine(t *testing.T, f *engineFixture) {
	t.Helper()
	handler := NewEngineHandler(f.engine)
	w := httptest.NewRecorder()
	handler.Start(w, httptest.NewRequest(http.MethodPost, "/api/v1/start", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d (%s)", w.Code, w.Body.String())
	}
	t.Cleanup(func() {
		if f.engine.State() == models.EngineRunning {
			_ = f.engine.Stop("test cleanup")
		}
	})
}
