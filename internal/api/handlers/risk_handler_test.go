package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradecore/internal/models"
)

func TestRiskHandler_GetProfile(t *testing.T) {
	f := newEngineFixture()
	handler := NewRiskHandler(f.governor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk-profile", nil)
	w := httptest.NewRecorder()

	handler.GetProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}

	var profile models.RiskProfile
	if err := json.NewDecoder(w.Body).Decode(&profile); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if profile.MaxPositions != 5 || profile.RiskPerTrade != 0.02 {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestRiskHandler_UpdateProfile(t *testing.T) {
	t.Run("valid profile is applied", func(t *testing.T) {
		f := newEngineFixture()
		handler := NewRiskHandler(f.governor)

		updated := testProfile()
		updated.MaxPositions = 3
		updated.RiskPerTrade = 0.01
		raw, _ := json.Marshal(updated)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/risk-profile", strings.NewReader(string(raw)))
		w := httptest.NewRecorder()

		handler.UpdateProfile(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
		}
		if got := f.governor.Profile(); got.MaxPositions != 3 || got.RiskPerTrade != 0.01 {
			t.Errorf("profile not applied: %+v", got)
		}
	})

	t.Run("invalid profile keeps the old one", func(t *testing.T) {
		f := newEngineFixture()
		handler := NewRiskHandler(f.governor)

		bad := testProfile()
		bad.RiskPerTrade = -1
		raw, _ := json.Marshal(bad)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/risk-profile", strings.NewReader(string(raw)))
		w := httptest.NewRecorder()

		handler.UpdateProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected %d, got %d", http.StatusBadRequest, w.Code)
		}
		if got := f.governor.Profile(); got.RiskPerTrade != 0.02 {
			t.Errorf("old profile lost: %+v", got)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newEngineFixture()
		handler := NewRiskHandler(f.governor)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/risk-profile", strings.NewReader("{broken"))
		w := httptest.NewRecorder()

		handler.UpdateProfile(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestPhaseHandler_GetPhase(t *testing.T) {
	f := newEngineFixture()
	handler := NewPhaseHandler(f.phase)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/phase", nil)
	w := httptest.NewRecorder()

	handler.GetPhase(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}

	var state models.PhaseState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if state.Phase != 0 {
		t.Errorf("fresh controller should be at phase 0, got %d", state.Phase)
	}
}
