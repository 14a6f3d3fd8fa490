package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradecore/internal/models"
)

func TestPhaseRepositorySave(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPhaseRepository(db)

	state := &models.PhaseState{
		Phase:     2,
		Readiness: 0.71,
		Metrics: models.PhaseMetrics{
			TradeCount: 60,
			WinRate:    0.58,
			AvgPnl:     3.2,
		},
		EvaluatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO phase_state").
		WithArgs(state.Phase, state.Readiness, sqlmock.AnyArg(), state.EvaluatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPhaseRepositoryLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPhaseRepository(db)

	evaluatedAt := time.Now()
	metricsJSON := `{"trade_count":60,"win_rate":0.58,"avg_pnl":3.2}`
	rows := sqlmock.NewRows([]string{"phase", "readiness", "metrics", "evaluated_at"}).
		AddRow(2, 0.71, []byte(metricsJSON), evaluatedAt)

	mock.ExpectQuery("SELECT (.+) FROM phase_state").
		WillReturnRows(rows)

	state, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Phase != 2 {
		t.Errorf("phase = %d, want 2", state.Phase)
	}
	if state.Readiness != 0.71 {
		t.Errorf("readiness = %.2f, want 0.71", state.Readiness)
	}
	if state.Metrics.TradeCount != 60 || state.Metrics.WinRate != 0.58 {
		t.Errorf("metrics = %+v", state.Metrics)
	}
}

func TestPhaseRepositoryLoadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPhaseRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM phase_state").
		WillReturnRows(sqlmock.NewRows([]string{"phase", "readiness", "metrics", "evaluated_at"}))

	if _, err := repo.Load(context.Background()); !errors.Is(err, ErrPhaseNotFound) {
		t.Fatalf("err = %v, want ErrPhaseNotFound", err)
	}
}

func TestPhaseRepositoryLoadEmptyMetrics(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPhaseRepository(db)

	rows := sqlmock.NewRows([]string{"phase", "readiness", "metrics", "evaluated_at"}).
		AddRow(0, 0.0, []byte(nil), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM phase_state").
		WillReturnRows(rows)

	state, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Metrics.TradeCount != 0 {
		t.Errorf("metrics = %+v, want zero value", state.Metrics)
	}
}
