package repository

import (
	"context"
	"database/sql"
	"errors"

	jsoniter "github.com/json-iterator/go"

	"tradecore/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория фаз
var (
	ErrPhaseNotFound = errors.New("phase state not found")
)

// PhaseRepository - работа с таблицей phase_state
//
// Хранится единственная строка (id=1): последняя оценка фазы.
// Снимок метрик сериализуется в JSONB колонку.
type PhaseRepository struct {
	db *sql.DB
}

// NewPhaseRepository создает новый экземпляр репозитория
func NewPhaseRepository(db *sql.DB) *PhaseRepository {
	return &PhaseRepository{db: db}
}

// Save сохраняет состояние фазы (upsert единственной строки)
func (r *PhaseRepository) Save(ctx context.Context, s *models.PhaseState) error {
	metrics, err := json.Marshal(s.Metrics)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO phase_state (id, phase, readiness, metrics, evaluated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET phase = $1, readiness = $2, metrics = $3, evaluated_at = $4`

	_, err = r.db.ExecContext(ctx, query, s.Phase, s.Readiness, metrics, s.EvaluatedAt)
	return err
}

// Load возвращает последнее сохранённое состояние фазы
func (r *PhaseRepository) Load(ctx context.Context) (*models.PhaseState, error) {
	query := `
		SELECT phase, readiness, metrics, evaluated_at
		FROM phase_state
		WHERE id = 1`

	s := &models.PhaseState{}
	var metrics []byte
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.Phase,
		&s.Readiness,
		&metrics,
		&s.EvaluatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhaseNotFound
		}
		return nil, err
	}

	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &s.Metrics); err != nil {
			return nil, err
		}
	}

	return s, nil
}
