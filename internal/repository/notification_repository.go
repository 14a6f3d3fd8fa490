package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"tradecore/internal/models"
)

// NotificationRepository - журнал событий движка в таблице notifications.
//
// Пишется подписчиком шины событий, читается оператором через API.
// Meta сериализуется в JSONB колонку.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create записывает уведомление в журнал
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	var meta []byte
	if n.Meta != nil {
		var err error
		meta, err = json.Marshal(n.Meta)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO notifications (type, severity, symbol, message, meta, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	return r.db.QueryRowContext(
		ctx,
		query,
		n.Type,
		n.Severity,
		n.Symbol,
		n.Message,
		meta,
		n.Timestamp,
	).Scan(&n.ID)
}

// ListRecent возвращает последние уведомления, опционально по типам
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int, types []string) ([]*models.Notification, error) {
	var (
		query string
		args  []interface{}
	)
	if len(types) > 0 {
		query = `
			SELECT id, type, severity, symbol, message, meta, timestamp
			FROM notifications
			WHERE type = ANY($1)
			ORDER BY timestamp DESC
			LIMIT $2`
		args = []interface{}{pq.Array(types), limit}
	} else {
		query = `
			SELECT id, type, severity, symbol, message, meta, timestamp
			FROM notifications
			ORDER BY timestamp DESC
			LIMIT $1`
		args = []interface{}{limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var meta []byte
		err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Severity,
			&n.Symbol,
			&n.Message,
			&meta,
			&n.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Meta); err != nil {
				return nil, err
			}
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

// DeleteOlderThan удаляет записи старше заданного момента,
// возвращает число удалённых
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
