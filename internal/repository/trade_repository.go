package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradecore/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create создает запись о сделке
func (r *TradeRepository) Create(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (position_id, symbol, side, quantity, price, fees, is_entry, status, order_id, strategy, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		t.PositionID,
		t.Symbol,
		t.Side,
		t.Quantity,
		t.Price,
		t.Fees,
		t.IsEntry,
		t.Status,
		t.OrderID,
		t.Strategy,
		t.Timestamp,
	).Scan(&t.ID)

	if err != nil {
		return err
	}

	return nil
}

// Update обновляет сделку
func (r *TradeRepository) Update(ctx context.Context, t *models.Trade) error {
	query := `
		UPDATE trades
		SET position_id = $1, quantity = $2, price = $3, fees = $4, status = $5
		WHERE id = $6`

	result, err := r.db.ExecContext(
		ctx,
		query,
		t.PositionID,
		t.Quantity,
		t.Price,
		t.Fees,
		t.Status,
		t.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTradeNotFound
	}

	return nil
}

// GetByPositionID возвращает все сделки позиции
func (r *TradeRepository) GetByPositionID(ctx context.Context, positionID int64) ([]*models.Trade, error) {
	query := `
		SELECT id, position_id, symbol, side, quantity, price, fees, is_entry, status, order_id, strategy, timestamp
		FROM trades
		WHERE position_id = $1
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		err := rows.Scan(
			&t.ID,
			&t.PositionID,
			&t.Symbol,
			&t.Side,
			&t.Quantity,
			&t.Price,
			&t.Fees,
			&t.IsEntry,
			&t.Status,
			&t.OrderID,
			&t.Strategy,
			&t.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// GetByOrderID возвращает сделку по клиентскому идентификатору ордера
func (r *TradeRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	query := `
		SELECT id, position_id, symbol, side, quantity, price, fees, is_entry, status, order_id, strategy, timestamp
		FROM trades
		WHERE order_id = $1`

	t := &models.Trade{}
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&t.ID,
		&t.PositionID,
		&t.Symbol,
		&t.Side,
		&t.Quantity,
		&t.Price,
		&t.Fees,
		&t.IsEntry,
		&t.Status,
		&t.OrderID,
		&t.Strategy,
		&t.Timestamp,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return t, nil
}

// ListPending возвращает сделки с неопределённым исходом
func (r *TradeRepository) ListPending(ctx context.Context) ([]*models.Trade, error) {
	query := `
		SELECT id, position_id, symbol, side, quantity, price, fees, is_entry, status, order_id, strategy, timestamp
		FROM trades
		WHERE status = 'PENDING'
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		err := rows.Scan(
			&t.ID,
			&t.PositionID,
			&t.Symbol,
			&t.Side,
			&t.Quantity,
			&t.Price,
			&t.Fees,
			&t.IsEntry,
			&t.Status,
			&t.OrderID,
			&t.Strategy,
			&t.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
