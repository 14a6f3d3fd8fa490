package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradecore/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - работа с таблицей positions
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create создает запись о позиции
func (r *PositionRepository) Create(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (symbol, side, quantity, entry_price, current_price, stop_loss, take_profit, status, strategy, order_id, entry_trade_id, exit_trade_id, realized_pnl, entry_time, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	if p.EntryTime.IsZero() {
		p.EntryTime = time.Now()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		p.Symbol,
		p.Side,
		p.Quantity,
		p.EntryPrice,
		p.CurrentPrice,
		p.StopLoss,
		p.TakeProfit,
		p.Status,
		p.Strategy,
		p.OrderID,
		p.EntryTradeID,
		p.ExitTradeID,
		p.RealizedPnl,
		p.EntryTime,
		p.ClosedAt,
	).Scan(&p.ID)

	if err != nil {
		return err
	}

	return nil
}

// Update обновляет позицию
func (r *PositionRepository) Update(ctx context.Context, p *models.Position) error {
	query := `
		UPDATE positions
		SET quantity = $1, current_price = $2, status = $3, entry_trade_id = $4, exit_trade_id = $5, realized_pnl = $6, closed_at = $7
		WHERE id = $8`

	result, err := r.db.ExecContext(
		ctx,
		query,
		p.Quantity,
		p.CurrentPrice,
		p.Status,
		p.EntryTradeID,
		p.ExitTradeID,
		p.RealizedPnl,
		p.ClosedAt,
		p.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPositionNotFound
	}

	return nil
}

// GetByID возвращает позицию по ID
func (r *PositionRepository) GetByID(ctx context.Context, id int64) (*models.Position, error) {
	query := `
		SELECT id, symbol, side, quantity, entry_price, current_price, stop_loss, take_profit, status, strategy, order_id, entry_trade_id, exit_trade_id, realized_pnl, entry_time, closed_at
		FROM positions
		WHERE id = $1`

	p := &models.Position{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Symbol,
		&p.Side,
		&p.Quantity,
		&p.EntryPrice,
		&p.CurrentPrice,
		&p.StopLoss,
		&p.TakeProfit,
		&p.Status,
		&p.Strategy,
		&p.OrderID,
		&p.EntryTradeID,
		&p.ExitTradeID,
		&p.RealizedPnl,
		&p.EntryTime,
		&p.ClosedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return p, nil
}

// ListOpen возвращает все незакрытые позиции (OPEN и CLOSING)
func (r *PositionRepository) ListOpen(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT id, symbol, side, quantity, entry_price, current_price, stop_loss, take_profit, status, strategy, order_id, entry_trade_id, exit_trade_id, realized_pnl, entry_time, closed_at
		FROM positions
		WHERE status IN ('OPEN', 'CLOSING')
		ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p := &models.Position{}
		err := rows.Scan(
			&p.ID,
			&p.Symbol,
			&p.Side,
			&p.Quantity,
			&p.EntryPrice,
			&p.CurrentPrice,
			&p.StopLoss,
			&p.TakeProfit,
			&p.Status,
			&p.Strategy,
			&p.OrderID,
			&p.EntryTradeID,
			&p.ExitTradeID,
			&p.RealizedPnl,
			&p.EntryTime,
			&p.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// ListRecent возвращает последние N позиций
func (r *PositionRepository) ListRecent(ctx context.Context, limit int) ([]*models.Position, error) {
	query := `
		SELECT id, symbol, side, quantity, entry_price, current_price, stop_loss, take_profit, status, strategy, order_id, entry_trade_id, exit_trade_id, realized_pnl, entry_time, closed_at
		FROM positions
		ORDER BY entry_time DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p := &models.Position{}
		err := rows.Scan(
			&p.ID,
			&p.Symbol,
			&p.Side,
			&p.Quantity,
			&p.EntryPrice,
			&p.CurrentPrice,
			&p.StopLoss,
			&p.TakeProfit,
			&p.Status,
			&p.Strategy,
			&p.OrderID,
			&p.EntryTradeID,
			&p.ExitTradeID,
			&p.RealizedPnl,
			&p.EntryTime,
			&p.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}
