package models

import "time"

// Position представляет единицу открытой рыночной экспозиции по символу
type Position struct {
	ID           int64      `json:"id" db:"id"`
	Symbol       string     `json:"symbol" db:"symbol"`
	Side         string     `json:"side" db:"side"` // LONG, SHORT
	Quantity     float64    `json:"quantity" db:"quantity"`
	EntryPrice   float64    `json:"entry_price" db:"entry_price"`
	CurrentPrice float64    `json:"current_price" db:"current_price"`
	StopLoss     float64    `json:"stop_loss,omitempty" db:"stop_loss"`     // 0 = не установлен
	TakeProfit   float64    `json:"take_profit,omitempty" db:"take_profit"` // 0 = не установлен
	Status       string     `json:"status" db:"status"`                     // OPEN, CLOSING, CLOSED
	Strategy     string     `json:"strategy" db:"strategy"`
	OrderID      string     `json:"order_id" db:"order_id"` // внешний идентификатор ордера входа
	EntryTradeID *int64     `json:"entry_trade_id,omitempty" db:"entry_trade_id"`
	ExitTradeID  *int64     `json:"exit_trade_id,omitempty" db:"exit_trade_id"`
	RealizedPnl  float64    `json:"realized_pnl" db:"realized_pnl"`
	EntryTime    time.Time  `json:"entry_time" db:"entry_time"`
	ClosedAt     *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// Стороны позиции
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Статусы позиции (state machine, переходы только вперёд)
const (
	PositionOpen    = "OPEN"
	PositionClosing = "CLOSING"
	PositionClosed  = "CLOSED"
)

// IsOpen возвращает true пока экспозиция на рынке ещё есть
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen || p.Status == PositionClosing
}

// DirectionSign возвращает +1 для лонга и -1 для шорта
//
// Используется в расчёте PNL: (exit - entry) × qty × sign
func (p *Position) DirectionSign() float64 {
	if p.Side == SideShort {
		return -1
	}
	return 1
}

// UnrealizedPnl рассчитывает нереализованный PNL по текущей цене
func (p *Position) UnrealizedPnl() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity * p.DirectionSign()
}
