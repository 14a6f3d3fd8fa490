package models

import "time"

// Trade представляет одно исполненное или отклонённое срабатывание ордера
type Trade struct {
	ID         int64     `json:"id" db:"id"`
	PositionID *int64    `json:"position_id,omitempty" db:"position_id"` // nil только для entry до создания позиции
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       string    `json:"side" db:"side"` // BUY, SELL
	Quantity   float64   `json:"quantity" db:"quantity"`
	Price      float64   `json:"price" db:"price"`
	Fees       float64   `json:"fees" db:"fees"`
	IsEntry    bool      `json:"is_entry" db:"is_entry"`
	Status     string    `json:"status" db:"status"` // PENDING, FILLED, REJECTED, CANCELLED
	OrderID    string    `json:"order_id" db:"order_id"`
	Strategy   string    `json:"strategy" db:"strategy"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// Стороны сделки
const (
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// Статусы исполнения
const (
	TradePending   = "PENDING"
	TradeFilled    = "FILLED"
	TradeRejected  = "REJECTED"
	TradeCancelled = "CANCELLED"
)

// Notional возвращает стоимость сделки в котируемой валюте
func (t *Trade) Notional() float64 {
	return t.Quantity * t.Price
}
