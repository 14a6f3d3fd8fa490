package gateway

import (
	"context"
	"errors"
	"time"
)

// Gateway определяет унифицированный интерфейс для отправки ордеров брокеру
type Gateway interface {
	// Name возвращает имя шлюза
	Name() string

	// Submit отправляет рыночный ордер и ждёт отчёт об исполнении
	Submit(ctx context.Context, req *OrderRequest) (*ExecutionReport, error)

	// QueryOrder запрашивает статус ранее отправленного ордера.
	// Используется для сверки после таймаута - повторная отправка запрещена.
	QueryOrder(ctx context.Context, orderID string) (*ExecutionReport, error)

	// Balance возвращает снимок счёта (equity и доступный баланс)
	Balance(ctx context.Context) (*AccountSnapshot, error)

	// MarkPrice возвращает текущую цену инструмента
	MarkPrice(ctx context.Context, symbol string) (float64, error)

	// Close закрывает соединения со шлюзом
	Close() error
}

// OrderRequest описывает запрос на рыночный ордер
type OrderRequest struct {
	ClientOrderID string  `json:"client_order_id"` // идемпотентный ключ, генерирует вызывающая сторона
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // "BUY" или "SELL"
	Quantity      float64 `json:"quantity"`
	ReduceOnly    bool    `json:"reduce_only"` // true для ордеров закрытия позиции
}

// ExecutionReport - отчёт об исполнении ордера
type ExecutionReport struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Status    string    `json:"status"` // "FILLED", "REJECTED", "CANCELLED", "PENDING"
	FilledQty float64   `json:"filled_qty"`
	AvgPrice  float64   `json:"avg_price"`
	Fees      float64   `json:"fees"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountSnapshot - снимок состояния счёта на стороне брокера
type AccountSnapshot struct {
	Equity           float64   `json:"equity"`
	AvailableBalance float64   `json:"available_balance"`
	Timestamp        time.Time `json:"timestamp"`
}

// Статусы исполнения
const (
	StatusFilled    = "FILLED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
	StatusPending   = "PENDING"
)

var (
	// ErrIndeterminate - отправка не подтверждена и не опровергнута (таймаут).
	// Вызывающая сторона обязана выяснить судьбу ордера через QueryOrder.
	ErrIndeterminate = errors.New("order submission outcome is indeterminate")

	// ErrOrderNotFound - шлюз не знает такого ордера
	ErrOrderNotFound = errors.New("order not found")
)

// GatewayError представляет ошибку связи со шлюзом
type GatewayError struct {
	Gateway  string
	Op       string
	Original error
}

func (e *GatewayError) Error() string {
	return e.Gateway + ": " + e.Op + ": " + e.Original.Error()
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *GatewayError) Unwrap() error {
	return e.Original
}

// IsConnectivity сообщает, является ли ошибка сбоем связи (а не отказом брокера)
func IsConnectivity(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) || errors.Is(err, context.DeadlineExceeded)
}
