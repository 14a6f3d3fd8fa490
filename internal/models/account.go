package models

import "time"

// AccountSnapshot - снимок состояния счёта от внешнего провайдера
//
// Используется только для риск-оценки и никогда не кэшируется между тиками.
type AccountSnapshot struct {
	Equity           float64   `json:"equity"`
	AvailableBalance float64   `json:"available_balance"`
	RealizedPnlToday float64   `json:"realized_pnl_today"`
	Timestamp        time.Time `json:"timestamp"`
}
