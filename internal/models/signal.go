package models

import (
	"errors"
	"fmt"
	"time"
)

// Signal - входной торговый сигнал от внешней скоринговой подсистемы
//
// Ядро считает сигнал уже оценённым: никакого скоринга здесь нет,
// только строгая валидация формы на границе приёма.
type Signal struct {
	Action     string    `json:"action"`    // BUY, SELL, CLOSE
	Symbol     string    `json:"symbol"`    // например BTCUSD
	SizeHint   float64   `json:"size_hint"` // доля доступного баланса (0, 1]
	Confidence float64   `json:"confidence"`
	Strategy   string    `json:"strategy"`
	Timestamp  time.Time `json:"timestamp"`
}

// Действия сигнала
const (
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
	ActionClose = "CLOSE"
)

// ErrInvalidSignal - ошибка валидации сигнала (ValidationError из таксономии)
var ErrInvalidSignal = errors.New("invalid signal")

// Validate проверяет форму сигнала на границе приёма
//
// Неизвестные/неполные формы отбрасываются сразу, а не протаскиваются
// дальше как undefined значения.
func (s *Signal) Validate() error {
	switch s.Action {
	case ActionBuy, ActionSell, ActionClose:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s.Action)
	}

	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}

	// CLOSE не открывает экспозицию, size hint для него не обязателен
	if s.Action != ActionClose {
		if s.SizeHint <= 0 || s.SizeHint > 1 {
			return fmt.Errorf("%w: size hint %.4f out of (0, 1]", ErrInvalidSignal, s.SizeHint)
		}
	}

	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f out of [0, 1]", ErrInvalidSignal, s.Confidence)
	}

	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidSignal)
	}

	return nil
}

// EntrySide возвращает сторону позиции, которую открывает сигнал
func (s *Signal) EntrySide() string {
	if s.Action == ActionSell {
		return SideShort
	}
	return SideLong
}
