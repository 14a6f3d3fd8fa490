package models

import "time"

// Состояния движка (state machine)
//
// EMERGENCY_STOPPED терминально: выход только через ручной re-arm,
// автоматическое восстановление запрещено.
const (
	EngineStopped          = "STOPPED"
	EngineRunning          = "RUNNING"
	EngineEmergencyStopped = "EMERGENCY_STOPPED"
)

// EngineStatus - снимок наблюдаемого состояния движка
//
// DEGRADED не является четвёртым состоянием: движок остаётся RUNNING,
// но перестаёт открывать новые позиции, пока связь не восстановится.
type EngineStatus struct {
	State          string    `json:"state"`
	Degraded       bool      `json:"degraded"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	StopReason     string    `json:"stop_reason,omitempty"` // причина EMERGENCY_STOPPED
	OpenPositions  int       `json:"open_positions"`
	LastTick       time.Time `json:"last_tick"`
	StartedAt      time.Time `json:"started_at,omitempty"`
}
