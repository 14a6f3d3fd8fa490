package models

import "time"

// Notification представляет событие для журнала оператора
type Notification struct {
	ID        int64                  `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`
	Severity  string                 `json:"severity" db:"severity"`
	Symbol    string                 `json:"symbol,omitempty" db:"symbol"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы уведомлений
const (
	NotificationTypeOpen      = "OPEN"
	NotificationTypeClose     = "CLOSE"
	NotificationTypeReject    = "REJECT"
	NotificationTypeDegraded  = "DEGRADED"
	NotificationTypeEmergency = "EMERGENCY"
	NotificationTypeRestart   = "RESTART"
	NotificationTypePhase     = "PHASE"
	NotificationTypeError     = "ERROR"
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
