package engine

import "tradecore/internal/models"

// PositionTransitions определяет допустимые переходы статуса позиции.
// Движение только вперёд: откат CLOSING -> OPEN запрещён.
var PositionTransitions = map[string][]string{
	models.PositionOpen:    {models.PositionClosing},
	models.PositionClosing: {models.PositionClosed},
	models.PositionClosed:  {},
}

// EngineTransitions определяет допустимые переходы состояния движка.
// Из EMERGENCY_STOPPED выход только через ручной Rearm - в STOPPED.
var EngineTransitions = map[string][]string{
	models.EngineStopped:          {models.EngineRunning},
	models.EngineRunning:          {models.EngineStopped, models.EngineEmergencyStopped},
	models.EngineEmergencyStopped: {models.EngineStopped},
}

// CanTransitionPosition проверяет допустимость перехода статуса позиции
func CanTransitionPosition(from, to string) bool {
	allowed, ok := PositionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionEngine проверяет допустимость перехода состояния движка
func CanTransitionEngine(from, to string) bool {
	allowed, ok := EngineTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// EngineStateInfo возвращает описание состояния для UI
func EngineStateInfo(s string) string {
	switch s {
	case models.EngineStopped:
		return "Движок остановлен"
	case models.EngineRunning:
		return "Движок работает"
	case models.EngineEmergencyStopped:
		return "Аварийная остановка! Требуется ручной ввод в строй"
	default:
		return "Неизвестное состояние"
	}
}

// IsTradable возвращает true если движок принимает сигналы
func IsTradable(s string) bool {
	return s == models.EngineRunning
}
