package models

import "fmt"

// RiskProfile - конфигурация риск-лимитов
//
// Неизменяема в рамках одной оценки: оператор обновляет профиль целиком
// (copy-on-write), следующий тик читает новую копию.
type RiskProfile struct {
	RiskPerTrade      float64 `json:"risk_per_trade"`      // доля equity на одну сделку (0.01 = 1%)
	MaxDailyLoss      float64 `json:"max_daily_loss"`      // абсолютный дневной лимит убытка
	MaxAccountRisk    float64 `json:"max_account_risk"`    // доля equity суммарно под риском
	EmergencyStopLoss float64 `json:"emergency_stop_loss"` // доля просадки от пика equity
	MaxPositions      int     `json:"max_positions"`       // максимум одновременных позиций
	MinTradeAmount    float64 `json:"min_trade_amount"`    // минимальный notional ордера
	MaxTradeAmount    float64 `json:"max_trade_amount"`    // максимальный notional ордера
}

// Validate проверяет согласованность профиля перед подменой
func (rp *RiskProfile) Validate() error {
	if rp.RiskPerTrade <= 0 || rp.RiskPerTrade > 1 {
		return fmt.Errorf("risk_per_trade must be in (0, 1], got %.4f", rp.RiskPerTrade)
	}
	if rp.MaxDailyLoss <= 0 {
		return fmt.Errorf("max_daily_loss must be positive, got %.2f", rp.MaxDailyLoss)
	}
	if rp.MaxAccountRisk <= 0 || rp.MaxAccountRisk > 1 {
		return fmt.Errorf("max_account_risk must be in (0, 1], got %.4f", rp.MaxAccountRisk)
	}
	if rp.EmergencyStopLoss <= 0 || rp.EmergencyStopLoss >= 1 {
		return fmt.Errorf("emergency_stop_loss must be in (0, 1), got %.4f", rp.EmergencyStopLoss)
	}
	if rp.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1, got %d", rp.MaxPositions)
	}
	if rp.MinTradeAmount <= 0 {
		return fmt.Errorf("min_trade_amount must be positive, got %.2f", rp.MinTradeAmount)
	}
	if rp.MaxTradeAmount < rp.MinTradeAmount {
		return fmt.Errorf("max_trade_amount %.2f below min_trade_amount %.2f",
			rp.MaxTradeAmount, rp.MinTradeAmount)
	}
	return nil
}
