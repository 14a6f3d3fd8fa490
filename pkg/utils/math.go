package utils

import (
	"math"
)

// math.go - математические утилиты для управления риском
//
// Назначение:
// Чистые функции без побочных эффектов для расчёта размеров ордеров,
// просадки и метрик качества торговли.
//
// Функции:
// - ClampNotional: ограничение notional лимитами профиля
// - CalculateDrawdown: просадка от пика equity
// - ProfitFactor: gross profit / gross loss
// - SharpeRatio: mean(pnl) / stddev(pnl)
// - Clamp01: ограничение значения в [0, 1]

// ClampNotional ограничивает notional ордера сверху значением maxAmount.
//
// Округление ВНИЗ намеренное: ядро никогда не "дотягивает" ордер до
// минимума - слишком маленький ордер отклоняется целиком (TOO_SMALL).
//
// Параметры:
//   - notional: желаемая стоимость ордера
//   - maxAmount: верхний лимит профиля риска
//
// Возвращает:
//   - min(notional, maxAmount); 0 при notional <= 0
func ClampNotional(notional, maxAmount float64) float64 {
	if notional <= 0 {
		return 0
	}
	if maxAmount > 0 && notional > maxAmount {
		return maxAmount
	}
	return notional
}

// CalculateDrawdown возвращает долю просадки от пика equity.
//
// Формула:
//
//	drawdown = (peak - current) / peak
//
// Возвращает:
//   - значение в [0, 1]; 0 если peak <= 0 или current >= peak
//
// Примеры:
//   - CalculateDrawdown(10000, 8000) = 0.2 (20%)
//   - CalculateDrawdown(10000, 10500) = 0
func CalculateDrawdown(peak, current float64) float64 {
	if peak <= 0 || current >= peak {
		return 0
	}
	dd := (peak - current) / peak
	if dd > 1 {
		return 1
	}
	return dd
}

// ProfitFactor возвращает отношение суммарной прибыли к суммарному убытку.
//
// Параметры:
//   - pnls: список PNL завершённых сделок
//
// Возвращает:
//   - grossProfit / grossLoss
//   - +Inf если убытков нет, но прибыль есть
//   - 0 если сделок нет или прибыли нет
func ProfitFactor(pnls []float64) float64 {
	var grossProfit, grossLoss float64
	for _, pnl := range pnls {
		if pnl > 0 {
			grossProfit += pnl
		} else {
			grossLoss += -pnl
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// SharpeRatio возвращает отношение среднего PNL к его стандартному отклонению.
//
// Упрощённый Sharpe без безрисковой ставки: mean / stddev.
//
// Возвращает:
//   - 0 при менее чем двух сделках или нулевой дисперсии
func SharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}

	var sum float64
	for _, pnl := range pnls {
		sum += pnl
	}
	mean := sum / float64(len(pnls))

	var variance float64
	for _, pnl := range pnls {
		diff := pnl - mean
		variance += diff * diff
	}
	variance /= float64(len(pnls) - 1)

	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// Mean возвращает среднее значение списка
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Clamp01 ограничивает значение диапазоном [0, 1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
