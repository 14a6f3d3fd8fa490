package models

import "time"

// PhaseState - текущая фаза агрессивности стратегии
//
// Пересчитывается PhaseController'ом на своём медленном такте и
// персистится: после рестарта движок продолжает с последней фазы,
// а не откатывается на 0.
type PhaseState struct {
	Phase       int          `json:"phase" db:"phase"`         // индекс фазы, >= 0
	Readiness   float64      `json:"readiness" db:"readiness"` // [0, 1]
	Metrics     PhaseMetrics `json:"metrics"`
	EvaluatedAt time.Time    `json:"evaluated_at" db:"evaluated_at"`
}

// PhaseMetrics - снимок метрик, породивший оценку готовности
type PhaseMetrics struct {
	TradeCount     int     `json:"trade_count"`     // завершённых сделок в окне
	WinRate        float64 `json:"win_rate"`        // по всему окну
	RecentWinRate  float64 `json:"recent_win_rate"` // вторая половина окна
	ProfitFactor   float64 `json:"profit_factor"`   // gross profit / gross loss
	SharpeRatio    float64 `json:"sharpe_ratio"`    // mean(pnl) / stddev(pnl)
	AvgPnl         float64 `json:"avg_pnl"`
	MaxDrawdown    float64 `json:"max_drawdown"`    // доля от пика кумулятивного PNL
	HourSpread     int     `json:"hour_spread"`     // уникальных часов суток
	SymbolSpread   int     `json:"symbol_spread"`   // уникальных символов
	StrategySpread int     `json:"strategy_spread"` // уникальных стратегий

	// Покомпонентные суб-оценки [0, 1]
	VolumeScore     float64 `json:"volume_score"`
	StabilityScore  float64 `json:"stability_score"`
	TrajectoryScore float64 `json:"trajectory_score"`
	RiskScore       float64 `json:"risk_score"`
	DiversityScore  float64 `json:"diversity_score"`
}

// TradeOutcome - завершённая сделка в скользящем окне PhaseController'а
type TradeOutcome struct {
	Symbol   string    `json:"symbol"`
	Strategy string    `json:"strategy"`
	Pnl      float64   `json:"pnl"`
	ClosedAt time.Time `json:"closed_at"`
}
