package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Счётчики сигналов и сделок ============

// SignalsTotal - количество обработанных сигналов по исходам
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "signals_total",
		Help:      "Total number of processed signals by outcome",
	},
	[]string{"action", "outcome"}, // outcome: opened, closed, skipped, rejected
)

// SignalRejections - отказы риск-контроля по причинам
var SignalRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "signal_rejections_total",
		Help:      "Number of signals rejected by risk checks",
	},
	[]string{"reason"}, // too_small, max_positions, daily_loss, not_running
)

// RealizedPnlTotal - суммарный реализованный PNL в USDT
var RealizedPnlTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "realized_pnl_total_usdt",
		Help:      "Total realized PnL in USDT",
	},
)

// ============ Метрики состояния ============

// OpenPositions - текущее количество открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// EngineStateGauge - состояние движка (1 для текущего, 0 для остальных)
var EngineStateGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "state",
		Help:      "Engine state (1 for current state, 0 otherwise)",
	},
	[]string{"state"}, // stopped, running, emergency_stopped
)

// DegradedGauge - флаг деградированного режима
var DegradedGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "degraded",
		Help:      "Degraded mode flag (1=degraded, 0=normal)",
	},
)

// DrawdownGauge - текущая просадка от пикового equity
var DrawdownGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "drawdown_ratio",
		Help:      "Current drawdown from peak equity (0..1)",
	},
)

// EquityGauge - текущий equity счёта
var EquityGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "risk",
		Name:      "equity_usdt",
		Help:      "Current account equity in USDT",
	},
)

// ============ Метрики фаз ============

// CurrentPhase - текущая фаза автоматизации
var CurrentPhase = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "phase",
		Name:      "current",
		Help:      "Current automation phase",
	},
)

// ReadinessScore - композитный показатель готовности
var ReadinessScore = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradecore",
		Subsystem: "phase",
		Name:      "readiness_score",
		Help:      "Composite readiness score (0..1)",
	},
)

// PhaseTransitions - переходы между фазами
var PhaseTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "phase",
		Name:      "transitions_total",
		Help:      "Number of phase transitions by direction",
	},
	[]string{"direction"}, // advance, revert, force_revert
)

// ============ Метрики надёжности ============

// LoopRestarts - автоматические рестарты управляющего цикла
var LoopRestarts = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "supervisor",
		Name:      "loop_restarts_total",
		Help:      "Number of automatic control loop restarts",
	},
)

// TicksSkipped - пропущенные тики (предыдущий ещё выполнялся)
var TicksSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "ticks_skipped_total",
		Help:      "Number of control ticks skipped due to overlap",
	},
)

// EventsDropped - события, вытесненные из переполненной шины
var EventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "engine",
		Name:      "events_dropped_total",
		Help:      "Number of events evicted from full subscriber queues",
	},
)

// OrderSubmitLatency - время отправки ордера шлюзу
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradecore",
		Subsystem: "gateway",
		Name:      "order_submit_latency_ms",
		Help:      "Time to submit order to the broker in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 15000},
	},
	[]string{"side", "status"},
)

// GatewayFailures - сбои связи со шлюзом
var GatewayFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradecore",
		Subsystem: "gateway",
		Name:      "connectivity_failures_total",
		Help:      "Number of gateway connectivity failures",
	},
)

// ============ Вспомогательные функции ============

// RecordSignal записывает обработанный сигнал
func RecordSignal(action, outcome string) {
	SignalsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordRejection записывает отказ риск-контроля
func RecordRejection(reason string) {
	SignalRejections.WithLabelValues(reason).Inc()
}

// RecordClosedTrade записывает реализованный PNL закрытой позиции
func RecordClosedTrade(pnl float64) {
	RealizedPnlTotal.Add(pnl)
}

// UpdateEngineState выставляет gauge текущего состояния
func UpdateEngineState(state string) {
	for _, s := range []string{"STOPPED", "RUNNING", "EMERGENCY_STOPPED"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		EngineStateGauge.WithLabelValues(s).Set(v)
	}
}

// UpdateDegraded выставляет флаг деградированного режима
func UpdateDegraded(degraded bool) {
	if degraded {
		DegradedGauge.Set(1)
	} else {
		DegradedGauge.Set(0)
	}
}

// UpdateRiskGauges обновляет метрики риск-контроля
func UpdateRiskGauges(equity, drawdown float64) {
	EquityGauge.Set(equity)
	DrawdownGauge.Set(drawdown)
}

// UpdatePhase обновляет метрики контроллера фаз
func UpdatePhase(phase int, readiness float64) {
	CurrentPhase.Set(float64(phase))
	ReadinessScore.Set(readiness)
}

// RecordSubmitLatency записывает латентность отправки ордера
func RecordSubmitLatency(side, status string, latencyMs float64) {
	OrderSubmitLatency.WithLabelValues(side, status).Observe(latencyMs)
}
