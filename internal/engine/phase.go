package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Веса пяти компонент готовности
const (
	weightVolume     = 0.25
	weightStability  = 0.30
	weightTrajectory = 0.20
	weightRisk       = 0.15
	weightDiversity  = 0.10
)

// Пороги политики переходов
const (
	advanceReadiness     = 0.75 // основной путь повышения
	softAdvanceReadiness = 0.60 // мягкий путь повышения
	softAdvanceWinRate   = 0.45 // требование к недавнему винрейту на мягком пути
	revertReadiness      = 0.35 // порог отката
)

// PhaseStore - контракт хранилища состояния фазы
type PhaseStore interface {
	Save(ctx context.Context, s *models.PhaseState) error
	Load(ctx context.Context) (*models.PhaseState, error)
}

// PhaseController управляет целочисленной фазой агрессивности.
//
// Работает на собственной медленной каденции, независимо от обработки
// сигналов. Читает скользящее окно закрытых сделок, считает пять
// нормированных компонент готовности и решает, менять ли фазу.
//
// Все переходы строго на один шаг за цикл. Единственное исключение -
// принудительный откат в фазу 0 при устойчиво отрицательном среднем
// PNL: это override, а не смешивание с готовностью.
type PhaseController struct {
	mu     sync.RWMutex
	window []models.TradeOutcome
	state  models.PhaseState

	cfg    config.PhaseConfig
	store  PhaseStore
	bus    *EventBus
	logger *utils.Logger
}

// NewPhaseController создаёт контроллер фаз
func NewPhaseController(cfg config.PhaseConfig, store PhaseStore, bus *EventBus, logger *utils.Logger) *PhaseController {
	return &PhaseController{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		logger: logger.Named("phase"),
	}
}

// Recover восстанавливает последнюю известную фазу из хранилища.
// Без сохранённого состояния старт с фазы 0.
func (pc *PhaseController) Recover(ctx context.Context) {
	state, err := pc.store.Load(ctx)
	if err != nil || state == nil {
		pc.logger.Info("no persisted phase state, starting at phase 0")
		return
	}

	pc.mu.Lock()
	pc.state = *state
	pc.mu.Unlock()

	UpdatePhase(state.Phase, state.Readiness)
	pc.logger.Info("phase state recovered",
		zap.Int("phase", state.Phase),
		zap.Float64("readiness", state.Readiness),
	)
}

// Record добавляет закрытую сделку в скользящее окно
func (pc *PhaseController) Record(outcome models.TradeOutcome) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.window = append(pc.window, outcome)
	if len(pc.window) > pc.cfg.WindowSize {
		pc.window = pc.window[len(pc.window)-pc.cfg.WindowSize:]
	}
}

// State возвращает копию текущего состояния фазы
func (pc *PhaseController) State() models.PhaseState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.state
}

// Run запускает периодическую переоценку фазы
func (pc *PhaseController) Run(ctx context.Context) {
	ticker := time.NewTicker(pc.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pc.Evaluate(ctx)
		}
	}
}

// ============================================================
// Оценка готовности
// ============================================================

// Evaluate пересчитывает готовность и применяет политику переходов
func (pc *PhaseController) Evaluate(ctx context.Context) models.PhaseState {
	pc.mu.Lock()
	window := make([]models.TradeOutcome, len(pc.window))
	copy(window, pc.window)
	current := pc.state.Phase
	pc.mu.Unlock()

	metrics := pc.computeMetrics(window, current)
	readiness := weightVolume*metrics.VolumeScore +
		weightStability*metrics.StabilityScore +
		weightTrajectory*metrics.TrajectoryScore +
		weightRisk*metrics.RiskScore +
		weightDiversity*metrics.DiversityScore

	next, direction := pc.decide(current, readiness, metrics)

	state := models.PhaseState{
		Phase:       next,
		Readiness:   readiness,
		Metrics:     metrics,
		EvaluatedAt: time.Now(),
	}

	pc.mu.Lock()
	pc.state = state
	pc.mu.Unlock()

	UpdatePhase(next, readiness)
	if err := pc.store.Save(ctx, &state); err != nil {
		pc.logger.Error("failed to persist phase state", zap.Error(err))
	}

	if direction != "" {
		PhaseTransitions.WithLabelValues(direction).Inc()
		pc.logger.Info("phase transition",
			zap.Int("from", current),
			zap.Int("to", next),
			zap.String("direction", direction),
			zap.Float64("readiness", readiness),
		)
		pc.bus.Publish(models.Notification{
			Type:     models.NotificationTypePhase,
			Severity: models.SeverityInfo,
			Message:  "Phase changed: " + EnginePhaseMessage(current, next),
			Meta: map[string]interface{}{
				"from":      current,
				"to":        next,
				"readiness": readiness,
				"direction": direction,
			},
		})
	}

	return state
}

// decide применяет политику переходов (строго один шаг за цикл)
func (pc *PhaseController) decide(current int, readiness float64, m models.PhaseMetrics) (next int, direction string) {
	maxPhase := len(pc.cfg.MinTrades) - 1

	// Принудительный откат: устойчиво отрицательный средний PNL
	// на достаточной выборке отправляет в фазу 0 независимо от готовности
	if m.TradeCount >= pc.cfg.ForceRevertMinN && m.AvgPnl <= pc.cfg.ForceRevertAvgPnl {
		if current == 0 {
			return 0, ""
		}
		return 0, "force_revert"
	}

	// Откат на один шаг
	if readiness < revertReadiness && current > 0 {
		return current - 1, "revert"
	}

	// Повышение на один шаг, только через барьер выборки следующей фазы
	if current < maxPhase {
		gate := pc.cfg.MinTrades[current+1]
		sampleOK := m.TradeCount >= gate

		hardPath := readiness >= advanceReadiness
		softPath := readiness >= softAdvanceReadiness && m.RecentWinRate >= softAdvanceWinRate

		if sampleOK && (hardPath || softPath) {
			return current + 1, "advance"
		}
	}

	return current, ""
}

// ============================================================
// Метрики окна
// ============================================================

// computeMetrics считает пять компонент готовности по окну сделок
func (pc *PhaseController) computeMetrics(window []models.TradeOutcome, phase int) models.PhaseMetrics {
	m := models.PhaseMetrics{TradeCount: len(window)}
	if len(window) == 0 {
		return m
	}

	pnls := make([]float64, len(window))
	wins := 0
	for i, t := range window {
		pnls[i] = t.Pnl
		if t.Pnl > 0 {
			wins++
		}
	}

	m.WinRate = float64(wins) / float64(len(window))
	m.RecentWinRate = winRate(window[len(window)-min(len(window), 20):])
	m.ProfitFactor = utils.ProfitFactor(pnls)
	m.SharpeRatio = utils.SharpeRatio(pnls)
	m.AvgPnl = utils.Mean(pnls)
	m.MaxDrawdown = maxEquityDrawdown(pnls)
	m.HourSpread, m.SymbolSpread, m.StrategySpread = spreads(window)

	m.VolumeScore = pc.volumeScore(len(window), phase)
	m.StabilityScore = stabilityScore(m)
	m.TrajectoryScore = trajectoryScore(window)
	m.RiskScore = riskScore(m)
	m.DiversityScore = diversityScore(m)

	return m
}

// volumeScore - достаточность выборки относительно барьера следующей фазы
func (pc *PhaseController) volumeScore(count, phase int) float64 {
	next := phase + 1
	if next >= len(pc.cfg.MinTrades) {
		next = len(pc.cfg.MinTrades) - 1
	}
	gate := pc.cfg.MinTrades[next]
	if gate <= 0 {
		return 1
	}
	return utils.Clamp01(float64(count) / float64(gate))
}

// stabilityScore - винрейт в здоровой полосе, согласованность недавнего
// и общего винрейта, ограниченная просадка
func stabilityScore(m models.PhaseMetrics) float64 {
	// Полоса [0.45, 0.75]: внутри 1.0, снаружи линейный спад
	band := 1.0
	switch {
	case m.WinRate < 0.45:
		band = utils.Clamp01(1 - (0.45-m.WinRate)/0.25)
	case m.WinRate > 0.75:
		band = utils.Clamp01(1 - (m.WinRate-0.75)/0.25)
	}

	consistency := utils.Clamp01(1 - math.Abs(m.RecentWinRate-m.WinRate)/0.25)

	grossProfit := m.AvgPnl * float64(m.TradeCount)
	if grossProfit < 1 {
		grossProfit = 1
	}
	ddBound := utils.Clamp01(1 - m.MaxDrawdown/grossProfit)

	return (band + consistency + ddBound) / 3
}

// trajectoryScore - улучшается ли винрейт второй половины окна
// относительно первой
func trajectoryScore(window []models.TradeOutcome) float64 {
	if len(window) < 4 {
		return 0.5
	}
	half := len(window) / 2
	first := winRate(window[:half])
	second := winRate(window[half:])
	return utils.Clamp01(0.5 + (second - first))
}

// riskScore - профит-фактор, Sharpe-подобный коэффициент, положительный
// средний PNL
func riskScore(m models.PhaseMetrics) float64 {
	pf := m.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = 2
	}
	pfScore := utils.Clamp01(pf / 2)
	sharpeScore := utils.Clamp01(0.5 + m.SharpeRatio/4)
	avgScore := 0.0
	if m.AvgPnl > 0 {
		avgScore = 1.0
	}
	return (pfScore + sharpeScore + avgScore) / 3
}

// diversityScore - разброс сделок по часам суток, символам и стратегиям
func diversityScore(m models.PhaseMetrics) float64 {
	hour := utils.Clamp01(float64(m.HourSpread) / 8)
	symbol := utils.Clamp01(float64(m.SymbolSpread) / 4)
	strategy := utils.Clamp01(float64(m.StrategySpread) / 2)
	return (hour + symbol + strategy) / 3
}

// spreads считает число различных часов, символов и стратегий в окне
func spreads(window []models.TradeOutcome) (hours, symbols, strategies int) {
	hourSet := make(map[int]struct{})
	symbolSet := make(map[string]struct{})
	strategySet := make(map[string]struct{})

	for _, t := range window {
		hourSet[t.ClosedAt.UTC().Hour()] = struct{}{}
		symbolSet[t.Symbol] = struct{}{}
		if t.Strategy != "" {
			strategySet[t.Strategy] = struct{}{}
		}
	}
	return len(hourSet), len(symbolSet), len(strategySet)
}

// maxEquityDrawdown - максимальная просадка кумулятивного PNL в USDT
func maxEquityDrawdown(pnls []float64) float64 {
	var equity, peak, maxDD float64
	for _, pnl := range pnls {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func winRate(window []models.TradeOutcome) float64 {
	if len(window) == 0 {
		return 0
	}
	wins := 0
	for _, t := range window {
		if t.Pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(window))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// EnginePhaseMessage формирует человекочитаемое описание перехода
func EnginePhaseMessage(from, to int) string {
	if to > from {
		return "automation escalated"
	}
	if to == 0 && from > 1 {
		return "automation force-reverted to manual baseline"
	}
	return "automation de-escalated"
}
