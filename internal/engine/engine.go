package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Причина отказа в деградированном режиме
const ReasonDegraded = "DEGRADED"

var (
	// ErrNotRunning - операция требует работающего движка
	ErrNotRunning = errors.New("engine is not running")

	// ErrQueueFull - входная очередь сигналов переполнена
	ErrQueueFull = errors.New("signal queue is full")

	// ErrNotEmergencyStopped - ввод в строй возможен только из аварийного состояния
	ErrNotEmergencyStopped = errors.New("engine is not emergency-stopped")
)

// failureCounter отдаёт число подряд идущих сбоев связи со шлюзом
type failureCounter interface {
	ConsecutiveFailures() int
}

// Engine - управляющий цикл торгового ядра.
//
// Один периодический тик обрабатывает накопленные сигналы. Тики никогда
// не перекрываются: если предыдущий ещё выполняется, очередной
// пропускается (не ставится в очередь). Вся мутация позиций происходит
// внутри тика - единственный писатель.
//
// Деградированный режим: подряд идущие сбои связи со шлюзом не роняют
// движок, а запрещают новые входы. Закрытия продолжают обрабатываться.
type Engine struct {
	cfg      config.EngineConfig
	ledger   *PositionLedger
	governor *RiskGovernor
	gw       gateway.Gateway
	failures failureCounter
	bus      *EventBus
	logger   *utils.Logger

	mu             sync.RWMutex
	state          string
	stopReason     string
	degraded       bool
	degradedReason string
	startedAt      time.Time

	signals chan models.Signal

	// Взаимное исключение тиков между поколениями цикла: tickOwner
	// хранит поколение, чей тик сейчас выполняется (0 - свободно).
	// Освобождение идёт через CAS по своему поколению, поэтому
	// доживающий цикл прошлого поколения не может сбросить чужой тик.
	loopGen      atomic.Int64
	tickOwner    atomic.Int64
	lastTickNano atomic.Int64

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewEngine создаёт движок в состоянии STOPPED
func NewEngine(
	cfg config.EngineConfig,
	ledger *PositionLedger,
	governor *RiskGovernor,
	gw gateway.Gateway,
	failures failureCounter,
	bus *EventBus,
	logger *utils.Logger,
) *Engine {
	e := &Engine{
		cfg:      cfg,
		ledger:   ledger,
		governor: governor,
		gw:       gw,
		failures: failures,
		bus:      bus,
		logger:   logger.Named("engine"),
		state:    models.EngineStopped,
		signals:  make(chan models.Signal, cfg.SignalQueueSize),
	}
	UpdateEngineState(models.EngineStopped)
	return e
}

// ============================================================
// Жизненный цикл
// ============================================================

// Start переводит движок в RUNNING и запускает управляющий цикл.
// Перед запуском восстанавливает открытые позиции из хранилища.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if !CanTransitionEngine(e.state, models.EngineRunning) {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot start from state %s", state)
	}
	e.mu.Unlock()

	if err := e.ledger.Recover(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.state = models.EngineRunning
	e.stopReason = ""
	e.startedAt = time.Now()
	e.loopCancel = cancel
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	e.lastTickNano.Store(time.Now().UnixNano())
	UpdateEngineState(models.EngineRunning)
	e.logger.Info("engine started",
		zap.Duration("control_loop_period", e.cfg.ControlLoopPeriod),
	)

	go e.runLoop(loopCtx, e.loopGen.Add(1))
	return nil
}

// Stop штатно останавливает движок.
// Текущий тик дорабатывает до конца, его результаты учитываются.
func (e *Engine) Stop(reason string) error {
	e.mu.Lock()
	if !CanTransitionEngine(e.state, models.EngineStopped) {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot stop from state %s", state)
	}
	e.state = models.EngineStopped
	e.stopReason = reason
	cancel := e.loopCancel
	done := e.loopDone
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	UpdateEngineState(models.EngineStopped)
	e.logger.Info("engine stopped", zap.String("reason", reason))
	return nil
}

// EmergencyStop выполняет аварийную остановку: прекращает приём
// сигналов, пытается закрыть каждую открытую позицию ровно один раз
// и фиксирует терминальное состояние. Автоматический выход из
// EMERGENCY_STOPPED запрещён - только ручной Rearm.
func (e *Engine) EmergencyStop(ctx context.Context, reason string) {
	e.mu.Lock()
	if e.state == models.EngineEmergencyStopped {
		e.mu.Unlock()
		return
	}
	e.state = models.EngineEmergencyStopped
	e.stopReason = reason
	cancel := e.loopCancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	UpdateEngineState(models.EngineEmergencyStopped)
	e.logger.Error("EMERGENCY STOP", zap.String("reason", reason))

	closed, failed := e.ledger.CloseAll(ctx)
	e.logger.Error("emergency close sweep finished",
		zap.Int("closed", closed),
		zap.Int("failed", failed),
	)

	e.bus.Publish(models.Notification{
		Type:     models.NotificationTypeEmergency,
		Severity: models.SeverityError,
		Message:  fmt.Sprintf("Emergency stop: %s (closed %d, failed %d)", reason, closed, failed),
		Meta: map[string]interface{}{
			"reason": reason,
			"closed": closed,
			"failed": failed,
		},
	})
}

// Rearm вручную выводит движок из аварийного состояния в STOPPED.
// Запуск после этого - отдельное явное действие оператора.
func (e *Engine) Rearm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != models.EngineEmergencyStopped {
		return ErrNotEmergencyStopped
	}
	e.state = models.EngineStopped
	e.stopReason = "re-armed by operator"
	UpdateEngineState(models.EngineStopped)
	e.logger.Warn("engine re-armed by operator")
	return nil
}

// restartLoop перезапускает управляющий цикл без смены состояния.
// Используется супервизором при зависшем тике.
func (e *Engine) restartLoop() error {
	e.mu.Lock()
	if e.state != models.EngineRunning {
		e.mu.Unlock()
		return ErrNotRunning
	}
	cancel := e.loopCancel

	loopCtx, newCancel := context.WithCancel(context.Background())
	e.loopCancel = newCancel
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Висящий тик мог не отпустить владение - освобождаем принудительно.
	// Его горутина отпускает владение через CAS по своему поколению,
	// так что задним числом она тик нового цикла не сбросит.
	e.tickOwner.Store(0)
	e.lastTickNano.Store(time.Now().UnixNano())

	LoopRestarts.Inc()
	e.logger.Warn("control loop restarted")

	go e.runLoop(loopCtx, e.loopGen.Add(1))
	return nil
}

// ============================================================
// Приём сигналов
// ============================================================

// Submit ставит сигнал в очередь на обработку ближайшим тиком
func (e *Engine) Submit(sig models.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}

	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()

	if state != models.EngineRunning {
		return ErrNotRunning
	}

	select {
	case e.signals <- sig:
		return nil
	default:
		return ErrQueueFull
	}
}

// ============================================================
// Управляющий цикл
// ============================================================

func (e *Engine) runLoop(ctx context.Context, gen int64) {
	e.mu.RLock()
	done := e.loopDone
	e.mu.RUnlock()
	defer close(done)

	ticker := time.NewTicker(e.cfg.ControlLoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Перекрытие тиков запрещено: занятый тик означает пропуск
			if !e.tickOwner.CompareAndSwap(0, gen) {
				TicksSkipped.Inc()
				e.logger.Warn("tick skipped, previous still in flight")
				continue
			}
			e.runTick(ctx)
			e.tickOwner.CompareAndSwap(gen, 0)
		}
	}
}

// runTick - один проход управляющего цикла
func (e *Engine) runTick(ctx context.Context) {
	e.lastTickNano.Store(time.Now().UnixNano())

	// Сначала выясняем судьбу отправок с прошлых тиков
	e.ledger.Reconcile(ctx)

	// Снапшот счёта не кэшируется между тиками
	account, err := e.accountSnapshot(ctx)
	if err != nil {
		e.observeConnectivity(err)
		return
	}
	e.clearDegraded()

	// Просадка проверяется каждый тик, до обработки сигналов
	if _, err := e.governor.ObserveEquity(account.Equity); err != nil {
		if errors.Is(err, ErrEmergencyCondition) {
			e.EmergencyStop(ctx, err.Error())
			return
		}
	}

	e.ledger.UpdateMarkPrices(ctx)
	e.drainSignals(ctx, account)
	e.lastTickNano.Store(time.Now().UnixNano())
}

// drainSignals обрабатывает накопленные сигналы в порядке поступления
func (e *Engine) drainSignals(ctx context.Context, account *models.AccountSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-e.signals:
			e.processOne(ctx, &sig, account)
		default:
			return
		}
	}
}

// processOne обрабатывает один сигнал с учётом деградированного режима
func (e *Engine) processOne(ctx context.Context, sig *models.Signal, account *models.AccountSnapshot) {
	// В деградированном режиме новые входы запрещены,
	// закрытия продолжают выполняться
	if e.IsDegraded() && sig.Action != models.ActionClose {
		RecordSignal(sig.Action, OutcomeRejected)
		RecordRejection(ReasonDegraded)
		e.logger.Warn("entry signal rejected in degraded mode",
			zap.String("symbol", sig.Symbol),
			zap.String("action", sig.Action),
		)
		return
	}

	// Начатую отправку нельзя обрывать отменой цикла: исход дошедшего
	// до брокера ордера обязан быть учтён. Время жизни вызова
	// ограничивает таймаут шлюза, Stop дожидается конца тика.
	outcome, err := e.ledger.ProcessSignal(context.WithoutCancel(ctx), sig, account)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSignal) {
			// Некорректный сигнал отбрасывается локально, не фатален
			e.logger.Warn("malformed signal dropped",
				zap.String("symbol", sig.Symbol),
				zap.Error(err),
			)
			return
		}
		e.observeConnectivity(err)
		e.logger.Error("signal processing failed",
			zap.String("symbol", sig.Symbol),
			zap.Error(err),
		)
		return
	}

	RecordSignal(sig.Action, outcome.Result)
}

// ============================================================
// Деградированный режим
// ============================================================

// observeConnectivity учитывает сбой связи и при превышении порога
// включает деградированный режим
func (e *Engine) observeConnectivity(err error) {
	if !gateway.IsConnectivity(err) {
		return
	}

	GatewayFailures.Inc()
	count := e.failures.ConsecutiveFailures()
	if count < e.cfg.DegradedThreshold {
		return
	}

	reason := fmt.Sprintf("%d consecutive gateway failures: %v", count, err)
	e.setDegraded(reason)
}

func (e *Engine) setDegraded(reason string) {
	e.mu.Lock()
	wasDegraded := e.degraded
	e.degraded = true
	e.degradedReason = reason
	e.mu.Unlock()

	UpdateDegraded(true)
	if !wasDegraded {
		e.logger.Error("engine DEGRADED", zap.String("reason", reason))
		e.bus.Publish(models.Notification{
			Type:     models.NotificationTypeDegraded,
			Severity: models.SeverityWarn,
			Message:  "Engine degraded: " + reason,
		})
	}
}

func (e *Engine) clearDegraded() {
	e.mu.Lock()
	wasDegraded := e.degraded
	e.degraded = false
	e.degradedReason = ""
	e.mu.Unlock()

	UpdateDegraded(false)
	if wasDegraded {
		e.logger.Info("engine recovered from degraded mode")
	}
}

// IsDegraded сообщает, действует ли деградированный режим
func (e *Engine) IsDegraded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.degraded
}

// ============================================================
// Наблюдаемое состояние
// ============================================================

// State возвращает текущее состояние движка
func (e *Engine) State() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastTick возвращает момент последнего прохода цикла
func (e *Engine) LastTick() time.Time {
	return time.Unix(0, e.lastTickNano.Load())
}

// Status возвращает снапшот состояния для API и WebSocket
func (e *Engine) Status() models.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return models.EngineStatus{
		State:          e.state,
		Degraded:       e.degraded,
		DegradedReason: e.degradedReason,
		StopReason:     e.stopReason,
		OpenPositions:  e.ledger.OpenCount(),
		LastTick:       e.LastTick(),
		StartedAt:      e.startedAt,
	}
}

// accountSnapshot запрашивает свежий снапшот счёта у шлюза
func (e *Engine) accountSnapshot(ctx context.Context) (*models.AccountSnapshot, error) {
	snap, err := e.gw.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account snapshot: %w", err)
	}
	return &models.AccountSnapshot{
		Equity:           snap.Equity,
		AvailableBalance: snap.AvailableBalance,
		RealizedPnlToday: e.governor.DailyPnl(),
		Timestamp:        snap.Timestamp,
	}, nil
}
