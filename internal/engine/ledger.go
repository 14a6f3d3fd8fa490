package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Исходы обработки сигнала
const (
	OutcomeOpened   = "opened"
	OutcomeClosed   = "closed"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
	OutcomePending  = "pending" // отправка не подтверждена, ждём сверки
)

// Outcome - результат обработки одного сигнала
type Outcome struct {
	Result    string
	Position  *models.Position
	Trade     *models.Trade
	Rejection *Rejection
}

// PositionStore - контракт хранилища позиций
type PositionStore interface {
	Create(ctx context.Context, p *models.Position) error
	Update(ctx context.Context, p *models.Position) error
	ListOpen(ctx context.Context) ([]*models.Position, error)
}

// TradeStore - контракт хранилища сделок
type TradeStore interface {
	Create(ctx context.Context, t *models.Trade) error
	Update(ctx context.Context, t *models.Trade) error
	ListPending(ctx context.Context) ([]*models.Trade, error)
}

// pendingSubmission - отправка с неопределённым исходом, ждущая сверки
type pendingSubmission struct {
	trade    *models.Trade
	position *models.Position // nil для входа (позиции ещё нет)
	sizing   *Sizing
	signal   models.Signal
}

// PositionLedger - авторитетный учёт торговых позиций.
//
// Правила:
// - На символ не более одной открытой позиции (встречный сигнал закрывает её)
// - Статус движется только вперёд: OPEN -> CLOSING -> CLOSED
// - Закрытая позиция всегда связана ровно с одной входной и одной
//   выходной сделкой (привязка по ID позиции, идемпотентная)
// - Повторная отправка таймаутнувшего ордера запрещена: судьба
//   выясняется через QueryOrder на следующем тике
//
// Вся мутация происходит из одного управляющего цикла. Значения карты
// open неизменяемы после публикации: писатель правит приватную копию и
// подменяет запись целиком под мьютексом, поэтому читатели снапшотов
// (API, WebSocket) не гоняются с ним.
type PositionLedger struct {
	mu      sync.RWMutex
	open    map[string]*models.Position // symbol -> открытая позиция
	pending []*pendingSubmission

	gw        gateway.Gateway
	governor  *RiskGovernor
	positions PositionStore
	trades    TradeStore
	bus       *EventBus
	logger    *utils.Logger

	onClosed func(models.TradeOutcome) // подписка контроллера фаз
	seq      int64                     // локальный счётчик client order ID
}

// NewPositionLedger создаёт реестр позиций
func NewPositionLedger(
	gw gateway.Gateway,
	governor *RiskGovernor,
	positions PositionStore,
	trades TradeStore,
	bus *EventBus,
	logger *utils.Logger,
) *PositionLedger {
	return &PositionLedger{
		open:      make(map[string]*models.Position),
		gw:        gw,
		governor:  governor,
		positions: positions,
		trades:    trades,
		bus:       bus,
		logger:    logger.Named("ledger"),
	}
}

// SetClosedCallback устанавливает обработчик закрытых сделок
func (l *PositionLedger) SetClosedCallback(fn func(models.TradeOutcome)) {
	l.onClosed = fn
}

// ============================================================
// Восстановление при старте
// ============================================================

// Recover загружает открытые позиции и незавершённые отправки
// из хранилища. Вызывается один раз перед запуском управляющего цикла:
// PENDING-сделки снова встают в очередь сверки, чтобы рестарт процесса
// не терял след таймаутнувшего ордера.
func (l *PositionLedger) Recover(ctx context.Context) error {
	positions, err := l.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	pending, err := l.trades.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending trades: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range positions {
		if existing, ok := l.open[p.Symbol]; ok {
			l.logger.Warn("duplicate open position in storage, keeping older",
				zap.String("symbol", p.Symbol),
				zap.Int64("kept", existing.ID),
				zap.Int64("ignored", p.ID),
			)
			continue
		}
		l.open[p.Symbol] = p
	}

	for _, t := range pending {
		sub := &pendingSubmission{trade: t, signal: recoveredSignal(t)}
		if !t.IsEntry {
			pos, ok := l.open[t.Symbol]
			if !ok {
				l.logger.Error("pending exit trade without open position, skipping",
					zap.Int64("trade_id", t.ID),
					zap.String("symbol", t.Symbol),
				)
				continue
			}
			cp := *pos
			cp.Status = models.PositionClosing
			sub.position = &cp
		}
		l.pending = append(l.pending, sub)
	}

	l.logger.Info("positions recovered",
		zap.Int("count", len(l.open)),
		zap.Int("pending_submissions", len(l.pending)),
	)
	OpenPositions.Set(float64(len(l.open)))
	return nil
}

// recoveredSignal восстанавливает минимальный сигнал из PENDING-сделки.
// Для сверки входа достаточно символа, стороны и стратегии.
func recoveredSignal(t *models.Trade) models.Signal {
	action := models.ActionBuy
	if t.Side == models.TradeSell {
		action = models.ActionSell
	}
	return models.Signal{
		Action:    action,
		Symbol:    t.Symbol,
		Strategy:  t.Strategy,
		Timestamp: t.Timestamp,
	}
}

// ============================================================
// Обработка сигналов
// ============================================================

// ProcessSignal обрабатывает один торговый сигнал.
//
// BUY/SELL без открытой позиции по символу - вход. Тот же сигнал при
// уже открытой позиции в ту же сторону - skipped (идемпотентность).
// CLOSE или встречный сигнал при открытой позиции - выход.
func (l *PositionLedger) ProcessSignal(ctx context.Context, sig *models.Signal, account *models.AccountSnapshot) (*Outcome, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	existing := l.open[sig.Symbol]
	openCount := len(l.open)
	l.mu.RUnlock()

	switch sig.Action {
	case models.ActionClose:
		if existing == nil || !existing.IsOpen() {
			return &Outcome{Result: OutcomeSkipped}, nil
		}
		return l.closePosition(ctx, existing, sig)

	case models.ActionBuy, models.ActionSell:
		if existing != nil {
			if existing.Side == sig.EntrySide() {
				// Позиция в ту же сторону уже открыта - дубликат
				return &Outcome{Result: OutcomeSkipped, Position: existing}, nil
			}
			if !existing.IsOpen() {
				// Закрытие уже идёт, новый вход ждёт следующего сигнала
				return &Outcome{Result: OutcomeSkipped, Position: existing}, nil
			}
			// Встречный сигнал закрывает открытую позицию
			return l.closePosition(ctx, existing, sig)
		}
		return l.openPosition(ctx, sig, account, openCount)

	default:
		return nil, models.ErrInvalidSignal
	}
}

// openPosition выполняет вход: риск-проверки, сайзинг, отправка, учёт
func (l *PositionLedger) openPosition(ctx context.Context, sig *models.Signal, account *models.AccountSnapshot, openCount int) (*Outcome, error) {
	if rej := l.governor.Preflight(account, openCount); rej != nil {
		RecordRejection(rej.Reason)
		return &Outcome{Result: OutcomeRejected, Rejection: rej}, nil
	}

	price, err := l.gw.MarkPrice(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get mark price for %s: %w", sig.Symbol, err)
	}

	sizing, rej := l.governor.Size(account, sig.SizeHint, price)
	if rej != nil {
		RecordRejection(rej.Reason)
		return &Outcome{Result: OutcomeRejected, Rejection: rej}, nil
	}

	// Входная сделка создаётся до отправки: если исход неопределён,
	// PENDING запись остаётся следом для сверки
	trade := &models.Trade{
		Symbol:    sig.Symbol,
		Side:      entryOrderSide(sig),
		Quantity:  sizing.Quantity,
		Price:     price,
		IsEntry:   true,
		Status:    models.TradePending,
		Strategy:  sig.Strategy,
		OrderID:   l.nextClientOrderID(sig.Symbol),
		Timestamp: time.Now(),
	}
	if err := l.trades.Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to persist entry trade: %w", err)
	}

	report, err := l.submit(ctx, &gateway.OrderRequest{
		ClientOrderID: trade.OrderID,
		Symbol:        sig.Symbol,
		Side:          trade.Side,
		Quantity:      sizing.Quantity,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrIndeterminate) {
			l.parkPending(&pendingSubmission{trade: trade, sizing: sizing, signal: *sig})
			l.logger.Warn("entry submission indeterminate, parked for reconciliation",
				zap.String("symbol", sig.Symbol),
				zap.String("client_order_id", trade.OrderID),
			)
			return &Outcome{Result: OutcomePending, Trade: trade}, nil
		}
		return nil, err
	}

	return l.finishEntry(ctx, trade, sig, report)
}

// finishEntry завершает вход по отчёту об исполнении
func (l *PositionLedger) finishEntry(ctx context.Context, trade *models.Trade, sig *models.Signal, report *gateway.ExecutionReport) (*Outcome, error) {
	if report.Status != gateway.StatusFilled {
		// Отказ брокера: позиция не создаётся и не мутируется
		trade.Status = models.TradeRejected
		if err := l.trades.Update(ctx, trade); err != nil {
			l.logger.Error("failed to persist rejected trade", zap.Error(err))
		}
		RecordRejection("gateway_" + report.Status)
		return &Outcome{
			Result: OutcomeRejected,
			Trade:  trade,
			Rejection: &Rejection{
				Reason:  "GATEWAY_" + report.Status,
				Message: fmt.Sprintf("broker declined order %s", report.OrderID),
			},
		}, nil
	}

	position := &models.Position{
		Symbol:       sig.Symbol,
		Side:         sig.EntrySide(),
		Quantity:     report.FilledQty,
		EntryPrice:   report.AvgPrice,
		CurrentPrice: report.AvgPrice,
		Status:       models.PositionOpen,
		Strategy:     sig.Strategy,
		OrderID:      report.OrderID,
		EntryTime:    report.Timestamp,
	}
	if err := l.positions.Create(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to persist position: %w", err)
	}

	trade.Status = models.TradeFilled
	trade.Quantity = report.FilledQty
	trade.Price = report.AvgPrice
	trade.Fees = report.Fees
	trade.PositionID = &position.ID
	if err := l.trades.Update(ctx, trade); err != nil {
		l.logger.Error("failed to bind entry trade", zap.Error(err))
	}
	position.EntryTradeID = &trade.ID
	if err := l.positions.Update(ctx, position); err != nil {
		l.logger.Error("failed to bind entry trade id", zap.Error(err))
	}

	l.publishOpen(position)

	l.logger.Info("position opened",
		zap.Int64("position_id", position.ID),
		zap.String("symbol", position.Symbol),
		zap.String("side", position.Side),
		zap.Float64("quantity", position.Quantity),
		zap.Float64("entry_price", position.EntryPrice),
	)
	l.bus.Publish(models.Notification{
		Type:     models.NotificationTypeOpen,
		Severity: models.SeverityInfo,
		Symbol:   position.Symbol,
		Message: fmt.Sprintf("Opened %s %s %.8f @ %.2f",
			position.Side, position.Symbol, position.Quantity, position.EntryPrice),
		Meta: map[string]interface{}{
			"position_id": position.ID,
			"strategy":    position.Strategy,
		},
	})

	return &Outcome{Result: OutcomeOpened, Position: position, Trade: trade}, nil
}

// closePosition выполняет выход из открытой позиции
func (l *PositionLedger) closePosition(ctx context.Context, position *models.Position, sig *models.Signal) (*Outcome, error) {
	// Идемпотентная привязка: выходная сделка уже существует - не плодим вторую
	if position.ExitTradeID != nil {
		return &Outcome{Result: OutcomeSkipped, Position: position}, nil
	}

	// Значение в карте open неизменяемо - дальше работаем с приватной
	// копией и публикуем её состояние через publishOpen
	work := *position
	position = &work

	trade := &models.Trade{
		PositionID: &position.ID,
		Symbol:     position.Symbol,
		Side:       exitOrderSide(position),
		Quantity:   position.Quantity,
		Price:      position.CurrentPrice,
		IsEntry:    false,
		Status:     models.TradePending,
		Strategy:   position.Strategy,
		OrderID:    l.nextClientOrderID(position.Symbol),
		Timestamp:  time.Now(),
	}
	if err := l.trades.Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to persist exit trade: %w", err)
	}

	position.Status = models.PositionClosing
	l.publishOpen(position)

	report, err := l.submit(ctx, &gateway.OrderRequest{
		ClientOrderID: trade.OrderID,
		Symbol:        position.Symbol,
		Side:          trade.Side,
		Quantity:      position.Quantity,
		ReduceOnly:    true,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrIndeterminate) {
			if perr := l.positions.Update(ctx, position); perr != nil {
				l.logger.Error("failed to persist closing status", zap.Error(perr))
			}
			l.parkPending(&pendingSubmission{trade: trade, position: position, signal: *sig})
			l.logger.Warn("exit submission indeterminate, parked for reconciliation",
				zap.String("symbol", position.Symbol),
				zap.String("client_order_id", trade.OrderID),
			)
			return &Outcome{Result: OutcomePending, Position: position, Trade: trade}, nil
		}
		// Сбой связи до отправки: позиция остаётся открытой, повтор на следующем тике
		position.Status = models.PositionOpen
		l.publishOpen(position)
		return nil, err
	}

	return l.finishExit(ctx, position, trade, report)
}

// finishExit завершает выход по отчёту об исполнении
func (l *PositionLedger) finishExit(ctx context.Context, position *models.Position, trade *models.Trade, report *gateway.ExecutionReport) (*Outcome, error) {
	if report.Status != gateway.StatusFilled {
		// Закрытие не исполнено: позиция никогда не помечается
		// закрытой молча, остаётся открытой до следующей попытки
		trade.Status = models.TradeRejected
		if err := l.trades.Update(ctx, trade); err != nil {
			l.logger.Error("failed to persist rejected exit trade", zap.Error(err))
		}
		position.Status = models.PositionOpen
		if err := l.positions.Update(ctx, position); err != nil {
			l.logger.Error("failed to restore open status", zap.Error(err))
		}
		l.publishOpen(position)
		l.logger.Warn("close attempt declined by broker, position stays open",
			zap.Int64("position_id", position.ID),
			zap.String("symbol", position.Symbol),
		)
		return &Outcome{
			Result:   OutcomeRejected,
			Position: position,
			Trade:    trade,
			Rejection: &Rejection{
				Reason:  "GATEWAY_" + report.Status,
				Message: fmt.Sprintf("broker declined close order %s", report.OrderID),
			},
		}, nil
	}

	exitPrice := report.AvgPrice
	pnl := (exitPrice - position.EntryPrice) * position.Quantity * position.DirectionSign()

	trade.Status = models.TradeFilled
	trade.Price = exitPrice
	trade.Quantity = report.FilledQty
	trade.Fees = report.Fees
	if err := l.trades.Update(ctx, trade); err != nil {
		l.logger.Error("failed to persist exit trade fill", zap.Error(err))
	}

	now := report.Timestamp
	position.Status = models.PositionClosed
	position.CurrentPrice = exitPrice
	position.RealizedPnl = pnl
	position.ExitTradeID = &trade.ID
	position.ClosedAt = &now
	if err := l.positions.Update(ctx, position); err != nil {
		l.logger.Error("failed to persist closed position", zap.Error(err))
	}

	l.unpublish(position.Symbol)

	l.governor.RecordRealizedPnl(pnl, now)
	RecordClosedTrade(pnl)

	if l.onClosed != nil {
		l.onClosed(models.TradeOutcome{
			Symbol:   position.Symbol,
			Strategy: position.Strategy,
			Pnl:      pnl,
			ClosedAt: now,
		})
	}

	l.logger.Info("position closed",
		zap.Int64("position_id", position.ID),
		zap.String("symbol", position.Symbol),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("realized_pnl", pnl),
	)
	l.bus.Publish(models.Notification{
		Type:     models.NotificationTypeClose,
		Severity: models.SeverityInfo,
		Symbol:   position.Symbol,
		Message: fmt.Sprintf("Closed %s %s @ %.2f, PnL %.2f USDT",
			position.Side, position.Symbol, exitPrice, pnl),
		Meta: map[string]interface{}{
			"position_id":  position.ID,
			"realized_pnl": pnl,
		},
	})

	return &Outcome{Result: OutcomeClosed, Position: position, Trade: trade}, nil
}

// ============================================================
// Сверка неопределённых отправок
// ============================================================

// Reconcile выясняет судьбу отправок с неопределённым исходом.
// Вызывается в начале каждого тика, до обработки новых сигналов.
// Ордер никогда не отправляется повторно - только запрос статуса.
func (l *PositionLedger) Reconcile(ctx context.Context) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, p := range batch {
		report, err := l.gw.QueryOrder(ctx, p.trade.OrderID)
		if err != nil {
			if errors.Is(err, gateway.ErrOrderNotFound) {
				// Брокер подтвердил: ордер не дошёл. Сделку закрываем,
				// позицию (если закрывалась) возвращаем в строй.
				p.trade.Status = models.TradeCancelled
				if uerr := l.trades.Update(ctx, p.trade); uerr != nil {
					l.logger.Error("failed to cancel orphaned trade", zap.Error(uerr))
				}
				if p.position != nil {
					p.position.Status = models.PositionOpen
					if uerr := l.positions.Update(ctx, p.position); uerr != nil {
						l.logger.Error("failed to restore open status", zap.Error(uerr))
					}
					l.publishOpen(p.position)
				}
				continue
			}
			// Связи нет - оставляем на следующий тик
			l.parkPending(p)
			continue
		}

		if report.Status == gateway.StatusPending {
			l.parkPending(p)
			continue
		}

		if p.position != nil {
			if _, ferr := l.finishExit(ctx, p.position, p.trade, report); ferr != nil {
				l.logger.Error("exit reconciliation failed", zap.Error(ferr))
			}
		} else {
			sig := p.signal
			if _, ferr := l.finishEntry(ctx, p.trade, &sig, report); ferr != nil {
				l.logger.Error("entry reconciliation failed", zap.Error(ferr))
			}
		}
	}
}

// PendingCount возвращает число отправок, ждущих сверки
func (l *PositionLedger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// ============================================================
// Аварийное закрытие
// ============================================================

// CloseAll пытается закрыть каждую открытую позицию ровно один раз.
// Неудачи логируются и не прерывают обход остальных позиций.
func (l *PositionLedger) CloseAll(ctx context.Context) (closed, failed int) {
	l.mu.RLock()
	snapshot := make([]*models.Position, 0, len(l.open))
	for _, p := range l.open {
		snapshot = append(snapshot, p)
	}
	l.mu.RUnlock()

	for _, p := range snapshot {
		sig := &models.Signal{
			Action:    models.ActionClose,
			Symbol:    p.Symbol,
			Timestamp: time.Now(),
		}
		outcome, err := l.closePosition(ctx, p, sig)
		if err != nil || outcome.Result != OutcomeClosed {
			failed++
			l.logger.Error("emergency close failed",
				zap.Int64("position_id", p.ID),
				zap.String("symbol", p.Symbol),
				zap.Error(err),
			)
			continue
		}
		closed++
	}
	return closed, failed
}

// ============================================================
// Снапшоты для чтения
// ============================================================

// OpenCount возвращает число открытых позиций
func (l *PositionLedger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.open)
}

// OpenSnapshot возвращает копии открытых позиций
func (l *PositionLedger) OpenSnapshot() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	return out
}

// UpdateMarkPrices обновляет текущие цены открытых позиций
func (l *PositionLedger) UpdateMarkPrices(ctx context.Context) {
	l.mu.RLock()
	symbols := make([]string, 0, len(l.open))
	for s := range l.open {
		symbols = append(symbols, s)
	}
	l.mu.RUnlock()

	for _, s := range symbols {
		price, err := l.gw.MarkPrice(ctx, s)
		if err != nil {
			continue
		}
		l.mu.Lock()
		if p, ok := l.open[s]; ok {
			cp := *p
			cp.CurrentPrice = price
			l.open[s] = &cp
		}
		l.mu.Unlock()
	}
}

// ============================================================
// Внутренние помощники
// ============================================================

// submit отправляет ордер и записывает латентность
func (l *PositionLedger) submit(ctx context.Context, req *gateway.OrderRequest) (*gateway.ExecutionReport, error) {
	start := time.Now()
	report, err := l.gw.Submit(ctx, req)
	elapsed := float64(time.Since(start).Milliseconds())

	status := "error"
	if err == nil {
		status = report.Status
	} else if errors.Is(err, gateway.ErrIndeterminate) {
		status = "indeterminate"
	}
	RecordSubmitLatency(req.Side, status, elapsed)
	return report, err
}

// publishOpen кладёт в карту открытых позиций отделённую копию.
// Дальнейшие правки исходной структуры карту не затрагивают.
func (l *PositionLedger) publishOpen(p *models.Position) {
	cp := *p
	l.mu.Lock()
	l.open[cp.Symbol] = &cp
	count := len(l.open)
	l.mu.Unlock()
	OpenPositions.Set(float64(count))
}

// unpublish убирает позицию из карты открытых
func (l *PositionLedger) unpublish(symbol string) {
	l.mu.Lock()
	delete(l.open, symbol)
	count := len(l.open)
	l.mu.Unlock()
	OpenPositions.Set(float64(count))
}

func (l *PositionLedger) parkPending(p *pendingSubmission) {
	l.mu.Lock()
	l.pending = append(l.pending, p)
	l.mu.Unlock()
}

func (l *PositionLedger) nextClientOrderID(symbol string) string {
	l.seq++
	return fmt.Sprintf("tc-%s-%d-%d", symbol, time.Now().UnixNano(), l.seq)
}

// entryOrderSide возвращает сторону ордера входа
func entryOrderSide(sig *models.Signal) string {
	if sig.Action == models.ActionSell {
		return models.TradeSell
	}
	return models.TradeBuy
}

// exitOrderSide возвращает сторону ордера выхода (встречную позиции)
func exitOrderSide(p *models.Position) string {
	if p.Side == models.SideLong {
		return models.TradeSell
	}
	return models.TradeBuy
}
