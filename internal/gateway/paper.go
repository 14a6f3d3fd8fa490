package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PaperGateway - детерминированный шлюз для dev-режима и тестов.
//
// Исполняет рыночные ордера мгновенно по заданной цене, ведёт
// внутренний счёт и хранит отчёты для QueryOrder. Поведение (отказ,
// таймаут) можно подменить через FailSubmits / DelaySubmits.
type PaperGateway struct {
	mu sync.Mutex

	equity    float64
	available float64
	feeRate   float64
	prices    map[string]float64
	orders    map[string]*ExecutionReport
	seq       int64

	failSubmits  int           // сколько следующих Submit вернут ошибку связи
	delaySubmits time.Duration // искусственная задержка Submit
}

// NewPaperGateway создаёт бумажный шлюз с начальным балансом
func NewPaperGateway(initialBalance, feeRate float64) *PaperGateway {
	return &PaperGateway{
		equity:    initialBalance,
		available: initialBalance,
		feeRate:   feeRate,
		prices:    make(map[string]float64),
		orders:    make(map[string]*ExecutionReport),
	}
}

func (g *PaperGateway) Name() string {
	return "paper"
}

// SetPrice задаёт текущую цену инструмента
func (g *PaperGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// FailSubmits заставляет следующие n вызовов Submit вернуть ошибку связи
func (g *PaperGateway) FailSubmits(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSubmits = n
}

// DelaySubmits добавляет искусственную задержку перед исполнением
func (g *PaperGateway) DelaySubmits(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delaySubmits = d
}

func (g *PaperGateway) Submit(ctx context.Context, req *OrderRequest) (*ExecutionReport, error) {
	g.mu.Lock()
	delay := g.delaySubmits
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failSubmits > 0 {
		g.failSubmits--
		return nil, &GatewayError{Gateway: "paper", Op: "submit", Original: fmt.Errorf("simulated connectivity failure")}
	}

	price, ok := g.prices[req.Symbol]
	if !ok || price <= 0 {
		report := g.newReport(req, StatusRejected, 0, 0)
		return report, nil
	}

	if req.Quantity <= 0 {
		report := g.newReport(req, StatusRejected, 0, 0)
		return report, nil
	}

	notional := req.Quantity * price
	fees := notional * g.feeRate

	if !req.ReduceOnly {
		if notional+fees > g.available {
			report := g.newReport(req, StatusRejected, 0, 0)
			return report, nil
		}
		g.available -= notional + fees
	} else {
		g.available += notional - fees
	}
	g.equity -= fees

	report := g.newReport(req, StatusFilled, req.Quantity, price)
	report.Fees = fees
	return report, nil
}

func (g *PaperGateway) QueryOrder(ctx context.Context, orderID string) (*ExecutionReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	report, ok := g.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return report, nil
}

func (g *PaperGateway) Balance(ctx context.Context) (*AccountSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return &AccountSnapshot{
		Equity:           g.equity,
		AvailableBalance: g.available,
		Timestamp:        time.Now(),
	}, nil
}

func (g *PaperGateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[symbol]
	if !ok {
		return 0, &GatewayError{Gateway: "paper", Op: "mark_price", Original: fmt.Errorf("unknown symbol %s", symbol)}
	}
	return price, nil
}

func (g *PaperGateway) Close() error {
	return nil
}

// newReport создаёт отчёт и запоминает его для QueryOrder.
// Вызывается под мьютексом.
func (g *PaperGateway) newReport(req *OrderRequest, status string, qty, price float64) *ExecutionReport {
	g.seq++
	report := &ExecutionReport{
		OrderID:   fmt.Sprintf("paper-%d", g.seq),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Status:    status,
		FilledQty: qty,
		AvgPrice:  price,
		Timestamp: time.Now(),
	}
	g.orders[report.OrderID] = report
	if req.ClientOrderID != "" {
		g.orders[req.ClientOrderID] = report
	}
	return report
}
