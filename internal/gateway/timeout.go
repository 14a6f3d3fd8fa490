package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// TimeoutGateway оборачивает шлюз, навешивая таймауты и учёт сбоев связи.
//
// Подряд идущие сбои считаются атомарным счётчиком - движок читает его,
// чтобы решить, переходить ли в деградированный режим. Любой успешный
// вызов сбрасывает счётчик.
type TimeoutGateway struct {
	inner    Gateway
	timeout  time.Duration
	failures atomic.Int64
}

// NewTimeoutGateway создаёт обёртку с заданным таймаутом на операцию
func NewTimeoutGateway(inner Gateway, timeout time.Duration) *TimeoutGateway {
	return &TimeoutGateway{
		inner:   inner,
		timeout: timeout,
	}
}

func (g *TimeoutGateway) Name() string {
	return g.inner.Name()
}

// Submit отправляет ордер с таймаутом.
// Истёкший таймаут и отмена контекста превращаются в ErrIndeterminate:
// запрос мог дойти до брокера, судьба ордера неизвестна, и повторная
// отправка того же запроса запрещена.
func (g *TimeoutGateway) Submit(ctx context.Context, req *OrderRequest) (*ExecutionReport, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	report, err := g.inner.Submit(ctx, req)
	if err != nil {
		g.recordFailure(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrIndeterminate
		}
		return nil, err
	}

	g.failures.Store(0)
	return report, nil
}

func (g *TimeoutGateway) QueryOrder(ctx context.Context, orderID string) (*ExecutionReport, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	report, err := g.inner.QueryOrder(ctx, orderID)
	if err != nil {
		g.recordFailure(err)
		return nil, err
	}

	g.failures.Store(0)
	return report, nil
}

func (g *TimeoutGateway) Balance(ctx context.Context) (*AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	snap, err := g.inner.Balance(ctx)
	if err != nil {
		g.recordFailure(err)
		return nil, err
	}

	g.failures.Store(0)
	return snap, nil
}

func (g *TimeoutGateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	price, err := g.inner.MarkPrice(ctx, symbol)
	if err != nil {
		g.recordFailure(err)
		return 0, err
	}

	g.failures.Store(0)
	return price, nil
}

func (g *TimeoutGateway) Close() error {
	return g.inner.Close()
}

// ConsecutiveFailures возвращает число подряд идущих сбоев связи
func (g *TimeoutGateway) ConsecutiveFailures() int {
	return int(g.failures.Load())
}

// recordFailure увеличивает счётчик только для сбоев связи.
// Отказ брокера (REJECTED) - это ответ, а не сбой.
func (g *TimeoutGateway) recordFailure(err error) {
	if IsConnectivity(err) {
		g.failures.Add(1)
	}
}
