package gateway

import (
	"context"
	"errors"

	"tradecore/pkg/retry"
)

// RetryGateway повторяет читающие операции шлюза с backoff.
//
// Retry применяется ТОЛЬКО к запросам без побочных эффектов: баланс,
// цена, статус ордера. Submit проходит насквозь без повторов -
// не более одной отправки на принятый сигнал, судьба таймаутнувшего
// ордера выясняется через QueryOrder.
type RetryGateway struct {
	inner Gateway
	cfg   retry.Config
}

// NewRetryGateway создаёт обёртку с retry для читающих операций
func NewRetryGateway(inner Gateway, cfg retry.Config) *RetryGateway {
	cfg.RetryIf = retriableQuery
	return &RetryGateway{inner: inner, cfg: cfg}
}

func (g *RetryGateway) Name() string {
	return g.inner.Name()
}

// Submit отправляет ордер ровно один раз, без повторов
func (g *RetryGateway) Submit(ctx context.Context, req *OrderRequest) (*ExecutionReport, error) {
	return g.inner.Submit(ctx, req)
}

func (g *RetryGateway) QueryOrder(ctx context.Context, orderID string) (*ExecutionReport, error) {
	return retry.DoWithResult(ctx, func() (*ExecutionReport, error) {
		return g.inner.QueryOrder(ctx, orderID)
	}, g.cfg)
}

func (g *RetryGateway) Balance(ctx context.Context) (*AccountSnapshot, error) {
	return retry.DoWithResult(ctx, func() (*AccountSnapshot, error) {
		return g.inner.Balance(ctx)
	}, g.cfg)
}

func (g *RetryGateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return retry.DoWithResult(ctx, func() (float64, error) {
		return g.inner.MarkPrice(ctx, symbol)
	}, g.cfg)
}

func (g *RetryGateway) Close() error {
	return g.inner.Close()
}

// retriableQuery не повторяет подтверждённые ответы брокера и отмену
// вызывающего контекста. Истёкший таймаут отдельной попытки (его
// навешивает обёртка с таймаутом) - это сбой связи, ради которого
// retry и существует; исчерпание родительского контекста останавливает
// цикл повторов между попытками.
func retriableQuery(err error) bool {
	if errors.Is(err, ErrOrderNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !errors.Is(err, context.Canceled)
}
