package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradecore/pkg/retry"
)

// countingGateway считает вызовы и отдаёт заранее заданные ошибки
type countingGateway struct {
	submits int
	queries int

	queryErrs []error // ошибки первых вызовов QueryOrder, затем успех
	submitErr error
}

func (g *countingGateway) Name() string { return "counting" }

func (g *countingGateway) Submit(ctx context.Context, req *OrderRequest) (*ExecutionReport, error) {
	g.submits++
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	return &ExecutionReport{OrderID: "ord-1", Status: StatusFilled, Timestamp: time.Now()}, nil
}

func (g *countingGateway) QueryOrder(ctx context.Context, orderID string) (*ExecutionReport, error) {
	g.queries++
	if g.queries <= len(g.queryErrs) {
		return nil, g.queryErrs[g.queries-1]
	}
	return &ExecutionReport{OrderID: orderID, Status: StatusFilled, Timestamp: time.Now()}, nil
}

func (g *countingGateway) Balance(ctx context.Context) (*AccountSnapshot, error) {
	return &AccountSnapshot{Equity: 10000, AvailableBalance: 10000, Timestamp: time.Now()}, nil
}

func (g *countingGateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	return 65000, nil
}

func (g *countingGateway) Close() error { return nil }

func fastRetryConfig() retry.Config {
	cfg := retry.QueryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestRetryGatewaySubmitNeverRetried(t *testing.T) {
	inner := &countingGateway{
		submitErr: &GatewayError{Gateway: "counting", Op: "submit", Original: errors.New("dial timeout")},
	}
	g := NewRetryGateway(inner, fastRetryConfig())

	_, err := g.Submit(context.Background(), &OrderRequest{Symbol: "BTCUSD", Side: "BUY", Quantity: 0.01})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.submits != 1 {
		t.Fatalf("submit attempts = %d, want exactly 1", inner.submits)
	}
}

func TestRetryGatewayQueryRetriedOnConnectivity(t *testing.T) {
	connErr := &GatewayError{Gateway: "counting", Op: "query", Original: errors.New("connection reset")}
	inner := &countingGateway{queryErrs: []error{connErr, connErr}}
	g := NewRetryGateway(inner, fastRetryConfig())

	report, err := g.QueryOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if report.Status != StatusFilled {
		t.Errorf("status = %s, want FILLED", report.Status)
	}
	if inner.queries != 3 {
		t.Errorf("query attempts = %d, want 3", inner.queries)
	}
}

func TestRetryGatewayNotFoundNotRetried(t *testing.T) {
	inner := &countingGateway{queryErrs: []error{ErrOrderNotFound, ErrOrderNotFound, ErrOrderNotFound}}
	g := NewRetryGateway(inner, fastRetryConfig())

	_, err := g.QueryOrder(context.Background(), "ord-1")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
	if inner.queries != 1 {
		t.Errorf("query attempts = %d, want exactly 1 (not-found is final)", inner.queries)
	}
}

func TestRetryGatewayAttemptTimeoutRetried(t *testing.T) {
	// Таймаут отдельной попытки приходит как DeadlineExceeded от
	// обёртки с таймаутом - это сбой связи, а не приговор всей серии
	inner := &countingGateway{queryErrs: []error{context.DeadlineExceeded}}
	g := NewRetryGateway(inner, fastRetryConfig())

	report, err := g.QueryOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if report.Status != StatusFilled {
		t.Errorf("status = %s, want FILLED", report.Status)
	}
	if inner.queries != 2 {
		t.Errorf("query attempts = %d, want 2 (retry after attempt timeout)", inner.queries)
	}
}

func TestRetryGatewayContextCancelStopsRetries(t *testing.T) {
	connErr := &GatewayError{Gateway: "counting", Op: "query", Original: errors.New("connection reset")}
	inner := &countingGateway{queryErrs: []error{connErr, connErr, connErr, connErr}}
	g := NewRetryGateway(inner, fastRetryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.QueryOrder(ctx, "ord-1"); err == nil {
		t.Fatal("expected error with cancelled context")
	}
	if inner.queries > 1 {
		t.Errorf("query attempts = %d, want at most 1 after cancellation", inner.queries)
	}
}
