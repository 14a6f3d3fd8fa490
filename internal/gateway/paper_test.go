package gateway

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestPaperGatewayFillsMarketOrder(t *testing.T) {
	g := NewPaperGateway(10000, 0.0004)
	g.SetPrice("BTCUSD", 65000)

	report, err := g.Submit(context.Background(), &OrderRequest{
		ClientOrderID: "co-1",
		Symbol:        "BTCUSD",
		Side:          "BUY",
		Quantity:      0.01,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if report.Status != StatusFilled {
		t.Fatalf("status = %s, want FILLED", report.Status)
	}
	if report.FilledQty != 0.01 {
		t.Errorf("filled qty = %.8f, want 0.01", report.FilledQty)
	}
	if report.AvgPrice != 65000 {
		t.Errorf("avg price = %.2f, want 65000", report.AvgPrice)
	}
	wantFees := 0.01 * 65000 * 0.0004
	if math.Abs(report.Fees-wantFees) > 1e-9 {
		t.Errorf("fees = %.6f, want %.6f", report.Fees, wantFees)
	}

	// Доступный баланс уменьшился на нотионал и комиссию
	snap, err := g.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	wantAvailable := 10000 - 0.01*65000 - wantFees
	if math.Abs(snap.AvailableBalance-wantAvailable) > 1e-9 {
		t.Errorf("available = %.6f, want %.6f", snap.AvailableBalance, wantAvailable)
	}
}

func TestPaperGatewayRejections(t *testing.T) {
	tests := []struct {
		name string
		req  OrderRequest
	}{
		{
			name: "unknown symbol",
			req:  OrderRequest{Symbol: "NOPEUSD", Side: "BUY", Quantity: 1},
		},
		{
			name: "zero quantity",
			req:  OrderRequest{Symbol: "BTCUSD", Side: "BUY", Quantity: 0},
		},
		{
			name: "insufficient balance",
			req:  OrderRequest{Symbol: "BTCUSD", Side: "BUY", Quantity: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewPaperGateway(1000, 0)
			g.SetPrice("BTCUSD", 65000)

			report, err := g.Submit(context.Background(), &tt.req)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if report.Status != StatusRejected {
				t.Errorf("status = %s, want REJECTED", report.Status)
			}
		})
	}
}

func TestPaperGatewayQueryOrder(t *testing.T) {
	g := NewPaperGateway(10000, 0)
	g.SetPrice("BTCUSD", 65000)

	report, err := g.Submit(context.Background(), &OrderRequest{
		ClientOrderID: "co-42",
		Symbol:        "BTCUSD",
		Side:          "BUY",
		Quantity:      0.01,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Отчёт доступен и по биржевому, и по клиентскому идентификатору
	for _, id := range []string{report.OrderID, "co-42"} {
		got, err := g.QueryOrder(context.Background(), id)
		if err != nil {
			t.Fatalf("query %s: %v", id, err)
		}
		if got.OrderID != report.OrderID {
			t.Errorf("query %s: order ID = %s, want %s", id, got.OrderID, report.OrderID)
		}
	}

	if _, err := g.QueryOrder(context.Background(), "unknown"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("unknown order: err = %v, want ErrOrderNotFound", err)
	}
}

func TestPaperGatewayFailSubmits(t *testing.T) {
	g := NewPaperGateway(10000, 0)
	g.SetPrice("BTCUSD", 65000)
	g.FailSubmits(2)

	req := &OrderRequest{Symbol: "BTCUSD", Side: "BUY", Quantity: 0.01}

	for i := 0; i < 2; i++ {
		if _, err := g.Submit(context.Background(), req); !IsConnectivity(err) {
			t.Fatalf("attempt %d: err = %v, want connectivity error", i+1, err)
		}
	}

	// Бюджет сбоев исчерпан, следующая отправка проходит
	report, err := g.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit after failures: %v", err)
	}
	if report.Status != StatusFilled {
		t.Errorf("status = %s, want FILLED", report.Status)
	}
}

func TestPaperGatewayMarkPrice(t *testing.T) {
	g := NewPaperGateway(10000, 0)
	g.SetPrice("ETHUSD", 2500)

	price, err := g.MarkPrice(context.Background(), "ETHUSD")
	if err != nil {
		t.Fatalf("mark price: %v", err)
	}
	if price != 2500 {
		t.Errorf("price = %.2f, want 2500", price)
	}

	if _, err := g.MarkPrice(context.Background(), "NOPEUSD"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}
