package websocket

import (
	"testing"
	"time"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "console"})
}

func newTestClient(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, clientSendBufferSize)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestOriginCheckerCheck(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // не-браузерные клиенты без Origin
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"http://localhost:8080", false},
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginCheckerAllowAll(t *testing.T) {
	checker := &OriginChecker{allowAll: true}

	for _, origin := range []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	} {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.unregister <- client
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	if _, ok := <-client.send; ok {
		t.Error("send channel not closed after unregister")
	}
}

func TestHubBroadcastDelivers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.BroadcastStatus(models.EngineStatus{State: models.EngineRunning, OpenPositions: 2})

	select {
	case raw := <-client.send:
		var msg StatusMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v (raw: %s)", err, raw)
		}
		if msg.Type != "status" {
			t.Errorf("type = %q, want status", msg.Type)
		}
		if msg.Data.State != models.EngineRunning || msg.Data.OpenPositions != 2 {
			t.Errorf("data = %+v", msg.Data)
		}
		if raw[len(raw)-1] == '\n' {
			t.Error("message carries trailing newline")
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestHubBroadcastTypedMessages(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.BroadcastPositions([]models.Position{{Symbol: "ETHUSD", Side: models.SideShort, Status: models.PositionOpen}})
	hub.BroadcastPhase(models.PhaseState{Phase: 2, Readiness: 0.71})

	var positions PositionsMessage
	if err := json.Unmarshal(<-client.send, &positions); err != nil {
		t.Fatalf("positions unmarshal: %v", err)
	}
	if positions.Type != "positions" || len(positions.Data) != 1 || positions.Data[0].Symbol != "ETHUSD" {
		t.Errorf("positions message = %+v", positions)
	}

	var phase PhaseMessage
	if err := json.Unmarshal(<-client.send, &phase); err != nil {
		t.Fatalf("phase unmarshal: %v", err)
	}
	if phase.Type != "phase" || phase.Data.Phase != 2 {
		t.Errorf("phase message = %+v", phase)
	}
}

func TestHubSlowClientEvicted(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	slow := newTestClient(hub)
	hub.register <- slow
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	// Клиент не вычитывает буфер: после переполнения его отключают
	for i := 0; i < clientSendBufferSize+8; i++ {
		hub.BroadcastEvent(models.Notification{Type: models.NotificationTypeOpen})
	}

	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHubForwardEvents(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	events := make(chan models.Notification, 1)
	go hub.ForwardEvents(events)

	events <- models.Notification{
		Type:     models.NotificationTypeClose,
		Severity: models.SeverityInfo,
		Symbol:   "BTCUSD",
		Message:  "closed LONG BTCUSD",
	}
	close(events)

	select {
	case raw := <-client.send:
		var msg EventMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "event" || msg.Data.Symbol != "BTCUSD" {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestClientReturnToPoolRecreatesChannel(t *testing.T) {
	client := clientPool.Get().(*Client)
	close(client.send)

	client.returnToPool()

	reused := clientPool.Get().(*Client)
	// Hub закрывает send при unregister: закрытый канал из пула
	// уронил бы broadcast паникой при следующей записи
	select {
	case _, ok := <-reused.send:
		if !ok {
			t.Fatal("pooled client handed out a closed send channel")
		}
	default:
	}
	reused.send <- []byte("ok")
}
