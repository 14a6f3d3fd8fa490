package handlers

import (
	"context"
	"sync"
	"time"

	"tradecore/internal/config"
	"tradecore/internal/engine"
	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "console"})
}

func testProfile() models.RiskProfile {
	return models.RiskProfile{
		RiskPerTrade:      0.02,
		MaxDailyLoss:      500,
		MaxAccountRisk:    0.10,
		EmergencyStopLoss: 0.20,
		MaxPositions:      5,
		MinTradeAmount:    25,
		MaxTradeAmount:    10000,
	}
}

// ============ In-memory хранилища ============

type stubPositionStore struct {
	mu        sync.Mutex
	nextID    int64
	positions map[int64]*models.Position
}

func newStubPositionStore() *stubPositionStore {
	return &stubPositionStore{positions: make(map[int64]*models.Position)}
}

func (s *stubPositionStore) Create(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *stubPositionStore) Update(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *stubPositionStore) ListOpen(ctx context.Context) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Position
	for _, p := range s.positions {
		if p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubTradeStore struct {
	mu     sync.Mutex
	nextID int64
}

func (s *stubTradeStore) Create(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	return nil
}

func (s *stubTradeStore) Update(ctx context.Context, t *models.Trade) error {
	return nil
}

func (s *stubTradeStore) ListPending(ctx context.Context) ([]*models.Trade, error) {
	return nil, nil
}

type stubPhaseStore struct {
	mu    sync.Mutex
	state *models.PhaseState
}

func (s *stubPhaseStore) Save(ctx context.Context, state *models.PhaseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.state = &cp
	return nil
}

func (s *stubPhaseStore) Load(ctx context.Context) (*models.PhaseState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

// ============ Движок для handler-тестов ============

type engineFixture struct {
	engine   *engine.Engine
	governor *engine.RiskGovernor
	ledger   *engine.PositionLedger
	phase    *engine.PhaseController
}

func newEngineFixture() *engineFixture {
	logger := testLogger()
	cfg := config.EngineConfig{
		ControlLoopPeriod:  time.Hour,
		HeartbeatPeriod:    time.Hour,
		StaleTickFactor:    3,
		MaxRestartAttempts: 3,
		SignalQueueSize:    8,
		EventQueueSize:     16,
		GatewayTimeout:     50 * time.Millisecond,
		DegradedThreshold:  3,
		MinBalanceFloor:    100,
	}

	paper := gateway.NewPaperGateway(10000, 0)
	timeoutGW := gateway.NewTimeoutGateway(paper, cfg.GatewayTimeout)
	bus := engine.NewEventBus(cfg.EventQueueSize)
	governor := engine.NewRiskGovernor(testProfile(), cfg.MinBalanceFloor, logger)
	ledger := engine.NewPositionLedger(timeoutGW, governor, newStubPositionStore(), &stubTradeStore{}, bus, logger)
	eng := engine.NewEngine(cfg, ledger, governor, timeoutGW, timeoutGW, bus, logger)

	phaseCfg := config.PhaseConfig{
		Period:            time.Minute,
		WindowSize:        200,
		MinTrades:         []int{0, 20, 50, 100, 200},
		ForceRevertAvgPnl: -5,
		ForceRevertMinN:   30,
	}
	phase := engine.NewPhaseController(phaseCfg, &stubPhaseStore{}, bus, logger)

	return &engineFixture{engine: eng, governor: governor, ledger: ledger, phase: phase}
}
