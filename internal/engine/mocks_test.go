package engine

import (
	"context"
	"sync"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// ============================================================
// In-memory хранилища для тестов
// ============================================================

type memPositionStore struct {
	mu        sync.Mutex
	seq       int64
	positions map[int64]*models.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[int64]*models.Position)}
}

func (s *memPositionStore) Create(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = s.seq
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *memPositionStore) Update(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *memPositionStore) ListOpen(ctx context.Context) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Position
	for _, p := range s.positions {
		if p.Status == models.PositionOpen || p.Status == models.PositionClosing {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memPositionStore) get(id int64) *models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[id]
}

type memTradeStore struct {
	mu     sync.Mutex
	seq    int64
	trades map[int64]*models.Trade
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{trades: make(map[int64]*models.Trade)}
}

func (s *memTradeStore) Create(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t.ID = s.seq
	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *memTradeStore) Update(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.trades[t.ID] = &cp
	return nil
}

func (s *memTradeStore) ListPending(ctx context.Context) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Trade
	for _, t := range s.trades {
		if t.Status == models.TradePending {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memTradeStore) get(id int64) *models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades[id]
}

type memPhaseStore struct {
	mu    sync.Mutex
	state *models.PhaseState
}

func (s *memPhaseStore) Save(ctx context.Context, st *models.PhaseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.state = &cp
	return nil
}

func (s *memPhaseStore) Load(ctx context.Context) (*models.PhaseState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

// ============================================================
// Общие помощники
// ============================================================

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

func testAccount(equity, available float64) *models.AccountSnapshot {
	return &models.AccountSnapshot{
		Equity:           equity,
		AvailableBalance: available,
	}
}
