package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Причины отказа риск-контроля
const (
	ReasonTooSmall     = "TOO_SMALL"
	ReasonMaxPositions = "MAX_POSITIONS"
	ReasonDailyLoss    = "DAILY_LOSS"
	ReasonBalanceFloor = "BALANCE_FLOOR"
	ReasonNotRunning   = "NOT_RUNNING"
)

// ErrEmergencyCondition - достигнут порог аварийной остановки
var ErrEmergencyCondition = errors.New("emergency stop condition reached")

// Rejection - отказ риск-контроля с машиночитаемой причиной
type Rejection struct {
	Reason  string
	Message string
}

func (r *Rejection) Error() string {
	return r.Reason + ": " + r.Message
}

// Sizing - результат расчёта размера позиции
type Sizing struct {
	Notional float64 // размер в USDT
	Quantity float64 // размер в базовой валюте
}

// RiskGovernor - централизованный контроль риска
//
// Функции:
// - Расчёт размера позиции из риск-профиля и подсказки сигнала
// - Preflight проверки перед каждым входом (лимит позиций, дневной лимит убытка)
// - Отслеживание пикового equity и просадки
// - Сигнал аварийной остановки при превышении порога просадки
//
// Риск-профиль хранится под RWMutex и подменяется целиком (copy-on-write):
// читатели никогда не видят частично обновлённый профиль.
type RiskGovernor struct {
	mu      sync.RWMutex
	profile models.RiskProfile

	peakEquity   float64
	dailyPnl     float64
	dailyAnchor  time.Time // начало текущих торговых суток (UTC)
	balanceFloor float64

	logger *utils.Logger
}

// NewRiskGovernor создаёт контролёр с начальным профилем
func NewRiskGovernor(profile models.RiskProfile, balanceFloor float64, logger *utils.Logger) *RiskGovernor {
	return &RiskGovernor{
		profile:      profile,
		balanceFloor: balanceFloor,
		dailyAnchor:  startOfDayUTC(time.Now()),
		logger:       logger.Named("risk"),
	}
}

// Profile возвращает копию текущего риск-профиля
func (rg *RiskGovernor) Profile() models.RiskProfile {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return rg.profile
}

// UpdateProfile атомарно подменяет риск-профиль.
// Невалидный профиль отклоняется, действующий остаётся в силе.
func (rg *RiskGovernor) UpdateProfile(p models.RiskProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	rg.mu.Lock()
	old := rg.profile
	rg.profile = p
	rg.mu.Unlock()

	rg.logger.Info("risk profile updated",
		zap.Float64("risk_per_trade", p.RiskPerTrade),
		zap.Float64("max_daily_loss", p.MaxDailyLoss),
		zap.Int("max_positions", p.MaxPositions),
		zap.Float64("old_risk_per_trade", old.RiskPerTrade),
	)
	return nil
}

// ============================================================
// Расчёт размера позиции
// ============================================================

// Size рассчитывает размер входа.
//
// Номинал = min(equity * riskPerTrade, available * sizeHint, maxTradeAmount).
// Номинал ниже minTradeAmount - отказ TOO_SMALL: позиция, которую не
// стоит открывать, не открывается вовсе (вместо дотягивания до минимума).
func (rg *RiskGovernor) Size(account *models.AccountSnapshot, sizeHint, price float64) (*Sizing, *Rejection) {
	rg.mu.RLock()
	p := rg.profile
	rg.mu.RUnlock()

	notional := account.Equity * p.RiskPerTrade
	if hinted := account.AvailableBalance * sizeHint; hinted < notional {
		notional = hinted
	}
	notional = utils.ClampNotional(notional, p.MaxTradeAmount)

	if notional < p.MinTradeAmount {
		return nil, &Rejection{
			Reason: ReasonTooSmall,
			Message: fmt.Sprintf("notional %.2f below minimum %.2f USDT",
				notional, p.MinTradeAmount),
		}
	}

	if price <= 0 {
		return nil, &Rejection{
			Reason:  ReasonTooSmall,
			Message: fmt.Sprintf("invalid price %.8f", price),
		}
	}

	return &Sizing{
		Notional: notional,
		Quantity: notional / price,
	}, nil
}

// ============================================================
// Preflight проверки
// ============================================================

// Preflight проверяет допустимость нового входа.
// Возвращает nil если вход разрешён.
func (rg *RiskGovernor) Preflight(account *models.AccountSnapshot, openPositions int) *Rejection {
	rg.mu.RLock()
	p := rg.profile
	dailyPnl := rg.dailyPnl
	floor := rg.balanceFloor
	rg.mu.RUnlock()

	if openPositions >= p.MaxPositions {
		return &Rejection{
			Reason: ReasonMaxPositions,
			Message: fmt.Sprintf("open positions %d at limit %d",
				openPositions, p.MaxPositions),
		}
	}

	if dailyPnl <= -p.MaxDailyLoss {
		return &Rejection{
			Reason: ReasonDailyLoss,
			Message: fmt.Sprintf("daily PnL %.2f breached limit -%.2f USDT",
				dailyPnl, p.MaxDailyLoss),
		}
	}

	if account.AvailableBalance < floor {
		return &Rejection{
			Reason: ReasonBalanceFloor,
			Message: fmt.Sprintf("available balance %.2f below floor %.2f USDT",
				account.AvailableBalance, floor),
		}
	}

	return nil
}

// ============================================================
// Просадка и аварийный порог
// ============================================================

// ObserveEquity обновляет пиковый equity и проверяет порог просадки.
//
// Возвращает ErrEmergencyCondition когда просадка от пика достигла
// emergencyStopLoss. Решение об остановке принимает вызывающая сторона.
func (rg *RiskGovernor) ObserveEquity(equity float64) (drawdown float64, err error) {
	rg.mu.Lock()
	if equity > rg.peakEquity {
		rg.peakEquity = equity
	}
	peak := rg.peakEquity
	threshold := rg.profile.EmergencyStopLoss
	rg.mu.Unlock()

	drawdown = utils.CalculateDrawdown(peak, equity)
	UpdateRiskGauges(equity, drawdown)

	if threshold > 0 && drawdown >= threshold {
		return drawdown, fmt.Errorf("drawdown %.4f >= threshold %.4f: %w",
			drawdown, threshold, ErrEmergencyCondition)
	}
	return drawdown, nil
}

// PeakEquity возвращает максимальный наблюдавшийся equity
func (rg *RiskGovernor) PeakEquity() float64 {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return rg.peakEquity
}

// ============================================================
// Дневной PNL
// ============================================================

// RecordRealizedPnl учитывает реализованный PNL закрытой позиции.
// Счётчик суток сбрасывается при пересечении полуночи UTC.
func (rg *RiskGovernor) RecordRealizedPnl(pnl float64, at time.Time) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.rollDayLocked(at)
	rg.dailyPnl += pnl
}

// DailyPnl возвращает накопленный PNL текущих суток
func (rg *RiskGovernor) DailyPnl() float64 {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.rollDayLocked(time.Now())
	return rg.dailyPnl
}

// rollDayLocked сбрасывает дневной счётчик при смене суток.
// Вызывается под мьютексом.
func (rg *RiskGovernor) rollDayLocked(now time.Time) {
	day := startOfDayUTC(now)
	if day.After(rg.dailyAnchor) {
		rg.dailyAnchor = day
		rg.dailyPnl = 0
	}
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
