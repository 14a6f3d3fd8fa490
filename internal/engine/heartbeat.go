package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// HeartbeatSupervisor следит за живостью управляющего цикла.
//
// Пульс идёт на собственном таймере, независимо от цикла: зависший
// цикл не может помешать собственной диагностике. Возраст последнего
// тика сравнивается по монотонным часам.
//
// Зависший цикл перезапускается ограниченное число раз. Исчерпанный
// бюджет рестартов - аварийная остановка, из которой движок выводится
// только вручную.
type HeartbeatSupervisor struct {
	engine *Engine
	cfg    config.EngineConfig
	bus    *EventBus
	logger *utils.Logger

	restartAttempts int
}

// NewHeartbeatSupervisor создаёт супервизор для движка
func NewHeartbeatSupervisor(engine *Engine, cfg config.EngineConfig, bus *EventBus, logger *utils.Logger) *HeartbeatSupervisor {
	return &HeartbeatSupervisor{
		engine: engine,
		cfg:    cfg,
		bus:    bus,
		logger: logger.Named("supervisor"),
	}
}

// StaleThreshold возвращает возраст тика, после которого цикл считается зависшим
func (hs *HeartbeatSupervisor) StaleThreshold() time.Duration {
	return time.Duration(hs.cfg.StaleTickFactor) * hs.cfg.ControlLoopPeriod
}

// Run запускает пульс супервизора
func (hs *HeartbeatSupervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(hs.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.Pulse(ctx)
		}
	}
}

// Pulse - одна проверка живости.
// Вынесена отдельно, чтобы тесты могли пульсировать без таймера.
func (hs *HeartbeatSupervisor) Pulse(ctx context.Context) {
	if hs.engine.State() != models.EngineRunning {
		// Остановленный движок не диагностируется, бюджет сбрасывается
		hs.restartAttempts = 0
		return
	}

	age := time.Since(hs.engine.LastTick())
	if age <= hs.StaleThreshold() {
		hs.restartAttempts = 0
		return
	}

	if hs.restartAttempts >= hs.cfg.MaxRestartAttempts {
		reason := fmt.Sprintf("control loop stale for %s, %d restart attempts exhausted",
			age.Round(time.Second), hs.restartAttempts)
		hs.engine.EmergencyStop(ctx, reason)
		hs.restartAttempts = 0
		return
	}

	hs.restartAttempts++
	hs.logger.Warn("control loop stale, restarting",
		zap.Duration("tick_age", age),
		zap.Int("attempt", hs.restartAttempts),
		zap.Int("max_attempts", hs.cfg.MaxRestartAttempts),
	)

	if err := hs.engine.restartLoop(); err != nil {
		hs.logger.Error("control loop restart failed", zap.Error(err))
		return
	}

	hs.bus.Publish(models.Notification{
		Type:     models.NotificationTypeRestart,
		Severity: models.SeverityWarn,
		Message: fmt.Sprintf("Control loop restarted (attempt %d/%d), tick age %s",
			hs.restartAttempts, hs.cfg.MaxRestartAttempts, age.Round(time.Second)),
		Meta: map[string]interface{}{
			"attempt":  hs.restartAttempts,
			"tick_age": age.String(),
		},
	})
}

// RestartAttempts возвращает число рестартов с последнего здорового тика
func (hs *HeartbeatSupervisor) RestartAttempts() int {
	return hs.restartAttempts
}
