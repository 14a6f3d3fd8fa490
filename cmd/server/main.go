package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/api"
	"tradecore/internal/config"
	"tradecore/internal/engine"
	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/internal/repository"
	"tradecore/internal/websocket"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Логгер
	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	// База данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	positionRepo := repository.NewPositionRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	phaseRepo := repository.NewPhaseRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Брокерские ключи расшифровываются на старте: если ciphertext
	// побит или ключ не тот, процесс не должен доживать до первого ордера
	var creds *gateway.BrokerCredentials
	if cfg.Security.EncryptionKey != "" {
		switch c, err := gateway.LoadBrokerCredentials(cfg.Security.EncryptionKey); {
		case err == nil:
			creds = c
			logger.Info("broker credentials loaded")
		case errors.Is(err, gateway.ErrCredentialsNotConfigured):
			logger.Info("broker credentials not configured, paper mode only")
		default:
			logger.Fatal("failed to load broker credentials", zap.Error(err))
		}
	}

	// Шлюз исполнения: базовая реализация -> таймаут -> retry читающих
	// операций. Счётчик сбоев связи живёт в таймаут-обёртке.
	base, err := buildGateway(cfg, creds)
	if err != nil {
		logger.Fatal("failed to build execution gateway", zap.Error(err))
	}
	timeoutGW := gateway.NewTimeoutGateway(base, cfg.Engine.GatewayTimeout)
	gw := gateway.NewRetryGateway(timeoutGW, retry.QueryConfig())
	logger.Info("execution gateway ready", zap.String("mode", cfg.Gateway.Mode))

	// Шина событий и WebSocket hub
	bus := engine.NewEventBus(cfg.Engine.EventQueueSize)
	hub := websocket.NewHub(logger)
	go hub.Run()
	go hub.ForwardEvents(bus.Subscribe())
	go journalEvents(bus.Subscribe(), notificationRepo, logger)

	// Риск-контроль
	profile := models.RiskProfile{
		RiskPerTrade:      cfg.Risk.RiskPerTrade,
		MaxDailyLoss:      cfg.Risk.MaxDailyLoss,
		MaxAccountRisk:    cfg.Risk.MaxAccountRisk,
		EmergencyStopLoss: cfg.Risk.EmergencyStopLoss,
		MaxPositions:      cfg.Risk.MaxPositions,
		MinTradeAmount:    cfg.Risk.MinTradeAmount,
		MaxTradeAmount:    cfg.Risk.MaxTradeAmount,
	}
	if err := profile.Validate(); err != nil {
		logger.Fatal("invalid risk profile in config", zap.Error(err))
	}
	governor := engine.NewRiskGovernor(profile, cfg.Engine.MinBalanceFloor, logger)

	// Ядро
	ledger := engine.NewPositionLedger(gw, governor, positionRepo, tradeRepo, bus, logger)
	eng := engine.NewEngine(cfg.Engine, ledger, governor, gw, timeoutGW, bus, logger)

	phase := engine.NewPhaseController(cfg.Phase, phaseRepo, bus, logger)
	ledger.SetClosedCallback(phase.Record)

	supervisor := engine.NewHeartbeatSupervisor(eng, cfg.Engine, bus, logger)

	// Фоновые задачи
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	phase.Recover(rootCtx)
	go phase.Run(rootCtx)
	go supervisor.Run(rootCtx)

	// Запуск движка: восстановление открытых позиций и управляющий цикл
	if err := eng.Start(rootCtx); err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	// HTTP API
	router := api.SetupRoutes(&api.Dependencies{
		Engine:           eng,
		Ledger:           ledger,
		Governor:         governor,
		Phase:            phase,
		PositionRepo:     positionRepo,
		NotificationRepo: notificationRepo,
		Hub:              hub,
		Logger:           logger,
		OperatorUser:     cfg.Security.OperatorUser,
		OperatorPassHash: cfg.Security.OperatorPassHash,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Сначала движок: текущий тик дорабатывает, новые сигналы не принимаются
	if eng.State() == models.EngineRunning {
		if err := eng.Stop("process shutdown"); err != nil {
			logger.Error("engine stop failed", zap.Error(err))
		}
	}
	rootCancel()

	if err := gw.Close(); err != nil {
		logger.Error("gateway close failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// journalEvents пишет события шины в журнал уведомлений.
// Ошибка записи не должна валить поток событий: логируем и едем дальше.
// buildGateway выбирает реализацию шлюза исполнения по конфигу.
// Live-режим требует расшифрованных брокерских ключей.
func buildGateway(cfg *config.Config, creds *gateway.BrokerCredentials) (gateway.Gateway, error) {
	switch cfg.Gateway.Mode {
	case config.GatewayModeLive:
		if creds == nil {
			return nil, gateway.ErrCredentialsNotConfigured
		}
		return gateway.NewRESTGateway(cfg.Gateway.BrokerBaseURL, *creds), nil
	default:
		return gateway.NewPaperGateway(cfg.Gateway.PaperBalance, cfg.Gateway.PaperFeeRate), nil
	}
}

func journalEvents(events <-chan models.Notification, repo *repository.NotificationRepository, logger *utils.Logger) {
	for n := range events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := repo.Create(ctx, &n); err != nil {
			logger.Error("failed to journal event",
				zap.String("type", n.Type),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
