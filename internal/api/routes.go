package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradecore/internal/api/handlers"
	"tradecore/internal/api/middleware"
	"tradecore/internal/engine"
	"tradecore/internal/repository"
	"tradecore/internal/websocket"
	"tradecore/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine           *engine.Engine
	Ledger           *engine.PositionLedger
	Governor         *engine.RiskGovernor
	Phase            *engine.PhaseController
	PositionRepo     *repository.PositionRepository
	NotificationRepo *repository.NotificationRepository
	Hub              *websocket.Hub
	Logger           *utils.Logger

	OperatorUser     string
	OperatorPassHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET  /status        - статус движка
//	├── GET  /positions     - открытые позиции
//	├── GET  /positions/history - история позиций
//	├── GET  /notifications - журнал событий
//	├── GET  /phase         - фаза автоматизации
//	├── GET  /risk-profile  - действующий риск-профиль
//	├── PUT  /risk-profile  - подмена риск-профиля (auth)
//	├── POST /signals       - приём сигнала (auth)
//	├── POST /start         - запуск движка (auth)
//	├── POST /stop          - остановка движка (auth)
//	└── POST /rearm         - ввод в строй после аварии (auth)
//
// /ws/stream - WebSocket для real-time событий
// /metrics   - Prometheus метрики
//
// Middleware: Recovery -> Logging -> CORS глобально,
// BasicAuth только на мутирующих маршрутах.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS)

	engineHandler := handlers.NewEngineHandler(deps.Engine)
	positionHandler := handlers.NewPositionHandler(deps.Ledger, deps.PositionRepo)
	riskHandler := handlers.NewRiskHandler(deps.Governor)
	phaseHandler := handlers.NewPhaseHandler(deps.Phase)
	notificationHandler := handlers.NewNotificationHandler(deps.NotificationRepo)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Читающие маршруты
	api.HandleFunc("/status", engineHandler.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/positions", positionHandler.GetOpen).Methods(http.MethodGet)
	api.HandleFunc("/positions/history", positionHandler.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods(http.MethodGet)
	api.HandleFunc("/phase", phaseHandler.GetPhase).Methods(http.MethodGet)
	api.HandleFunc("/risk-profile", riskHandler.GetProfile).Methods(http.MethodGet)

	// Мутирующие маршруты под аутентификацией оператора
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.BasicAuth(deps.OperatorUser, deps.OperatorPassHash))
	protected.HandleFunc("/risk-profile", riskHandler.UpdateProfile).Methods(http.MethodPut)
	protected.HandleFunc("/signals", engineHandler.SubmitSignal).Methods(http.MethodPost)
	protected.HandleFunc("/start", engineHandler.Start).Methods(http.MethodPost)
	protected.HandleFunc("/stop", engineHandler.Stop).Methods(http.MethodPost)
	protected.HandleFunc("/rearm", engineHandler.Rearm).Methods(http.MethodPost)

	// WebSocket для операторского UI
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS)
	}

	// Prometheus
	router.Handle("/metrics", promhttp.Handler())

	return router
}
