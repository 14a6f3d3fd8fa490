package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Gateway  GatewayConfig
	Engine   EngineConfig
	Risk     RiskConfig
	Phase    PhaseConfig
	Logging  LoggingConfig
}

// Режимы шлюза исполнения
const (
	GatewayModePaper = "paper"
	GatewayModeLive  = "live"
)

// GatewayConfig - выбор и настройки шлюза исполнения
type GatewayConfig struct {
	Mode          string  // paper или live
	BrokerBaseURL string  // базовый URL брокерского API (только live)
	PaperBalance  float64 // стартовый баланс бумажного счёта
	PaperFeeRate  float64 // комиссия бумажного шлюза
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey    string // AES-256 ключ для брокерских credentials
	OperatorUser     string // basic auth для мутирующих эндпоинтов
	OperatorPassHash string // bcrypt хеш пароля оператора
}

// EngineConfig - настройки управляющего цикла
type EngineConfig struct {
	ControlLoopPeriod  time.Duration // период основного тика
	HeartbeatPeriod    time.Duration // период пульса супервизора
	StaleTickFactor    int           // множитель периода, после которого тик считается зависшим
	MaxRestartAttempts int           // лимит автоматических рестартов цикла
	SignalQueueSize    int           // ёмкость входной очереди сигналов
	EventQueueSize     int           // ёмкость шины событий (drop-oldest)

	GatewayTimeout    time.Duration // таймаут на submit ордера
	DegradedThreshold int           // подряд ошибок связи до статуса DEGRADED
	MinBalanceFloor   float64       // абсолютный пол доступного баланса (preflight)
}

// RiskConfig - параметры риск-профиля по умолчанию
//
// Оператор может подменить профиль через API в любой момент,
// env задаёт только стартовые значения.
type RiskConfig struct {
	RiskPerTrade      float64
	MaxDailyLoss      float64
	MaxAccountRisk    float64
	EmergencyStopLoss float64
	MaxPositions      int
	MinTradeAmount    float64
	MaxTradeAmount    float64
}

// PhaseConfig - настройки контроллера фаз
type PhaseConfig struct {
	Period            time.Duration // период переоценки фазы
	WindowSize        int           // размер скользящего окна сделок
	MinTrades         []int         // минимум сделок для входа в фазу i (индекс = фаза)
	ForceRevertAvgPnl float64       // средний PNL, ниже которого принудительный откат в фазу 0
	ForceRevertMinN   int           // минимальная выборка для принудительного отката
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradecore"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
			OperatorUser:     getEnv("OPERATOR_USER", ""),
			OperatorPassHash: getEnv("OPERATOR_PASS_HASH", ""),
		},
		Gateway: GatewayConfig{
			Mode:          getEnv("GATEWAY_MODE", GatewayModePaper),
			BrokerBaseURL: getEnv("BROKER_BASE_URL", ""),
			PaperBalance:  getEnvAsFloat("PAPER_BALANCE", 10000),
			PaperFeeRate:  getEnvAsFloat("PAPER_FEE_RATE", 0.0004),
		},
		Engine: EngineConfig{
			ControlLoopPeriod:  getEnvAsDuration("CONTROL_LOOP_PERIOD", 30*time.Second),
			HeartbeatPeriod:    getEnvAsDuration("HEARTBEAT_PERIOD", 10*time.Second),
			StaleTickFactor:    getEnvAsInt("STALE_TICK_FACTOR", 3),
			MaxRestartAttempts: getEnvAsInt("MAX_RESTART_ATTEMPTS", 3),
			SignalQueueSize:    getEnvAsInt("SIGNAL_QUEUE_SIZE", 256),
			EventQueueSize:     getEnvAsInt("EVENT_QUEUE_SIZE", 512),

			GatewayTimeout:    getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
			DegradedThreshold: getEnvAsInt("DEGRADED_THRESHOLD", 3),
			MinBalanceFloor:   getEnvAsFloat("MIN_BALANCE_FLOOR", 100),
		},
		Risk: RiskConfig{
			RiskPerTrade:      getEnvAsFloat("RISK_PER_TRADE", 0.02),
			MaxDailyLoss:      getEnvAsFloat("MAX_DAILY_LOSS", 500),
			MaxAccountRisk:    getEnvAsFloat("MAX_ACCOUNT_RISK", 0.10),
			EmergencyStopLoss: getEnvAsFloat("EMERGENCY_STOP_LOSS", 0.20),
			MaxPositions:      getEnvAsInt("MAX_POSITIONS", 5),
			MinTradeAmount:    getEnvAsFloat("MIN_TRADE_AMOUNT", 25),
			MaxTradeAmount:    getEnvAsFloat("MAX_TRADE_AMOUNT", 10000),
		},
		Phase: PhaseConfig{
			Period:            getEnvAsDuration("PHASE_PERIOD", 5*time.Minute),
			WindowSize:        getEnvAsInt("PHASE_WINDOW_SIZE", 200),
			MinTrades:         getEnvAsIntSlice("PHASE_MIN_TRADES", []int{0, 20, 50, 100, 200}),
			ForceRevertAvgPnl: getEnvAsFloat("PHASE_FORCE_REVERT_AVG_PNL", -5),
			ForceRevertMinN:   getEnvAsInt("PHASE_FORCE_REVERT_MIN_N", 30),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// ENCRYPTION_KEY опционален, но если задан - строго 32 байта (AES-256)
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	switch c.Gateway.Mode {
	case GatewayModePaper:
	case GatewayModeLive:
		if c.Gateway.BrokerBaseURL == "" {
			return fmt.Errorf("BROKER_BASE_URL is required when GATEWAY_MODE=live")
		}
		if c.Security.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required when GATEWAY_MODE=live")
		}
	default:
		return fmt.Errorf("GATEWAY_MODE must be %q or %q, got %q",
			GatewayModePaper, GatewayModeLive, c.Gateway.Mode)
	}

	if c.Gateway.PaperBalance <= 0 {
		return fmt.Errorf("PAPER_BALANCE must be positive, got %v", c.Gateway.PaperBalance)
	}

	if c.Engine.ControlLoopPeriod <= 0 {
		return fmt.Errorf("CONTROL_LOOP_PERIOD must be positive, got %v", c.Engine.ControlLoopPeriod)
	}

	if c.Engine.HeartbeatPeriod <= 0 {
		return fmt.Errorf("HEARTBEAT_PERIOD must be positive, got %v", c.Engine.HeartbeatPeriod)
	}

	if c.Engine.StaleTickFactor < 2 {
		return fmt.Errorf("STALE_TICK_FACTOR must be at least 2, got %d", c.Engine.StaleTickFactor)
	}

	if c.Engine.MaxRestartAttempts < 1 || c.Engine.MaxRestartAttempts > 10 {
		return fmt.Errorf("MAX_RESTART_ATTEMPTS must be in [1, 10], got %d", c.Engine.MaxRestartAttempts)
	}

	if c.Engine.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %v", c.Engine.GatewayTimeout)
	}

	if c.Engine.DegradedThreshold < 1 {
		return fmt.Errorf("DEGRADED_THRESHOLD must be at least 1, got %d", c.Engine.DegradedThreshold)
	}

	if c.Phase.Period <= 0 {
		return fmt.Errorf("PHASE_PERIOD must be positive, got %v", c.Phase.Period)
	}

	if c.Phase.WindowSize < 10 {
		return fmt.Errorf("PHASE_WINDOW_SIZE must be at least 10, got %d", c.Phase.WindowSize)
	}

	if len(c.Phase.MinTrades) < 2 {
		return fmt.Errorf("PHASE_MIN_TRADES must define at least 2 phases, got %d", len(c.Phase.MinTrades))
	}

	// Пороги фаз должны быть неубывающими
	for i := 1; i < len(c.Phase.MinTrades); i++ {
		if c.Phase.MinTrades[i] < c.Phase.MinTrades[i-1] {
			return fmt.Errorf("PHASE_MIN_TRADES must be non-decreasing, got %v", c.Phase.MinTrades)
		}
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsIntSlice читает comma-separated список целых чисел
// Пример: PHASE_MIN_TRADES=0,20,50,100,200
func getEnvAsIntSlice(key string, defaultValue []int) []int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		values = append(values, v)
	}
	return values
}
