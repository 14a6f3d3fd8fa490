package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - настройка структурированного логирования (zap)
//
// Назначение:
// Единая точка создания logger'а для всех компонентов.
// Формат JSON в production, text для разработки.
// Уровни: DEBUG, INFO, WARN, ERROR, FATAL.

// LogConfig - конфигурация логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто = stdout
	Development bool   // человекочитаемый вывод, caller, stacktrace на warn
}

// Logger оборачивает zap.Logger вместе с sugared вариантом
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создаёт и настраивает logger
//
// Никогда не возвращает nil: при некорректной конфигурации
// откатывается на безопасные значения по умолчанию (info, json, stdout).
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	var encoderCfg zapcore.EncoderConfig
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "text", "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stdout)
	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// При ошибке открытия файла остаёмся на stdout -
		// потеря логов хуже неправильного назначения
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// parseLevel преобразует строку в zap уровень
//
// Неизвестный уровень = info (безопасный default)
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sugar возвращает sugared logger для printf-style вызовов
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Named возвращает дочерний logger с именем компонента
func (l *Logger) Named(name string) *Logger {
	child := l.Logger.Named(name)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// Sync сбрасывает буферизованные записи
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
