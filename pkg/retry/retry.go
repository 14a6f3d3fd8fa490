package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config задаёт экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) ± jitter.
// Jitter разводит по времени одновременные повторы к брокеру.
type Config struct {
	// MaxRetries - число попыток всего, включая первую.
	// 0 или меньше = без лимита
	MaxRetries int

	// InitialDelay - пауза после первой неудачной попытки
	InitialDelay time.Duration

	// MaxDelay - потолок паузы
	MaxDelay time.Duration

	// Multiplier - рост паузы между попытками
	Multiplier float64

	// JitterFactor - доля случайной вариации паузы (0..1)
	JitterFactor float64

	// RetryIf решает, повторять ли после данной ошибки.
	// nil = повторять любую
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором, для логирования
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig - профиль для записи состояния и прочих некритичных
// по латентности операций: 4 попытки, паузы 100ms/200ms/400ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// QueryConfig - профиль для читающих запросов к брокеру (баланс, цена,
// статус ордера). Повтор чтения безопасен, а ответ нужен быстро:
// 3 попытки, паузы 250ms/500ms
func QueryConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// DoWithResult выполняет операцию с повторами и возвращает её результат.
//
//	price, err := retry.DoWithResult(ctx, func() (float64, error) {
//	    return gw.MarkPrice(ctx, symbol)
//	}, retry.QueryConfig())
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var zero T
	var lastErr error

	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		// Отменённый контекст - не начинаем следующую попытку
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}

		select {
		case <-time.After(d):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Do - вариант DoWithResult для операций без результата
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// RetryIfNotContext не повторяет после отмены или дедлайна контекста
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError помечает ошибку как окончательную для RetryIf
// через errors.As
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent оборачивает ошибку, после которой повторять бессмысленно
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent сообщает, помечена ли ошибка как окончательная
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
