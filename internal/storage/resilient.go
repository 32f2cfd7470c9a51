package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/sony/gobreaker"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// ResilienceConfig tunes the retry and circuit breaker around a backend.
type ResilienceConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// MaxFailures consecutive failures open the breaker.
	MaxFailures  uint32
	OpenTimeout  time.Duration
	Logger       *slog.Logger
}

// DefaultResilienceConfig retries three times from 50ms and opens the
// breaker for 30s after five consecutive failures.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxFailures:  5,
		OpenTimeout:  30 * time.Second,
	}
}

// ResilientStore retries transient backend errors and stops calling a
// failing backend once the breaker opens. ErrNotFound is never retried and
// does not count as a failure.
type ResilientStore struct {
	origin   Store
	breaker  *gobreaker.CircuitBreaker
	retryCfg retry.Config
}

// NewResilientStore wraps origin. Zero fields of cfg take the defaults.
func NewResilientStore(origin Store, cfg ResilienceConfig) *ResilientStore {
	def := DefaultResilienceConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "conversation-store",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &ResilientStore{
		origin:  origin,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retryCfg: retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// BreakerState reports the breaker state, e.g. "closed" or "open".
func (s *ResilientStore) BreakerState() string {
	return s.breaker.State().String()
}

// guard runs fn through the breaker with retries. Permanent errors end the
// retry loop early and are returned unchanged.
func guard[T any](ctx context.Context, s *ResilientStore, fn func(context.Context) (T, error)) (T, error) {
	var permanent error
	r := retry.New[T](s.retryCfg)
	out, err := r.Do(ctx, func(ctx context.Context) (T, error) {
		var zero T
		res, err := s.breaker.Execute(func() (interface{}, error) {
			v, err := fn(ctx)
			return v, err
		})
		switch {
		case err == nil:
			return res.(T), nil
		case errors.Is(err, ErrNotFound),
			errors.Is(err, gobreaker.ErrOpenState),
			errors.Is(err, gobreaker.ErrTooManyRequests),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			permanent = err
			return zero, nil
		default:
			return zero, err
		}
	})
	if permanent != nil {
		var zero T
		return zero, permanent
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("storage unavailable: %w", err)
	}
	return out, nil
}

func guardErr(ctx context.Context, s *ResilientStore, fn func(context.Context) error) error {
	_, err := guard(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (s *ResilientStore) GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error) {
	return guard(ctx, s, func(ctx context.Context) (specification.Specification, error) {
		return s.origin.GetPartialSpecification(ctx, userID)
	})
}

func (s *ResilientStore) SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error {
	return guardErr(ctx, s, func(ctx context.Context) error {
		return s.origin.SavePartialSpecification(ctx, userID, spec)
	})
}

func (s *ResilientStore) GetLastActivityTime(ctx context.Context, userID string) (time.Time, error) {
	return guard(ctx, s, func(ctx context.Context) (time.Time, error) {
		return s.origin.GetLastActivityTime(ctx, userID)
	})
}

func (s *ResilientStore) UpdateLastActivity(ctx context.Context, userID string) error {
	return guardErr(ctx, s, func(ctx context.Context) error {
		return s.origin.UpdateLastActivity(ctx, userID)
	})
}

func (s *ResilientStore) ClearPartialSpecification(ctx context.Context, userID string) error {
	return guardErr(ctx, s, func(ctx context.Context) error {
		return s.origin.ClearPartialSpecification(ctx, userID)
	})
}

func (s *ResilientStore) SetPendingClarification(ctx context.Context, userID string, payload []byte) error {
	return guardErr(ctx, s, func(ctx context.Context) error {
		return s.origin.SetPendingClarification(ctx, userID, payload)
	})
}

func (s *ResilientStore) GetPendingClarification(ctx context.Context, userID string) ([]byte, error) {
	return guard(ctx, s, func(ctx context.Context) ([]byte, error) {
		return s.origin.GetPendingClarification(ctx, userID)
	})
}

func (s *ResilientStore) ClearPendingClarification(ctx context.Context, userID string) error {
	return guardErr(ctx, s, func(ctx context.Context) error {
		return s.origin.ClearPendingClarification(ctx, userID)
	})
}

func (s *ResilientStore) Ping(ctx context.Context) error {
	return s.origin.Ping(ctx)
}

func (s *ResilientStore) Close() error {
	return s.origin.Close()
}
