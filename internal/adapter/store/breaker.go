package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"switchboard/internal/domain"
)

// sessionBackend is the surface the breaker guards; *RedisBackend satisfies
// it, as does anything else the session manager can drive.
type sessionBackend interface {
	Load(ctx context.Context, id string) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
	Delete(ctx context.Context, id string) (bool, error)
}

// BreakerSettings tunes the circuit breaker around a remote backend.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before the circuit opens
	Timeout     time.Duration // open -> half-open delay
	Interval    time.Duration // closed-state counter reset period
}

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerBackend wraps a remote session backend with a circuit breaker.
// After repeated failures the circuit opens and calls fail fast instead of
// stacking up behind a dead Redis; the session manager surfaces that as
// unavailability to its caller.
type BreakerBackend struct {
	inner   sessionBackend
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreakerBackend wraps inner. Zero-valued settings get defaults.
func NewBreakerBackend(inner sessionBackend, settings BreakerSettings, logger *slog.Logger) *BreakerBackend {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = defaultBreakerMaxFailures
	}
	if settings.Timeout == 0 {
		settings.Timeout = defaultBreakerTimeout
	}
	if settings.Interval == 0 {
		settings.Interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "session-backend",
		MaxRequests: 1, // one probe in half-open
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("session backend circuit state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &BreakerBackend{inner: inner, breaker: cb, logger: logger}
}

func (b *BreakerBackend) Load(ctx context.Context, id string) (*domain.SessionState, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Load(ctx, id)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	state, _ := v.(*domain.SessionState)
	return state, nil
}

func (b *BreakerBackend) Save(ctx context.Context, state *domain.SessionState) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Save(ctx, state)
	})
	return wrapBreakerErr(err)
}

func (b *BreakerBackend) Delete(ctx context.Context, id string) (bool, error) {
	v, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Delete(ctx, id)
	})
	if err != nil {
		return false, wrapBreakerErr(err)
	}
	deleted, _ := v.(bool)
	return deleted, nil
}

// State exposes the breaker state for health checks.
func (b *BreakerBackend) State() gobreaker.State {
	return b.breaker.State()
}

// wrapBreakerErr marks fail-fast rejections as unavailability so callers
// can tell "backend said no" from "backend is down".
func wrapBreakerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewSubSystemError("session", "store.breaker", domain.ErrUnavailable, err.Error())
	}
	return err
}
