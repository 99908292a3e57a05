package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
)

type BreakerConfig struct {
	// consecutive upstream failures before the breaker opens
	Failures    uint32
	OpenTimeout time.Duration
	// requests let through while half-open
	HalfOpenMax uint32
}

// Breaker stops calling next after repeated upstream failures. Only transport
// errors, 5xx and 429 count; other statuses belong to the caller.
type Breaker struct {
	next Fetcher
	cb   *gobreaker.CircuitBreaker
}

// callerError smuggles a non-counting failure through gobreaker.Execute.
type callerError struct{ err error }

func NewBreaker(next Fetcher, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax == 0 {
		cfg.HalfOpenMax = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meteo",
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Fetch(ctx context.Context, target string) (Payload, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		p, err := b.next.Fetch(ctx, target)
		if err == nil {
			return p, nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return callerError{err: err}, nil
		}
		if errors.Is(err, context.Canceled) {
			return callerError{err: err}, nil
		}
		return nil, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.IncRejected("breaker_open")
			return Payload{}, fmt.Errorf("%w: circuit breaker: %w", ErrTransport, err)
		}
		return Payload{}, err
	}
	switch v := out.(type) {
	case Payload:
		return v, nil
	case callerError:
		return Payload{}, v.err
	default:
		return Payload{}, fmt.Errorf("%w: unexpected breaker result %T", ErrTransport, out)
	}
}

func (b *Breaker) State() string { return b.cb.State().String() }
