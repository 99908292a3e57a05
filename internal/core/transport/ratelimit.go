package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
)

// RateLimited spaces calls to next to at most rps per second with the given burst.
type RateLimited struct {
	next    Fetcher
	limiter *rate.Limiter
}

func NewRateLimited(next Fetcher, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Fetch(ctx context.Context, target string) (Payload, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		observability.IncRejected("rate_limit")
		return Payload{}, fmt.Errorf("%w: rate limit wait: %w", ErrTransport, err)
	}
	return r.next.Fetch(ctx, target)
}
