package transport

import (
	"log/slog"

	"github.com/mohammed-shakir/meteo-query/internal/core/config"
)

// FromConfig builds the HTTP fetcher and wraps it with the breaker and rate
// limiter when they are enabled. The limiter sits outermost.
func FromConfig(cfg config.UpstreamCfg, logger *slog.Logger) (Fetcher, error) {
	h, err := NewHTTP(logger, NewOutbound(cfg.Timeout), cfg.BaseURL, WithCredentials(cfg.User, cfg.Password))
	if err != nil {
		return nil, err
	}
	var f Fetcher = h
	if cfg.BreakerEnabled {
		f = NewBreaker(f, BreakerConfig{
			Failures:    safeUint32(cfg.BreakerFailures),
			OpenTimeout: cfg.BreakerOpenTimeout,
		}, logger)
	}
	if cfg.RateLimitRPS > 0 {
		f = NewRateLimited(f, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return f, nil
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if n > int(^uint32(0)>>1) {
		return ^uint32(0) >> 1
	}
	return uint32(n)
}
