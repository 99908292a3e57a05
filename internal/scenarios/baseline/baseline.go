// Package baseline sends every query straight to the weather service.
package baseline

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/meteo-query/internal/core/config"
	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
	"github.com/mohammed-shakir/meteo-query/internal/scenarios"
)

func init() {
	scenarios.Register("baseline", newBaseline)
}

func newBaseline(_ context.Context, cfg config.Config, logger *slog.Logger) (scenarios.Stack, error) {
	f, err := transport.FromConfig(cfg.Upstream, logger)
	if err != nil {
		return scenarios.Stack{}, err
	}
	logger.Info("baseline scenario", "upstream", cfg.Upstream.BaseURL)
	return scenarios.Stack{Fetcher: f}, nil
}
