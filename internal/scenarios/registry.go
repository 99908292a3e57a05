// Package scenarios selects how the gateway reaches the weather service:
// straight through ("baseline") or through the payload cache ("cache").
package scenarios

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/meteo-query/internal/core/config"
	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
)

// Stack is the fetcher a scenario hands to the query facade plus its
// lifecycle hooks. Checks feed the readiness probe; Close may be nil.
type Stack struct {
	Fetcher transport.Fetcher
	Checks  map[string]func(ctx context.Context) error
	Close   func() error
}

type Factory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Stack, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

func New(ctx context.Context, name string, cfg config.Config, logger *slog.Logger) (Stack, error) {
	if f, ok := reg[name]; ok {
		return f(ctx, cfg, logger)
	}
	if f, ok := reg["baseline"]; ok {
		logger.Warn("unknown scenario; falling back to baseline", "scenario", name)
		return f(ctx, cfg, logger)
	}
	return Stack{}, fmt.Errorf("no factory for scenario %q and no baseline registered", name)
}
