// Package cache serves repeated queries from a memory and Redis cache whose
// lifetimes follow how hot the queried H3 cells are.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	payloadcache "github.com/mohammed-shakir/meteo-query/internal/cache"
	"github.com/mohammed-shakir/meteo-query/internal/cache/cellindex"
	"github.com/mohammed-shakir/meteo-query/internal/cache/redisstore"
	"github.com/mohammed-shakir/meteo-query/internal/core/config"
	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
	"github.com/mohammed-shakir/meteo-query/internal/hotness/expdecay"
	"github.com/mohammed-shakir/meteo-query/internal/hotness/metricswrap"
	h3mapper "github.com/mohammed-shakir/meteo-query/internal/mapper/h3"
	"github.com/mohammed-shakir/meteo-query/internal/scenarios"
	"github.com/mohammed-shakir/meteo-query/pkg/adaptive/simple"
	"github.com/mohammed-shakir/meteo-query/pkg/invalidation/kafka"
)

func init() {
	scenarios.Register("cache", newCache)
}

// Read at scenario start; tests replace them.
var (
	invalidationConfig = kafka.FromEnv
	metricsRegisterer  = observability.Registerer
)

func newCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ scenarios.Stack, err error) {
	up, err := transport.FromConfig(cfg.Upstream, logger)
	if err != nil {
		return scenarios.Stack{}, err
	}
	mapper, err := h3mapper.New(cfg.H3Res)
	if err != nil {
		return scenarios.Stack{}, fmt.Errorf("h3 mapper: %w", err)
	}

	var tiers []payloadcache.Tier
	if cfg.CacheL1Size > 0 {
		mem, err := payloadcache.NewMemory(cfg.CacheL1Size)
		if err != nil {
			return scenarios.Stack{}, err
		}
		tiers = append(tiers, payloadcache.Tier{Name: "l1", Store: mem})
	}

	stack := scenarios.Stack{Checks: map[string]func(context.Context) error{}}
	var closers []func() error
	defer func() {
		if err != nil {
			_ = closeAll(closers, logger)
		}
	}()
	var shared payloadcache.Interface
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return scenarios.Stack{}, err
		}
		tiers = append(tiers, payloadcache.Tier{Name: "l2", Store: rc})
		stack.Checks["redis"] = rc.Ping
		closers = append(closers, rc.Close)
		shared = rc
	}
	if len(tiers) == 0 {
		return scenarios.Stack{}, errors.New("cache scenario needs CACHE_L1_SIZE > 0 or REDIS_ADDR")
	}

	hot := metricswrap.New(expdecay.New(cfg.HotHalfLife, 0), metricswrap.Options{
		Threshold: cfg.HotThreshold,
		Logger:    logger,
	})
	decider := simple.New(simple.Config{
		Threshold:  cfg.HotThreshold,
		TTLCold:    cfg.AdaptiveTTLCold,
		TTLWarm:    cfg.AdaptiveTTLWarm,
		TTLHot:     cfg.AdaptiveTTLHot,
		DefaultTTL: cfg.CacheTTLDefault,
		ShapeTTL:   cfg.CacheTTLOvr,
	})

	opts := payloadcache.Options{
		Tiers:     tiers,
		Decider:   decider,
		Hotness:   hot,
		Mapper:    mapper,
		OpTimeout: cfg.CacheOpTimeout,
		Logger:    logger,
	}

	icfg := invalidationConfig()
	if icfg.Active() {
		// the index lives next to the payloads it points at; without Redis it
		// gets its own LRU so it does not evict payloads
		if shared == nil {
			if shared, err = payloadcache.NewMemory(4096); err != nil {
				return scenarios.Stack{}, err
			}
		}
		idx, err := cellindex.New(shared, mapper, cellindex.DefaultRes, longestTTL(cfg))
		if err != nil {
			return scenarios.Stack{}, err
		}
		opts.Index = idx

		stores := make([]payloadcache.Interface, 0, len(tiers))
		for _, t := range tiers {
			stores = append(stores, t.Store)
		}
		runner := kafka.New(icfg, stores, mapper, kafka.Options{
			Logger:    logger,
			Hotness:   hot,
			CellIndex: idx,
			OpTimeout: cfg.CacheOpTimeout,
			Register:  metricsRegisterer(),
		})
		if err := runner.Start(ctx); err != nil {
			return scenarios.Stack{}, fmt.Errorf("invalidation runner: %w", err)
		}
		stack.Checks["invalidation"] = runner.Check
		closers = append([]func() error{func() error { runner.Stop(); return nil }}, closers...)
	}

	f, err := payloadcache.NewFetcher(up, opts)
	if err != nil {
		return scenarios.Stack{}, err
	}
	stack.Fetcher = f
	stack.Close = func() error { return closeAll(closers, logger) }

	logger.Info("cache scenario",
		"tiers", len(tiers),
		"redis", cfg.RedisAddr,
		"h3_res", cfg.H3Res,
		"hot_threshold", cfg.HotThreshold,
		"invalidation", icfg.Active())
	return stack, nil
}

func closeAll(closers []func() error, logger *slog.Logger) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn("cache scenario close", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// longestTTL is the longest lifetime any payload can get.
func longestTTL(cfg config.Config) time.Duration {
	ttl := max(cfg.CacheTTLDefault, cfg.AdaptiveTTLCold, cfg.AdaptiveTTLWarm, cfg.AdaptiveTTLHot)
	for _, d := range cfg.CacheTTLOvr {
		ttl = max(ttl, d)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return ttl
}
