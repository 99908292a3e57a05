package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/cache/keys"
	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
	"github.com/mohammed-shakir/meteo-query/internal/core/request"
	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
	"github.com/mohammed-shakir/meteo-query/internal/hotness"
	"github.com/mohammed-shakir/meteo-query/internal/mapper"
	"github.com/mohammed-shakir/meteo-query/pkg/adaptive"
)

// Tier is one cache level. Lookups go through tiers in order; a hit in a later
// tier is copied into the earlier ones.
type Tier struct {
	Name  string
	Store Interface
}

type Options struct {
	Tiers   []Tier
	Decider adaptive.Decider
	Hotness hotness.Interface
	Mapper  mapper.Interface
	// Index records which keys were filled for which cells so a region can be
	// invalidated later. Optional.
	Index KeyIndex
	// OpTimeout bounds each cache operation; cache trouble never fails a fetch.
	OpTimeout time.Duration
	Logger    *slog.Logger
}

// Fetcher serves targets from cache when it can and falls back to next.
type Fetcher struct {
	next transport.Fetcher
	opts Options
}

var _ transport.Fetcher = (*Fetcher)(nil)

func NewFetcher(next transport.Fetcher, opts Options) (*Fetcher, error) {
	if next == nil {
		return nil, fmt.Errorf("cache fetcher needs an upstream fetcher")
	}
	if opts.Decider == nil {
		return nil, fmt.Errorf("cache fetcher needs a decider")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{next: next, opts: opts}, nil
}

func (f *Fetcher) Fetch(ctx context.Context, target string) (transport.Payload, error) {
	tr, _ := request.TraceFrom(ctx)
	cells := f.cells(ctx, tr)
	if f.opts.Hotness != nil {
		for _, c := range cells {
			f.opts.Hotness.Inc(c)
		}
	}

	var view adaptive.HotnessView
	if f.opts.Hotness != nil {
		view = f.opts.Hotness
	}
	dec, reason := f.opts.Decider.Decide(adaptive.Query{Shape: tr.Shape, Cells: cells}, view)
	f.opts.Logger.DebugContext(ctx, "cache decision",
		"decision", dec.Type.String(), "reason", string(reason), "ttl", dec.TTL, "cells", len(cells))
	if dec.Type == adaptive.DecisionBypass {
		observability.ObserveCacheOp("all", "bypass")
		return f.next.Fetch(ctx, target)
	}

	key := keys.Key(tr.Shape, target)
	for i, t := range f.opts.Tiers {
		b, ok := f.get(ctx, t, key)
		if !ok {
			continue
		}
		p, err := decodePayload(b)
		if err != nil {
			f.opts.Logger.WarnContext(ctx, "drop corrupt cache entry", "tier", t.Name, "err", err)
			f.del(ctx, t, key)
			continue
		}
		for _, up := range f.opts.Tiers[:i] {
			f.set(ctx, up, key, b, dec.TTL)
		}
		return p, nil
	}

	p, err := f.next.Fetch(ctx, target)
	if err != nil {
		return transport.Payload{}, err
	}
	b := encodePayload(p)
	for _, t := range f.opts.Tiers {
		f.set(ctx, t, key, b, dec.TTL)
	}
	f.index(ctx, cells, key)
	return p, nil
}

func (f *Fetcher) index(ctx context.Context, cells []string, key string) {
	if f.opts.Index == nil || len(cells) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.OpTimeout)
	defer cancel()
	if err := f.opts.Index.Add(cctx, cells, key); err != nil {
		observability.ObserveCacheOp("index", "error")
		f.opts.Logger.WarnContext(ctx, "cell index update failed", "cells", len(cells), "err", err)
	}
}

func (f *Fetcher) cells(ctx context.Context, tr request.Trace) []string {
	if f.opts.Mapper == nil || tr.Location == nil {
		return nil
	}
	cells, err := f.opts.Mapper.CellsForLocation(tr.Location)
	if err != nil {
		f.opts.Logger.DebugContext(ctx, "no cells for location", "err", err)
		return nil
	}
	return cells
}

func (f *Fetcher) get(ctx context.Context, t Tier, key string) ([]byte, bool) {
	cctx, cancel := context.WithTimeout(ctx, f.opts.OpTimeout)
	defer cancel()
	vals, err := t.Store.MGet(cctx, []string{key})
	if err != nil {
		observability.ObserveCacheOp(t.Name, "error")
		f.opts.Logger.WarnContext(ctx, "cache read failed", "tier", t.Name, "err", err)
		return nil, false
	}
	b, ok := vals[key]
	if !ok {
		observability.ObserveCacheOp(t.Name, "miss")
		return nil, false
	}
	observability.ObserveCacheOp(t.Name, "hit")
	return b, true
}

// set writes detached from the caller's cancellation so a payload that was
// fetched is still stored.
func (f *Fetcher) set(ctx context.Context, t Tier, key string, b []byte, ttl time.Duration) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.OpTimeout)
	defer cancel()
	if err := t.Store.Set(cctx, key, b, ttl); err != nil {
		observability.ObserveCacheOp(t.Name, "error")
		f.opts.Logger.WarnContext(ctx, "cache write failed", "tier", t.Name, "err", err)
	}
}

func (f *Fetcher) del(ctx context.Context, t Tier, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.OpTimeout)
	defer cancel()
	if err := t.Store.Del(cctx, key); err != nil {
		f.opts.Logger.WarnContext(ctx, "cache delete failed", "tier", t.Name, "err", err)
	}
}
