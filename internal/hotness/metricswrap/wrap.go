// Package metricswrap wraps a hotness tracker with Prometheus metrics and
// sampled threshold logging.
package metricswrap

import (
	"fmt"
	"log/slog"

	xx "github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
	"github.com/mohammed-shakir/meteo-query/internal/hotness"
)

type Sizer interface{ Size() int }

type Options struct {
	// Threshold above which an increment is logged; 0 disables logging.
	Threshold float64
	// LogSample is the fraction of hot cells logged, keyed by cell hash.
	LogSample float64
	Logger    *slog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	opts  Options
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, opts Options) *WithMetrics {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.LogSample == 0 {
		opts.LogSample = 0.01
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(cell string) {
	w.inner.Inc(cell)
	if w.opts.Threshold > 0 {
		score := w.inner.Score(cell)
		if score >= w.opts.Threshold && shouldLog(w.opts.LogSample, cell) {
			w.opts.Logger.Info("hot cell above threshold",
				"event", "hotness_threshold",
				"score", score,
				"cell_hash", fmt.Sprintf("%08x", xx.Sum64String(cell)),
			)
		}
	}
	w.publishSize()
}

func (w *WithMetrics) Score(cell string) float64 {
	return w.inner.Score(cell)
}

func (w *WithMetrics) Reset(cells ...string) {
	w.inner.Reset(cells...)
	w.publishSize()
}

func (w *WithMetrics) publishSize() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotCells(s.Size())
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	h := xx.Sum64String(key)
	return (h % denom) < threshold
}
