package simple

import (
	"time"

	"github.com/mohammed-shakir/meteo-query/pkg/adaptive"
)

type Config struct {
	// Threshold is the score at which a cell counts as warm; four times it
	// counts as hot. Zero disables banding and every query gets DefaultTTL.
	Threshold float64
	TTLCold   time.Duration
	TTLWarm   time.Duration
	TTLHot    time.Duration

	// DefaultTTL applies to queries without cells, such as postal codes.
	DefaultTTL time.Duration
	// ShapeTTL caps the lifetime per shape. A zero entry disables caching
	// for that shape.
	ShapeTTL map[string]time.Duration
}

type SimpleDecider struct {
	cfg Config
}

var _ adaptive.Decider = (*SimpleDecider)(nil)

func New(cfg Config) *SimpleDecider {
	return &SimpleDecider{cfg: cfg}
}

func (d *SimpleDecider) Decide(q adaptive.Query, view adaptive.HotnessView) (adaptive.Decision, adaptive.Reason) {
	limit, capped := d.cfg.ShapeTTL[q.Shape]
	if capped && limit <= 0 {
		return adaptive.Decision{Type: adaptive.DecisionBypass}, adaptive.ReasonUncacheable
	}

	ttl, reason := d.band(q, view)
	if capped && ttl > limit {
		ttl = limit
	}
	if ttl <= 0 {
		return adaptive.Decision{Type: adaptive.DecisionBypass}, reason
	}
	return adaptive.Decision{Type: adaptive.DecisionFill, TTL: ttl}, reason
}

func (d *SimpleDecider) band(q adaptive.Query, view adaptive.HotnessView) (time.Duration, adaptive.Reason) {
	if len(q.Cells) == 0 || view == nil {
		return d.cfg.DefaultTTL, adaptive.ReasonNoCells
	}
	if d.cfg.Threshold <= 0 {
		return d.cfg.DefaultTTL, adaptive.ReasonWarm
	}

	maxScore := 0.0
	for _, c := range q.Cells {
		if s := view.Score(c); s > maxScore {
			maxScore = s
		}
	}

	switch {
	case maxScore >= 4*d.cfg.Threshold && d.cfg.TTLHot > 0:
		return d.cfg.TTLHot, adaptive.ReasonHot
	case maxScore >= d.cfg.Threshold && d.cfg.TTLWarm > 0:
		return d.cfg.TTLWarm, adaptive.ReasonWarm
	default:
		return d.cfg.TTLCold, adaptive.ReasonCold
	}
}
