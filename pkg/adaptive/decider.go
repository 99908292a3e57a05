// Package adaptive decides whether and for how long a weather payload is
// cached, based on how hot the H3 cells it covers are.
package adaptive

import "time"

type HotnessView interface {
	Score(cell string) float64
}

// Query is what a decider knows about one upstream call.
type Query struct {
	Shape string
	Cells []string
}

type DecisionType int

const (
	DecisionBypass DecisionType = iota
	DecisionFill
)

func (t DecisionType) String() string {
	if t == DecisionFill {
		return "fill"
	}
	return "bypass"
}

type Reason string

const (
	ReasonUncacheable Reason = "uncacheable_shape"
	ReasonNoCells     Reason = "no_cells"
	ReasonCold        Reason = "cold_all_cells"
	ReasonWarm        Reason = "warm"
	ReasonHot         Reason = "hot"
)

type Decision struct {
	Type DecisionType
	TTL  time.Duration
}

type Decider interface {
	Decide(q Query, view HotnessView) (Decision, Reason)
}
