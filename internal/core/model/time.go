package model

import "time"

// TimeSpec is the time segment of a query: an Instant, an InstantList or a TimeSeries.
type TimeSpec interface {
	isTimeSpec()
}

type Instant struct {
	Time time.Time
}

// InstantList is an explicit list of instants, used by route queries.
type InstantList []time.Time

// TimeSeries spans Start..End. A zero Step means the service default,
// i.e. exactly the two endpoints.
type TimeSeries struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

func (Instant) isTimeSpec()     {}
func (InstantList) isTimeSpec() {}
func (TimeSeries) isTimeSpec()  {}

func (ts TimeSeries) Validate() error {
	if ts.Start.IsZero() || ts.End.IsZero() {
		return Invalidf("time series start and end are required")
	}
	if ts.End.Before(ts.Start) {
		return Invalidf("time series end %s before start %s", ts.End.UTC(), ts.Start.UTC())
	}
	if ts.Step < 0 {
		return Invalidf("time series step %s is negative", ts.Step)
	}
	return nil
}

// Instants expands the series into ascending instants.
func (ts TimeSeries) Instants() []time.Time {
	if ts.Step <= 0 {
		if ts.Start.Equal(ts.End) {
			return []time.Time{ts.Start}
		}
		return []time.Time{ts.Start, ts.End}
	}
	var out []time.Time
	for t := ts.Start; !t.After(ts.End); t = t.Add(ts.Step) {
		out = append(out, t)
	}
	return out
}
