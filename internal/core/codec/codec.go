// Package codec renders model values into the exact path substrings the service expects.
package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// Instant renders t in UTC with a Z suffix, keeping any sub-second precision.
func Instant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Period renders a positive duration as an ISO-8601 period using the coarsest exact unit.
func Period(d time.Duration) (string, error) {
	if d <= 0 {
		return "", model.Invalidf("period must be positive (got %s)", d)
	}
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("PT%dH", d/time.Hour), nil
	case d%time.Minute == 0:
		return fmt.Sprintf("PT%dM", d/time.Minute), nil
	case d%time.Second == 0:
		return fmt.Sprintf("PT%dS", d/time.Second), nil
	default:
		return "PT" + strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "S", nil
	}
}

func TimeSeries(ts model.TimeSeries) (string, error) {
	if ts.Step == 0 {
		if ts.Start.Equal(ts.End) {
			return Instant(ts.Start), nil
		}
		return Instant(ts.Start) + "--" + Instant(ts.End), nil
	}
	p, err := Period(ts.Step)
	if err != nil {
		return "", err
	}
	return Instant(ts.Start) + "--" + Instant(ts.End) + ":" + p, nil
}

func InstantList(ts []time.Time) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = Instant(t)
	}
	return strings.Join(parts, ",")
}

// Time renders an instant, an instant list or a series.
func Time(ts model.TimeSpec) (string, error) {
	switch t := ts.(type) {
	case model.Instant:
		return Instant(t.Time), nil
	case model.InstantList:
		if len(t) == 0 {
			return "", model.Invalidf("empty instant list")
		}
		return InstantList(t), nil
	case model.TimeSeries:
		return TimeSeries(t)
	case nil:
		return "", model.Invalidf("missing time")
	default:
		return "", model.Invalidf("unsupported time value %T", ts)
	}
}

func Points(ps []model.Point) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, "+")
}

func Postal(codes []string) string {
	return strings.Join(codes, "+")
}

func Route(ts []time.Time, ps []model.Point) (string, error) {
	if len(ts) != len(ps) {
		return "", fmt.Errorf("%w: %d timestamps for %d points", model.ErrArityMismatch, len(ts), len(ps))
	}
	parts := make([]string, len(ps))
	for i := range ps {
		parts[i] = Instant(ts[i]) + "_" + ps[i].String()
	}
	return strings.Join(parts, "+"), nil
}

func PostalRoute(ts []time.Time, codes []string) (string, error) {
	if len(ts) != len(codes) {
		return "", fmt.Errorf("%w: %d timestamps for %d postal codes", model.ErrArityMismatch, len(ts), len(codes))
	}
	parts := make([]string, len(codes))
	for i := range codes {
		parts[i] = Instant(ts[i]) + "_" + codes[i]
	}
	return strings.Join(parts, "+"), nil
}

func BBox(b model.BBox) string {
	return b.String()
}

// Location dispatches over every location shape.
func Location(loc model.Location) (string, error) {
	switch l := loc.(type) {
	case model.Points:
		if len(l) == 0 {
			return "", model.Invalidf("empty point list")
		}
		return Points(l), nil
	case model.BBox:
		return BBox(l), nil
	case model.Postal:
		if len(l) == 0 {
			return "", model.Invalidf("empty postal list")
		}
		return Postal(l), nil
	case model.Route:
		return Route(l.Times, l.Points)
	case model.PostalRoute:
		return PostalRoute(l.Times, l.Codes)
	case nil:
		return "", model.Invalidf("missing location")
	default:
		return "", model.Invalidf("unsupported location %T", loc)
	}
}
