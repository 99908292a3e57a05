// Package request assembles request targets (path plus query string) for the weather service.
package request

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/codec"
	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// Query is one data request: /{time}/{parameters}/{location}/{format}?{optionals}
type Query struct {
	Time       model.TimeSpec
	Parameters []string
	Location   model.Location
	Optionals  []string
	Format     model.Format
}

// Assemble renders q into a request target. It is pure: equal queries give byte-identical targets.
func Assemble(q Query) (string, error) {
	timeSeg, err := codec.Time(q.Time)
	if err != nil {
		return "", err
	}
	paramSeg, err := Parameters(q.Parameters)
	if err != nil {
		return "", err
	}
	locSeg, err := codec.Location(q.Location)
	if err != nil {
		return "", err
	}
	format := q.Format.Wire()
	if format == "" {
		return "", model.Invalidf("unknown output format %d", q.Format)
	}

	var b strings.Builder
	b.Grow(len(timeSeg) + len(paramSeg) + len(locSeg) + len(format) + 8)
	b.WriteByte('/')
	b.WriteString(escapeSegment(timeSeg))
	b.WriteByte('/')
	b.WriteString(escapeSegment(paramSeg))
	b.WriteByte('/')
	b.WriteString(escapeSegment(locSeg))
	b.WriteByte('/')
	b.WriteString(format)
	if opt := Optionals(q.Optionals); opt != "" {
		b.WriteByte('?')
		b.WriteString(opt)
	}
	return b.String(), nil
}

func Parameters(params []string) (string, error) {
	if len(params) == 0 {
		return "", model.ErrEmptyParameterList
	}
	for i, p := range params {
		if strings.TrimSpace(p) == "" || strings.ContainsAny(p, ",/") {
			return "", model.Invalidf("parameter %d: %q is not a valid identifier", i, p)
		}
	}
	return strings.Join(params, ","), nil
}

// Optionals joins key=value modifiers verbatim; none yields "".
func Optionals(opts []string) string {
	return strings.Join(opts, "&")
}

type StationQuery struct {
	Location   *model.Point
	Parameters []string
	Elevation  *float64
	Start      time.Time
	End        time.Time
}

// StationList renders the station lookup target. Filters keep a fixed order.
func StationList(q StationQuery) string {
	var kv []string
	if q.Location != nil {
		kv = append(kv, "location="+escapeSegment(q.Location.String()))
	}
	if len(q.Parameters) > 0 {
		kv = append(kv, "parameters="+escapeSegment(strings.Join(q.Parameters, ",")))
	}
	if q.Elevation != nil {
		kv = append(kv, "elevation="+model.FormatFloat(*q.Elevation))
	}
	if !q.Start.IsZero() {
		kv = append(kv, "startdate="+codec.Instant(q.Start))
	}
	if !q.End.IsZero() {
		kv = append(kv, "enddate="+codec.Instant(q.End))
	}
	if len(kv) == 0 {
		return "/find_station"
	}
	return "/find_station?" + strings.Join(kv, "&")
}

func AccountStats() string {
	return "/user_stats_json"
}

// Lightning renders the lightning list target; the bbox resolution is ignored.
func Lightning(ts model.TimeSeries, bb model.BBox) string {
	bb.Res = model.Resolution{}
	return "/get_lightning_list?time_range=" +
		codec.Instant(ts.Start) + "--" + codec.Instant(ts.End) +
		"&bounding_box=" + escapeSegment(codec.BBox(bb)) +
		"&format=csv"
}

// escapeSegment percent-encodes everything except unreserved characters and the
// separators the service reads literally (: , + _ -).
func escapeSegment(s string) string {
	const hex = "0123456789ABCDEF"
	clean := true
	for i := 0; i < len(s); i++ {
		if !literal(s[i]) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if literal(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func literal(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~', ':', ',', '+', '!', '*', '(', ')', '@', '$', ';', '=':
		return true
	}
	return false
}
