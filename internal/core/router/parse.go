package router

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

// parseTime accepts a single RFC3339 instant or "start--end[:PT<n>H|M|S]".
func parseTime(raw string) (instant time.Time, series *meteo.TimeSeries, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil, model.Invalidf("missing required parameter: time")
	}
	rng, period := raw, ""
	if i := strings.LastIndex(raw, ":P"); i > 0 {
		rng, period = raw[:i], raw[i+1:]
	}
	start, end, isRange := strings.Cut(rng, "--")
	if !isRange {
		if period != "" {
			return time.Time{}, nil, model.Invalidf("time %q: a period needs a start--end range", raw)
		}
		t, err := parseInstant(raw)
		return t, nil, err
	}
	ts := meteo.TimeSeries{}
	if ts.Start, err = parseInstant(start); err != nil {
		return time.Time{}, nil, err
	}
	if ts.End, err = parseInstant(end); err != nil {
		return time.Time{}, nil, err
	}
	if period != "" {
		if ts.Step, err = parsePeriod(period); err != nil {
			return time.Time{}, nil, err
		}
	}
	return time.Time{}, &ts, nil
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, model.Invalidf("time %q is not RFC3339", s)
	}
	return t.UTC(), nil
}

// parsePeriod reads the time part of an ISO 8601 duration such as PT1H30M.
func parsePeriod(p string) (time.Duration, error) {
	rest, ok := strings.CutPrefix(strings.ToUpper(p), "PT")
	if !ok || rest == "" {
		return 0, model.Invalidf("period %q must look like PT1H", p)
	}
	d, err := time.ParseDuration(strings.ToLower(rest))
	if err != nil || d <= 0 {
		return 0, model.Invalidf("period %q must look like PT1H", p)
	}
	return d, nil
}

func series(raw string) (meteo.TimeSeries, error) {
	at, ts, err := parseTime(raw)
	if err != nil {
		return meteo.TimeSeries{}, err
	}
	if ts == nil {
		return meteo.TimeSeries{Start: at, End: at}, nil
	}
	return *ts, nil
}

func parseParams(raw string) []string {
	var out []string
	for p := range strings.SplitSeq(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePoint(raw string) (meteo.Point, error) {
	lat, lon, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return meteo.Point{}, model.Invalidf("point %q must be lat,lon", raw)
	}
	la, err := parseFloat("lat", lat)
	if err != nil {
		return meteo.Point{}, err
	}
	lo, err := parseFloat("lon", lon)
	if err != nil {
		return meteo.Point{}, err
	}
	return meteo.Point{Lat: la, Lon: lo}, nil
}

func parsePoints(raw []string) ([]meteo.Point, error) {
	out := make([]meteo.Point, 0, len(raw))
	for _, r := range raw {
		p, err := parsePoint(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parseBBox reads bbox=lat_min,lon_min,lat_max,lon_max plus an optional
// res=lat_step,lon_step (degrees) or pixels=lat_count,lon_count.
func parseBBox(q url.Values) (meteo.BBox, error) {
	parts := strings.Split(q.Get("bbox"), ",")
	if len(parts) != 4 {
		return meteo.BBox{}, model.Invalidf("bbox must be lat_min,lon_min,lat_max,lon_max")
	}
	var v [4]float64
	for i, name := range []string{"lat_min", "lon_min", "lat_max", "lon_max"} {
		f, err := parseFloat(name, parts[i])
		if err != nil {
			return meteo.BBox{}, err
		}
		v[i] = f
	}
	bb := meteo.BBox{LatMin: v[0], LonMin: v[1], LatMax: v[2], LonMax: v[3]}

	switch {
	case q.Get("res") != "" && q.Get("pixels") != "":
		return meteo.BBox{}, model.Invalidf("res and pixels are mutually exclusive")
	case q.Get("res") != "":
		a, b, err := pair(q.Get("res"), "res")
		if err != nil {
			return meteo.BBox{}, err
		}
		bb.Res = meteo.Degrees(a, b)
	case q.Get("pixels") != "":
		a, b, err := pair(q.Get("pixels"), "pixels")
		if err != nil {
			return meteo.BBox{}, err
		}
		if a != float64(int(a)) || b != float64(int(b)) {
			return meteo.BBox{}, model.Invalidf("pixels must be whole numbers")
		}
		bb.Res = meteo.Pixels(int(a), int(b))
	}
	return bb, nil
}

func pair(raw, name string) (float64, float64, error) {
	a, b, ok := strings.Cut(raw, ",")
	if !ok {
		return 0, 0, model.Invalidf("%s must be two comma separated numbers", name)
	}
	x, err := parseFloat(name, a)
	if err != nil {
		return 0, 0, err
	}
	y, err := parseFloat(name, b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func parseFloat(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, model.Invalidf("%s: %q is not a number", name, v)
	}
	return f, nil
}

func parseInstants(raw []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		t, err := parseInstant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
