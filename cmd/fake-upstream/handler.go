package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

type point struct {
	lat, lon float64
}

type grid struct {
	lats, lons []float64
}

// location is one parsed location segment: points, postal codes, a route, or
// a bbox grid.
type location struct {
	points []point
	codes  []string
	stops  []time.Time
	grid   *grid
}

type service struct {
	cfg   Config
	log   *slog.Logger
	calls atomic.Int64
}

var (
	// latmax,lonmin_latmin,lonmax[:latres,lonres | :WxH]
	bboxRe = regexp.MustCompile(`^(-?[\d.]+),(-?[\d.]+)_(-?[\d.]+),(-?[\d.]+)(?::(?:([\d.]+),([\d.]+)|(\d+)x(\d+)))?$`)
	stepRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

	errOversized = errors.New("requested area too large")
)

func newService(cfg Config, log *slog.Logger) http.Handler {
	return &service{cfg: cfg, log: log}
}

func (s *service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	if s.cfg.User != "" {
		u, p, ok := r.BasicAuth()
		if !ok || u != s.cfg.User || p != s.cfg.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="fake-upstream"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	switch r.URL.Path {
	case "/user_stats_json":
		s.userStats(w)
	case "/find_station":
		s.stations(w, r)
	case "/get_lightning_list":
		s.lightning(w, r)
	default:
		s.query(w, r)
	}
}

func (s *service) query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segs) != 4 {
		http.Error(w, "unknown endpoint", http.StatusNotFound)
		return
	}
	params := strings.Split(segs[1], ",")
	loc, err := parseLocation(segs[2])
	if err != nil {
		http.Error(w, "invalid location: "+err.Error(), http.StatusBadRequest)
		return
	}

	var instants []time.Time
	if loc.stops != nil {
		instants = loc.stops
	} else if instants, err = expandTime(segs[0]); err != nil {
		http.Error(w, "invalid time: "+err.Error(), http.StatusBadRequest)
		return
	}

	var body []byte
	contentType := "text/csv"
	switch segs[3] {
	case "csv":
		body, err = s.renderCSV(loc, params, instants)
	case "png":
		contentType = "image/png"
		body, err = renderPNG(loc, params[0], instants[0])
	case "netcdf":
		contentType = "application/netcdf"
		body = append([]byte("CDF\x01"), segs[0]...)
	default:
		http.Error(w, "unsupported format: "+segs[3], http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body)
	s.log.Debug("served query",
		"format", segs[3],
		"params", len(params),
		"instants", len(instants),
		"bytes", len(body),
		"took", time.Since(start))
}

func (s *service) renderCSV(loc location, params []string, instants []time.Time) ([]byte, error) {
	var b bytes.Buffer
	if g := loc.grid; g != nil {
		if len(g.lats)*len(g.lons)*len(instants) > s.cfg.MaxGridCells {
			return nil, errOversized
		}
		if len(params) == 1 && len(instants) == 1 {
			writePivoted(&b, g, params[0], instants[0])
			return b.Bytes(), nil
		}
		withTime := len(instants) > 1
		b.WriteString("lat;lon;")
		if withTime {
			b.WriteString("validdate;")
		}
		b.WriteString(strings.Join(params, ";") + "\n")
		for _, at := range instants {
			for _, lat := range g.lats {
				for _, lon := range g.lons {
					b.WriteString(num(lat) + ";" + num(lon) + ";")
					if withTime {
						b.WriteString(at.Format(time.RFC3339) + ";")
					}
					writeValues(&b, params, lat, lon, at)
				}
			}
		}
		return b.Bytes(), nil
	}

	if loc.stops != nil {
		postal := slices.ContainsFunc(loc.codes, func(c string) bool { return c != "" })
		if postal {
			b.WriteString("station_id;")
		} else {
			b.WriteString("lat;lon;")
		}
		b.WriteString("validdate;" + strings.Join(params, ";") + "\n")
		for i, at := range loc.stops {
			p, id := stopAt(loc, i)
			if !postal {
				id = num(p.lat) + ";" + num(p.lon)
			}
			b.WriteString(id + ";" + at.Format(time.RFC3339) + ";")
			writeValues(&b, params, p.lat, p.lon, at)
		}
		return b.Bytes(), nil
	}

	// a single location omits the location columns
	if len(loc.codes) > 0 {
		multi := len(loc.codes) > 1
		if multi {
			b.WriteString("station_id;")
		}
		b.WriteString("validdate;" + strings.Join(params, ";") + "\n")
		for _, code := range loc.codes {
			p := postalPoint(code)
			for _, at := range instants {
				if multi {
					b.WriteString(code + ";")
				}
				b.WriteString(at.Format(time.RFC3339) + ";")
				writeValues(&b, params, p.lat, p.lon, at)
			}
		}
		return b.Bytes(), nil
	}

	multi := len(loc.points) > 1
	if multi {
		b.WriteString("lat;lon;")
	}
	b.WriteString("validdate;" + strings.Join(params, ";") + "\n")
	for _, p := range loc.points {
		for _, at := range instants {
			if multi {
				b.WriteString(num(p.lat) + ";" + num(p.lon) + ";")
			}
			b.WriteString(at.Format(time.RFC3339) + ";")
			writeValues(&b, params, p.lat, p.lon, at)
		}
	}
	return b.Bytes(), nil
}

func writePivoted(b *bytes.Buffer, g *grid, param string, at time.Time) {
	b.WriteString("data")
	for _, lon := range g.lons {
		b.WriteString(";" + num(lon))
	}
	b.WriteString("\n")
	for _, lat := range g.lats {
		b.WriteString(num(lat))
		for _, lon := range g.lons {
			b.WriteString(";" + num(value(param, lat, lon, at)))
		}
		b.WriteString("\n")
	}
}

func writeValues(b *bytes.Buffer, params []string, lat, lon float64, at time.Time) {
	for j, p := range params {
		if j > 0 {
			b.WriteString(";")
		}
		b.WriteString(num(value(p, lat, lon, at)))
	}
	b.WriteString("\n")
}

func renderPNG(loc location, param string, at time.Time) ([]byte, error) {
	w, h := 16, 16
	g := loc.grid
	if g != nil {
		w, h = len(g.lons), len(g.lats)
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			lat, lon := float64(y), float64(x)
			if g != nil {
				lat, lon = g.lats[y], g.lons[x]
			}
			v := value(param, lat, lon, at)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Mod(math.Abs(v)*8, 256))})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// value is a deterministic synthetic reading: a latitude gradient plus a
// diurnal wave shifted by longitude and a per-parameter phase.
func value(param string, lat, lon float64, at time.Time) float64 {
	phase := float64(xxhash.Sum64String(param)%360) * math.Pi / 180
	hour := float64(at.UTC().Hour()) + float64(at.UTC().Minute())/60
	diurnal := math.Sin(2*math.Pi*hour/24 + lon*math.Pi/180 + phase)
	v := 15*math.Cos(lat*math.Pi/180) + 5*diurnal
	return math.Round(v*10) / 10
}

func postalPoint(code string) point {
	h := xxhash.Sum64String(code)
	return point{lat: float64(h%18000)/100 - 90, lon: float64((h/18000)%36000)/100 - 180}
}

func stopAt(loc location, i int) (point, string) {
	if i < len(loc.codes) && loc.codes[i] != "" {
		return postalPoint(loc.codes[i]), loc.codes[i]
	}
	p := loc.points[i]
	return p, num(p.lat) + "," + num(p.lon)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseLocation(seg string) (location, error) {
	if m := bboxRe.FindStringSubmatch(seg); m != nil {
		g, err := parseGrid(m)
		if err != nil {
			return location{}, err
		}
		return location{grid: g}, nil
	}

	var loc location
	parts := strings.Split(seg, "+")
	route := false
	for i, part := range parts {
		if ts, rest, ok := strings.Cut(part, "_"); ok && !strings.HasPrefix(part, "postal_") {
			at, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return location{}, fmt.Errorf("route stop %d: %w", i, err)
			}
			loc.stops = append(loc.stops, at)
			part = rest
			route = true
		} else if route {
			return location{}, fmt.Errorf("route stop %d has no time", i)
		}

		if strings.HasPrefix(part, "postal_") {
			loc.codes = append(loc.codes, part)
			loc.points = append(loc.points, point{})
			continue
		}
		p, err := parsePoint(part)
		if err != nil {
			return location{}, err
		}
		if route {
			loc.codes = append(loc.codes, "")
		}
		loc.points = append(loc.points, p)
	}
	if !route {
		if len(loc.codes) > 0 && len(loc.codes) != len(parts) {
			return location{}, errors.New("cannot mix postal codes and coordinates")
		}
		if len(loc.codes) > 0 {
			loc.points = nil
		}
	}
	return loc, nil
}

func parsePoint(s string) (point, error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return point{}, fmt.Errorf("bad coordinate %q", s)
	}
	lat, err1 := strconv.ParseFloat(a, 64)
	lon, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return point{}, fmt.Errorf("bad coordinate %q", s)
	}
	return point{lat: lat, lon: lon}, nil
}

func parseGrid(m []string) (*grid, error) {
	latMax, _ := strconv.ParseFloat(m[1], 64)
	lonMin, _ := strconv.ParseFloat(m[2], 64)
	latMin, _ := strconv.ParseFloat(m[3], 64)
	lonMax, _ := strconv.ParseFloat(m[4], 64)
	if latMax < latMin || lonMax < lonMin {
		return nil, errors.New("bbox corners are reversed")
	}

	latStep, lonStep := 1.0, 1.0
	switch {
	case m[5] != "":
		latStep, _ = strconv.ParseFloat(m[5], 64)
		lonStep, _ = strconv.ParseFloat(m[6], 64)
	case m[7] != "":
		nx, _ := strconv.Atoi(m[7])
		ny, _ := strconv.Atoi(m[8])
		if nx < 1 || ny < 1 {
			return nil, errors.New("pixel counts must be positive")
		}
		lonStep = (lonMax - lonMin) / math.Max(float64(nx-1), 1)
		latStep = (latMax - latMin) / math.Max(float64(ny-1), 1)
	}
	if latStep <= 0 || lonStep <= 0 {
		if latMax != latMin && lonMax != lonMin {
			return nil, errors.New("resolution must be positive")
		}
		latStep, lonStep = 1, 1
	}

	return &grid{
		lats: steps(latMax, latMin, -latStep),
		lons: steps(lonMin, lonMax, lonStep),
	}, nil
}

func steps(from, to, step float64) []float64 {
	const eps = 1e-9
	n := int(math.Floor(math.Abs(to-from)/math.Abs(step)+eps)) + 1
	out := make([]float64, n)
	for i := range n {
		out[i] = math.Round((from+float64(i)*step)*1e6) / 1e6
	}
	return out
}

// expandTime accepts an instant, a comma list of instants, or a range
// "a--b[:PTnHnMnS]". A range without a step yields both endpoints.
func expandTime(seg string) ([]time.Time, error) {
	if !strings.Contains(seg, "--") {
		var out []time.Time
		for s := range strings.SplitSeq(seg, ",") {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	}

	a, rest, _ := strings.Cut(seg, "--")
	b, period, hasStep := strings.Cut(rest, ":PT")
	start, err := time.Parse(time.RFC3339Nano, a)
	if err != nil {
		return nil, err
	}
	end, err := time.Parse(time.RFC3339Nano, b)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, errors.New("range end before start")
	}
	if !hasStep {
		return []time.Time{start, end}, nil
	}
	step, err := parseStep("PT" + period)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out, nil
}

func parseStep(s string) (time.Duration, error) {
	m := stepRe.FindStringSubmatch(s)
	if m == nil || s == "PT" {
		return 0, fmt.Errorf("bad step %q", s)
	}
	var d time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * unit
	}
	if d <= 0 {
		return 0, fmt.Errorf("bad step %q", s)
	}
	return d, nil
}

func (s *service) userStats(w http.ResponseWriter) {
	user := s.cfg.User
	if user == "" {
		user = "anonymous"
	}
	body := map[string]any{
		"user statistics": map[string]any{
			"username":           user,
			"requests total":     s.calls.Load(),
			"limit requests day": 100000,
			"contact":            "ops@example.invalid",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

var fakeStations = []struct {
	category, kind, hash, wmo, name string
	lat, lon                        float64
	elev                            int
}{
	{"SYNOP", "SYNO", "1170348386", "10554", "Erfurt-Weimar", 50.9833, 10.9667, 316},
	{"SYNOP", "SYNO", "1152102010", "06660", "Zurich-Fluntern", 47.3776, 8.5657, 556},
	{"SYNOP", "SYNO", "1138744510", "10384", "Berlin-Tempelhof", 52.4675, 13.4021, 48},
	{"METAR", "METR", "1197220533", "", "Bern-Belp", 46.9141, 7.4992, 510},
}

func (s *service) stations(w http.ResponseWriter, r *http.Request) {
	var origin *point
	if v := r.URL.Query().Get("location"); v != "" {
		p, err := parsePoint(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		origin = &p
	}

	var b strings.Builder
	b.WriteString("Station Category;Station Type;ID Hash;WMO ID;Name;Location Lat,Lon;Elevation;Distance\n")
	for _, st := range fakeStations {
		dist := 0.0
		if origin != nil {
			dist = math.Round(haversine(*origin, point{st.lat, st.lon})*10) / 10
		}
		fmt.Fprintf(&b, "%s;%s;%s;%s;%s;%s,%s;%dm;%s\n",
			st.category, st.kind, st.hash, st.wmo, st.name, num(st.lat), num(st.lon), st.elev, num(dist))
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(b.String()))
}

func (s *service) lightning(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := expandTime(q.Get("time_range"))
	if err != nil || len(rng) != 2 {
		http.Error(w, "invalid time_range", http.StatusBadRequest)
		return
	}
	m := bboxRe.FindStringSubmatch(q.Get("bounding_box"))
	if m == nil {
		http.Error(w, "invalid bounding_box", http.StatusBadRequest)
		return
	}
	latMax, _ := strconv.ParseFloat(m[1], 64)
	lonMin, _ := strconv.ParseFloat(m[2], 64)
	latMin, _ := strconv.ParseFloat(m[3], 64)
	lonMax, _ := strconv.ParseFloat(m[4], 64)

	var b strings.Builder
	b.WriteString("stroke_time:sql;stroke_lat:d;stroke_lon:d\n")
	span := rng[1].Sub(rng[0])
	for i := range 5 {
		frac := float64(i+1) / 6
		at := rng[0].Add(time.Duration(float64(span) * frac))
		lat := latMin + (latMax-latMin)*frac
		lon := lonMin + (lonMax-lonMin)*(1-frac)
		fmt.Fprintf(&b, "%s;%s;%s\n", at.UTC().Format(time.RFC3339), num(math.Round(lat*1e4)/1e4), num(math.Round(lon*1e4)/1e4))
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(b.String()))
}

func haversine(a, b point) float64 {
	const earthRadius = 6371000.0
	rad := math.Pi / 180
	dLat := (b.lat - a.lat) * rad
	dLon := (b.lon - a.lon) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.lat*rad)*math.Cos(b.lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(h))
}
