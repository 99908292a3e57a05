package meteo

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/core/config"
)

// fakeUpstream mimics the service for long-form and binary shapes and records
// every request URI it sees.
type fakeUpstream struct {
	mu       sync.Mutex
	uris     []string
	override map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *Client) {
	t.Helper()
	up := &fakeUpstream{override: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)

	c, err := NewFromConfig(config.UpstreamCfg{BaseURL: srv.URL, User: "demo", Password: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return up, c
}

func (u *fakeUpstream) requests() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.uris...)
}

func (u *fakeUpstream) handle(prefix string, fn func(w http.ResponseWriter, r *http.Request)) {
	u.mu.Lock()
	u.override[prefix] = fn
	u.mu.Unlock()
}

func (u *fakeUpstream) handler(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.uris = append(u.uris, r.URL.RequestURI())
	var fn func(http.ResponseWriter, *http.Request)
	best := -1
	for prefix, h := range u.override {
		if strings.HasPrefix(r.URL.Path, prefix) && len(prefix) > best {
			fn, best = h, len(prefix)
		}
	}
	u.mu.Unlock()
	if fn != nil {
		fn(w, r)
		return
	}

	segs := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(segs) != 4 {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	switch segs[3] {
	case "png":
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG " + segs[0]))
	case "netcdf":
		w.Header().Set("Content-Type", "application/netcdf")
		_, _ = w.Write([]byte("CDF\x01" + segs[0]))
	default:
		writeLongForm(w, segs[0], strings.Split(segs[1], ","), strings.Split(segs[2], "+"))
	}
}

// writeLongForm emits one row per location x instant. Like the service, it
// omits location columns when a single location was requested.
func writeLongForm(w http.ResponseWriter, timeSeg string, params, locs []string) {
	instants, err := expandTime(timeSeg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	postal := strings.HasPrefix(locs[0], "postal_")
	multi := len(locs) > 1

	var b strings.Builder
	switch {
	case multi && postal:
		b.WriteString("station_id;")
	case multi:
		b.WriteString("lat;lon;")
	}
	b.WriteString("validdate;" + strings.Join(params, ";") + "\n")
	for _, loc := range locs {
		for i, at := range instants {
			switch {
			case multi && postal:
				b.WriteString(loc + ";")
			case multi:
				b.WriteString(strings.ReplaceAll(loc, ",", ";") + ";")
			}
			b.WriteString(at.Format(time.RFC3339))
			for j := range params {
				fmt.Fprintf(&b, ";%d.5", i+j)
			}
			b.WriteString("\n")
		}
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(b.String()))
}

func expandTime(seg string) ([]time.Time, error) {
	rng, period, hasStep := strings.Cut(seg, ":PT")
	if !strings.Contains(rng, "--") {
		t, err := time.Parse(time.RFC3339, seg)
		return []time.Time{t}, err
	}
	a, b, _ := strings.Cut(rng, "--")
	start, err := time.Parse(time.RFC3339, a)
	if err != nil {
		return nil, err
	}
	end, err := time.Parse(time.RFC3339, b)
	if err != nil {
		return nil, err
	}
	if !hasStep {
		return []time.Time{start, end}, nil
	}
	step, err := time.ParseDuration(strings.ToLower(period))
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out, nil
}
