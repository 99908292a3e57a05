package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

type fakeUpstream struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (u *fakeUpstream) Fetch(_ context.Context, target string) (transport.Payload, error) {
	u.mu.Lock()
	u.targets = append(u.targets, target)
	u.mu.Unlock()
	if u.err != nil {
		return transport.Payload{}, u.err
	}
	switch {
	case strings.HasSuffix(target, "/png"):
		return transport.Payload{ContentType: "image/png", Body: []byte("\x89PNG fake")}, nil
	case strings.HasPrefix(target, "/user_stats_json"):
		return transport.Payload{ContentType: "application/json", Body: []byte(`{"user statistics":{"username":"demo","requests today":12}}`)}, nil
	default:
		return transport.Payload{ContentType: "text/csv", Body: []byte("validdate;t_2m:C\n2024-01-01T00:00:00Z;1.5\n")}, nil
	}
}

func (u *fakeUpstream) last() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.targets) == 0 {
		return ""
	}
	return u.targets[len(u.targets)-1]
}

func newTestRouter(up *fakeUpstream) http.Handler {
	return New(Deps{Client: meteo.New(up), Metrics: http.NotFoundHandler()})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestTimeSeries_CSVWithLocationColumns(t *testing.T) {
	up := &fakeUpstream{}
	rr := get(newTestRouter(up), "/v1/timeseries?time=2024-01-01T00:00:00Z&parameters=t_2m:C&point=52.52,13.405&opt=model=mix")

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content-type=%q", ct)
	}
	if header, _, _ := strings.Cut(rr.Body.String(), "\n"); header != "lat,lon,validdate,t_2m:C" {
		t.Fatalf("header=%q", header)
	}
	if target := up.last(); !strings.Contains(target, "/t_2m:C/52.52,13.405/csv?model=mix") {
		t.Fatalf("target=%q", target)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestTimeSeries_JSONOutput(t *testing.T) {
	rr := get(newTestRouter(&fakeUpstream{}), "/v1/timeseries?time=2024-01-01T00:00:00Z&parameters=t_2m:C&point=52.52,13.405&out=json")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status=%d ct=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestErrors_MapToStatusCodes(t *testing.T) {
	up := &fakeUpstream{}
	h := newTestRouter(up)

	cases := []struct {
		path string
		want int
	}{
		{"/v1/timeseries?time=2024-01-01T00:00:00Z&point=52.52,13.405", http.StatusBadRequest},
		{"/v1/timeseries?time=nope&parameters=t_2m:C&point=52.52,13.405", http.StatusBadRequest},
		{"/v1/route?at=2024-01-01T00:00:00Z&point=52.52,13.405&point=47.37,8.54&parameters=t_2m:C", http.StatusBadRequest},
		{"/v1/grid/pivoted?time=2024-01-01T00:00:00Z&parameter=t_2m:C&bbox=45,5,50,10", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rr := get(h, tc.path); rr.Code != tc.want {
			t.Fatalf("%s: status=%d want %d body=%s", tc.path, rr.Code, tc.want, rr.Body.String())
		}
	}
	if n := len(up.targets); n != 0 {
		t.Fatalf("invalid requests reached the upstream %d times", n)
	}

	up.err = &transport.StatusError{Code: 500, Body: "boom"}
	rr := get(h, "/v1/timeseries?time=2024-01-01T00:00:00Z&parameters=t_2m:C&point=52.52,13.405")
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), `"error"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRoute_PointsAndPostal(t *testing.T) {
	up := &fakeUpstream{}
	h := newTestRouter(up)

	rr := get(h, "/v1/route?at=2024-01-01T00:00:00Z&at=2024-01-01T01:00:00Z&point=52.52,13.405&point=47.37,8.54&parameters=t_2m:C")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(up.last(), "route=true") {
		t.Fatalf("target=%q", up.last())
	}

	rr = get(h, "/v1/route?at=2024-01-01T00:00:00Z&postal=postal_DE10117&parameters=t_2m:C")
	if rr.Code != http.StatusOK || !strings.Contains(up.last(), "postal_DE10117") {
		t.Fatalf("status=%d target=%q", rr.Code, up.last())
	}
}

func TestPNG_StreamsImage(t *testing.T) {
	rr := get(newTestRouter(&fakeUpstream{}), "/v1/png?time=2024-01-01T00:00:00Z&parameter=t_2m:C&bbox=45,5,50,10&res=0.5,0.5")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status=%d ct=%q body=%s", rr.Code, rr.Header().Get("Content-Type"), rr.Body.String())
	}
	if !strings.HasPrefix(rr.Body.String(), "\x89PNG") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestAccount_JSON(t *testing.T) {
	rr := get(newTestRouter(&fakeUpstream{}), "/v1/account")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"username":"demo"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProbes(t *testing.T) {
	h := newTestRouter(&fakeUpstream{})
	if rr := get(h, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if rr := get(h, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rr.Code)
	}
}
