package main

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	h3 "github.com/uber/h3-go/v4"
)

func TestMakeQueries_HotPoolSitsOnCityNeighbourhoods(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 17, 0, 0, time.UTC)
	qs, err := makeQueries(40, 0.5, 7, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("makeQueries: %v", err)
	}
	if len(qs) != 40 {
		t.Fatalf("len = %d", len(qs))
	}

	zurich, _ := h3.LatLngToCell(h3.LatLng{Lat: hotCenters[0][0], Lng: hotCenters[0][1]}, 7)
	disk, err := h3.GridDisk(zurich, 2)
	if err != nil {
		t.Fatalf("GridDisk: %v", err)
	}
	near := false
	for _, c := range disk {
		near = near || c.String() == qs[0].Cell
	}
	if !near {
		t.Fatalf("first hot cell %s is not near Zurich %s", qs[0].Cell, zurich)
	}
	for i, q := range qs {
		hot := i < 20
		if hot != (q.Cell != "") {
			t.Fatalf("query %d hot=%v cell=%q", i, hot, q.Cell)
		}
	}
	if qs[3].Kind != kindGrid || qs[0].Kind != kindTimeSeries {
		t.Fatalf("kinds = %s %s", qs[0].Kind, qs[3].Kind)
	}
}

func TestMakeQueries_PathsParseAsGatewayRequests(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 17, 0, 0, time.UTC)
	qs, err := makeQueries(12, 0.5, 6, now, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("makeQueries: %v", err)
	}
	for _, q := range qs {
		u, err := url.Parse(q.Path)
		if err != nil {
			t.Fatalf("parse %q: %v", q.Path, err)
		}
		v := u.Query()
		switch q.Kind {
		case kindTimeSeries:
			if u.Path != "/v1/timeseries" || v.Get("time") != "2024-01-01T10:00:00Z--2024-01-02T10:00:00Z:PT1H" || v.Get("point") == "" {
				t.Fatalf("timeseries query = %s", q.Path)
			}
		case kindGrid:
			if u.Path != "/v1/grid" || v.Get("time") != "2024-01-01T10:00:00Z" || len(strings.Split(v.Get("bbox"), ",")) != 4 {
				t.Fatalf("grid query = %s", q.Path)
			}
		default:
			t.Fatalf("kind = %q", q.Kind)
		}
	}
	if _, err := makeQueries(0, 0.5, 7, now, rand.New(rand.NewSource(1))); err == nil {
		t.Fatalf("empty pool accepted")
	}
}

func TestFire_RecordsStatusAndRequestID(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		if strings.HasPrefix(r.URL.Path, "/v1/grid") {
			http.Error(w, "bad", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ok := fire(t.Context(), srv.Client(), srv.URL, query{Kind: kindTimeSeries, Path: "/v1/timeseries?x=1"})
	if ok.Status != http.StatusOK || ok.ErrorMsg != "" || len(gotID) != 36 {
		t.Fatalf("ok sample = %+v id=%q", ok, gotID)
	}
	bad := fire(t.Context(), srv.Client(), srv.URL, query{Kind: kindGrid, Path: "/v1/grid"})
	if bad.Status != http.StatusBadGateway || bad.ErrorMsg != "status=502" {
		t.Fatalf("bad sample = %+v", bad)
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if got := percentile(vals, 50); got != 3 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(vals, 95); got < 4.79 || got > 4.81 {
		t.Fatalf("p95 = %v", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}
