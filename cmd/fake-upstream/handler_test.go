package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.MaxGridCells == 0 {
		cfg.MaxGridCells = 40000
	}
	srv := httptest.NewServer(newService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, target string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestQuery_SinglePointOmitsLocationColumns(t *testing.T) {
	srv := newTestService(t, Config{})
	code, body := get(t, srv, "/2024-01-01T00:00:00Z--2024-01-01T02:00:00Z:PT1H/t_2m:C,precip_1h:mm/52.52,13.405/csv")
	if code != http.StatusOK {
		t.Fatalf("status = %d body=%s", code, body)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if lines[0] != "validdate;t_2m:C;precip_1h:mm" || len(lines) != 4 {
		t.Fatalf("body = %q", body)
	}
	if !strings.HasPrefix(lines[2], "2024-01-01T01:00:00Z;") {
		t.Fatalf("row = %q", lines[2])
	}
}

func TestQuery_DeterministicValues(t *testing.T) {
	srv := newTestService(t, Config{})
	_, a := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/47.37,8.54+46.95,7.44/csv")
	_, b := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/47.37,8.54+46.95,7.44/csv")
	if a != b {
		t.Fatalf("values differ between calls:\n%s\n%s", a, b)
	}
	if !strings.HasPrefix(a, "lat;lon;validdate;t_2m:C\n47.37;8.54;") {
		t.Fatalf("body = %q", a)
	}
}

func TestQuery_PivotedAndLongGrid(t *testing.T) {
	srv := newTestService(t, Config{})
	_, piv := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/52.5,13.4_52.4,13.5:0.05,0.05/csv")
	lines := strings.Split(strings.TrimSpace(piv), "\n")
	if lines[0] != "data;13.4;13.45;13.5" || len(lines) != 4 || !strings.HasPrefix(lines[3], "52.4;") {
		t.Fatalf("pivoted = %q", piv)
	}

	_, long := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C,wind_speed_10m:ms/52.5,13.4_52.4,13.5:3x2/csv")
	lines = strings.Split(strings.TrimSpace(long), "\n")
	if lines[0] != "lat;lon;t_2m:C;wind_speed_10m:ms" || len(lines) != 7 {
		t.Fatalf("long = %q", long)
	}
}

func TestQuery_OversizedGridRejected(t *testing.T) {
	srv := newTestService(t, Config{MaxGridCells: 10})
	code, _ := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/52.5,13.4_52.4,13.5:0.01,0.01/csv")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
}

func TestQuery_PostalAndRoute(t *testing.T) {
	srv := newTestService(t, Config{})
	_, one := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/postal_CH9000/csv")
	if !strings.HasPrefix(one, "validdate;t_2m:C\n") {
		t.Fatalf("single postal = %q", one)
	}
	_, many := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/postal_CH9000+postal_CH3000/csv")
	if !strings.HasPrefix(many, "station_id;validdate;t_2m:C\npostal_CH9000;") {
		t.Fatalf("multi postal = %q", many)
	}

	_, route := get(t, srv, "/2024-01-01T00:00:00Z,2024-01-01T01:00:00Z/t_2m:C/2024-01-01T00:00:00Z_47.42,9.37+2024-01-01T01:00:00Z_47.5,8.73/csv?route=true")
	lines := strings.Split(strings.TrimSpace(route), "\n")
	if lines[0] != "lat;lon;validdate;t_2m:C" || !strings.HasPrefix(lines[2], "47.5;8.73;2024-01-01T01:00:00Z;") {
		t.Fatalf("route = %q", route)
	}

	_, postalRoute := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/2024-01-01T00:00:00Z_postal_CH3000/csv?route=true")
	if !strings.HasPrefix(postalRoute, "station_id;validdate;t_2m:C\npostal_CH3000;") {
		t.Fatalf("postal route = %q", postalRoute)
	}

	if code, _ := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/postal_CH9000+47.1,8.2/csv"); code != http.StatusBadRequest {
		t.Fatalf("mixed location status = %d", code)
	}
}

func TestQuery_BinaryFormats(t *testing.T) {
	srv := newTestService(t, Config{})
	code, body := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/52.5,13.4_52.4,13.5:4x3/png")
	if code != http.StatusOK {
		t.Fatalf("png status = %d", code)
	}
	img, err := png.Decode(bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Fatalf("png bounds = %v", b)
	}

	_, nc := get(t, srv, "/2024-01-01T00:00:00Z/t_2m:C/52.5,13.4_52.4,13.5:4x3/netcdf")
	if !strings.HasPrefix(nc, "CDF\x01") {
		t.Fatalf("netcdf = %q", nc)
	}
}

func TestQuery_BadRequests(t *testing.T) {
	srv := newTestService(t, Config{})
	for _, target := range []string{
		"/not-a-time/t_2m:C/52.5,13.4/csv",
		"/2024-01-02T00:00:00Z--2024-01-01T00:00:00Z:PT1H/t_2m:C/52.5,13.4/csv",
		"/2024-01-01T00:00:00Z--2024-01-02T00:00:00Z:P1D/t_2m:C/52.5,13.4/csv",
		"/2024-01-01T00:00:00Z/t_2m:C/95,13.4/csv",
		"/2024-01-01T00:00:00Z/t_2m:C/52.5,13.4/xml",
	} {
		if code, _ := get(t, srv, target); code != http.StatusBadRequest {
			t.Fatalf("%s status = %d", target, code)
		}
	}
	if code, _ := get(t, srv, "/too/few/segments"); code != http.StatusNotFound {
		t.Fatalf("short path status = %d", code)
	}
}

func TestBasicAuth(t *testing.T) {
	srv := newTestService(t, Config{User: "demo", Password: "secret"})
	if code, _ := get(t, srv, "/user_stats_json"); code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", code)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/user_stats_json", nil)
	req.SetBasicAuth("demo", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["user statistics"]["username"] != "demo" {
		t.Fatalf("stats = %v", body)
	}
}

func TestStationsAndLightning(t *testing.T) {
	srv := newTestService(t, Config{})
	_, st := get(t, srv, "/find_station?location=47.37,8.54")
	lines := strings.Split(strings.TrimSpace(st), "\n")
	if len(lines) != len(fakeStations)+1 || !strings.Contains(lines[0], "Location Lat,Lon") {
		t.Fatalf("stations = %q", st)
	}

	_, lt := get(t, srv, "/get_lightning_list?time_range=2024-01-01T00:00:00Z--2024-01-01T06:00:00Z&bounding_box=52.5,13.4_52.4,13.5&format=csv")
	lines = strings.Split(strings.TrimSpace(lt), "\n")
	if lines[0] != "stroke_time:sql;stroke_lat:d;stroke_lon:d" || len(lines) != 6 {
		t.Fatalf("lightning = %q", lt)
	}
	first := strings.Split(lines[1], ";")
	at, err := time.Parse(time.RFC3339, first[0])
	if err != nil || at.Before(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("stroke time = %q", first[0])
	}
}

func TestExpandTime(t *testing.T) {
	got, err := expandTime("2024-01-01T00:00:00Z--2024-01-01T01:30:00Z:PT45M")
	if err != nil || len(got) != 3 {
		t.Fatalf("expandTime = %v, %v", got, err)
	}
	list, err := expandTime("2024-01-01T00:00:00Z,2024-01-03T00:00:00Z")
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v, %v", list, err)
	}
	if _, err := parseStep("PT"); err == nil {
		t.Fatalf("empty step accepted")
	}
}
