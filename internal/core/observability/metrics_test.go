package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestInit_RegistersAndScrapes(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(reg, true) // second call must not panic
	SetScenario("cache")
	defer SetScenario("")

	ObserveHTTP("GET", "/v1/timeseries", 200, 0.004)
	ObserveQuery("route", "ok")
	ObserveQuery("route", "ok")

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("close body: %v", cerr)
		}
	})
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	out := string(b)

	exp := `meteo_queries_total{outcome="ok",scenario="cache",shape="route"} 2`
	if !strings.Contains(out, exp) {
		t.Fatalf("expected %q in metrics; got:\n%s", exp, out)
	}
	if !strings.Contains(out, `http_requests_total{method="GET",route="/v1/timeseries",scenario="cache",status="200"} 1`) {
		t.Fatalf("missing http_requests_total sample:\n%s", out)
	}
}

func TestInit_DisabledIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, false)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("disabled init registered %d families", len(mfs))
	}
}

func TestSetScenario_EmptyFallsBack(t *testing.T) {
	SetScenario("")
	if got := getScenario(); got != "baseline" {
		t.Fatalf("scenario = %q", got)
	}
}
