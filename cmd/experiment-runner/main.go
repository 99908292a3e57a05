// Command experiment-runner starts the gateway once per configuration in a
// scenario matrix, drives it with loadgen and snapshots Prometheus results
// for each run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	urlpkg "net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

type opt struct {
	Scenario     string
	H3Res        int
	TTL          string
	HotThreshold string
	Invalidation string
}

type cfg struct {
	PromURL       string
	UpstreamURL   string
	GatewayAddr   string
	Duration      time.Duration
	Concurrency   int
	Queries       int
	OutRoot       string
	DryRun        bool
	Scenarios     []string
	H3ResList     []int
	TTLs          []string
	Hots          []string
	Invalidations []string
	RedisAddr     string
	ClearCache    bool
}

func main() {
	c := parseFlags()
	if c.DryRun {
		if err := dryRun(c); err != nil {
			log.Fatalf("dry-run: %v", err)
		}
		return
	}
	if err := runAll(c); err != nil {
		log.Fatalf("runner: %v", err)
	}
}

func parseFlags() cfg {
	var c cfg
	var scenarios, h3res, ttls, hots, invs string

	flag.StringVar(&c.PromURL, "prom", "http://localhost:9090", "Prometheus base URL")
	flag.StringVar(&c.UpstreamURL, "upstream", "http://localhost:8091", "Weather service base URL passed to the gateway")
	flag.StringVar(&c.GatewayAddr, "addr", "localhost:8090", "Gateway listen address")
	flag.DurationVar(&c.Duration, "duration", 2*time.Minute, "Per-combo load duration")
	flag.IntVar(&c.Concurrency, "concurrency", 32, "Loadgen concurrency")
	flag.IntVar(&c.Queries, "queries", 256, "Distinct queries in the loadgen pool")
	flag.StringVar(&c.OutRoot, "out", "results", "Output root dir")
	flag.BoolVar(&c.DryRun, "dry-run", false, "Only create directory tree; no services")
	flag.StringVar(&scenarios, "scenarios", "baseline,cache", "Scenarios CSV")
	flag.StringVar(&h3res, "h3res", "5,6,7", "H3 resolutions CSV")
	flag.StringVar(&ttls, "ttls", "5m,15m", "TTLs CSV (Cache TTL Default)")
	flag.StringVar(&hots, "hots", "5,10", "Hot thresholds CSV")
	flag.StringVar(&invs, "invalidations", "ttl,kafka", "Invalidation modes CSV")
	flag.StringVar(&c.RedisAddr, "redis", envOr("REDIS_ADDR", "localhost:6379"), "Redis address flushed between cache runs")
	flag.BoolVar(&c.ClearCache, "clear-cache", true, "Flush Redis before each cache scenario run")

	flag.Parse()

	c.Scenarios = splitCSV(scenarios)
	for _, s := range splitCSV(h3res) {
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			c.H3ResList = append(c.H3ResList, n)
		}
	}
	c.TTLs = splitCSV(ttls)
	c.Hots = splitCSV(hots)
	c.Invalidations = splitCSV(invs)
	return c
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// combos expands the matrix. The baseline scenario ignores the cache knobs,
// so it runs once per invalidation mode only.
func combos(c cfg) []opt {
	var out []opt
	for _, sc := range c.Scenarios {
		if sc == "baseline" {
			out = append(out, opt{Scenario: sc, H3Res: firstOr(c.H3ResList, 6), TTL: "-", HotThreshold: "-", Invalidation: "ttl"})
			continue
		}
		for _, res := range c.H3ResList {
			for _, ttl := range c.TTLs {
				for _, hot := range c.Hots {
					for _, inv := range c.Invalidations {
						out = append(out, opt{Scenario: sc, H3Res: res, TTL: ttl, HotThreshold: hot, Invalidation: inv})
					}
				}
			}
		}
	}
	return out
}

func firstOr(v []int, def int) int {
	if len(v) == 0 {
		return def
	}
	return v[0]
}

func runAll(c cfg) error {
	tstamp := time.Now().UTC().Format("20060102_150405Z")
	root := filepath.Join(c.OutRoot, tstamp)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("mkdir results root: %w", err)
	}

	if err := checkPortAvailable(c.GatewayAddr); err != nil {
		return fmt.Errorf("pre-flight port check failed: %w", err)
	}

	for _, one := range combos(c) {
		if err := runOne(c, root, one); err != nil {
			return err
		}
	}
	return nil
}

func bundleDir(root string, o opt) string {
	return filepath.Join(root,
		fmt.Sprintf("%s-r%d-ttl%s-hot%s-inv%s",
			o.Scenario, o.H3Res, sanitize(o.TTL), sanitize(o.HotThreshold), o.Invalidation))
}

func sanitize(s string) string {
	return strings.NewReplacer(":", "", "/", "-", ",", "_").Replace(s)
}

func gatewayEnv(base []string, c cfg, o opt) []string {
	env := append([]string(nil), base...)
	env = set(env, "SCENARIO", o.Scenario)
	env = set(env, "ADDR", c.GatewayAddr)
	env = set(env, "METEO_BASE_URL", c.UpstreamURL)
	env = set(env, "H3_RES", fmt.Sprintf("%d", o.H3Res))
	env = set(env, "METRICS_ENABLED", "true")
	if o.TTL != "-" {
		env = set(env, "CACHE_TTL_DEFAULT", o.TTL)
	}
	if o.HotThreshold != "-" {
		env = set(env, "HOT_THRESHOLD", o.HotThreshold)
	}
	switch o.Invalidation {
	case "kafka":
		env = set(env, "INVALIDATION_ENABLED", "true")
		env = set(env, "INVALIDATION_DRIVER", "kafka")
	default:
		env = set(env, "INVALIDATION_ENABLED", "false")
		env = set(env, "INVALIDATION_DRIVER", "none")
	}
	return env
}

func runOne(c cfg, root string, o opt) error {
	dir := bundleDir(root, o)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir combo dir: %w", err)
	}
	if c.DryRun {
		return nil
	}

	if c.ClearCache && o.Scenario == "cache" {
		if err := clearRedis(c.RedisAddr); err != nil {
			return fmt.Errorf("clear redis before scenario=%s: %w", o.Scenario, err)
		}
	}

	app := exec.Command("go", "run", "./cmd/gateway")
	app.Env = gatewayEnv(os.Environ(), c, o)
	app.Stdout = mustFile(filepath.Join(dir, "gateway.stdout.log"))
	app.Stderr = mustFile(filepath.Join(dir, "gateway.stderr.log"))
	app.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := app.Start(); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	defer func() {
		if app.Process == nil {
			return
		}

		if pgid, err := syscall.Getpgid(app.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = app.Process.Kill()
		}
		_ = app.Wait()
	}()

	if err := waitReady("http://"+c.GatewayAddr+"/readyz", 30*time.Second); err != nil {
		return fmt.Errorf("gateway not ready: %w", err)
	}

	args := []string{
		"run", "./cmd/loadgen",
		"-target", "http://" + c.GatewayAddr,
		"-concurrency", fmt.Sprintf("%d", c.Concurrency),
		"-duration", c.Duration.String(),
		"-queries", fmt.Sprintf("%d", c.Queries),
		"-h3-res", fmt.Sprintf("%d", o.H3Res),
		"-scenario", o.Scenario,
		"-out", filepath.Join(dir, o.Scenario),
		"-append-ts=false",
	}

	// #nosec G204 -- constructing argv for a fixed binary; no shell expansion, flags are static.
	load := exec.Command("go", args...)

	load.Stdout = mustFile(filepath.Join(dir, "loadgen.stdout.log"))
	load.Stderr = mustFile(filepath.Join(dir, "loadgen.stderr.log"))
	start := time.Now().UTC()
	if err := load.Run(); err != nil {
		return fmt.Errorf("loadgen: %w", err)
	}
	end := time.Now().UTC()

	if err := queryPrometheus(c.PromURL, dir, o, start, end); err != nil {
		_ = os.WriteFile(filepath.Join(dir, "prom_errors.txt"),
			[]byte(err.Error()), 0o600)
	}

	return nil
}

func set(env []string, k, v string) []string {
	prefix := k + "="
	for i := range env {
		if strings.HasPrefix(env[i], prefix) {
			env[i] = prefix + v
			return env
		}
	}
	return append(env, prefix+v)
}

func waitReady(readyURL string, timeout time.Duration) error {
	u, err := urlpkg.Parse(readyURL)
	if err != nil || u.Scheme != "http" {
		return fmt.Errorf("invalid ready URL: %q", readyURL)
	}
	if host := u.Hostname(); host != "localhost" && host != "127.0.0.1" && host != "" {
		return fmt.Errorf("ready URL must be local: %q", readyURL)
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		// #nosec G107 -- URL is validated above and restricted to localhost.
		resp, err := http.Get(u.String())
		if err == nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return nil
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	return errors.New("timeout waiting for readiness")
}

func mustFile(path string) *os.File {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	return f
}

type oneQuery struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
	URL  string `json:"url"`
}

func promQueries(base string, o opt, window time.Duration) []oneQuery {
	base = strings.TrimRight(base, "/")
	esc := urlpkg.QueryEscape
	sc := o.Scenario
	secs := int(window.Seconds())

	quantile := func(q float64) string {
		return fmt.Sprintf(`histogram_quantile(%.2f, sum by (le) (increase(http_request_duration_seconds_bucket{scenario="%s",route=~"/v1/.*"}[%ds])))`, q, sc, secs)
	}
	qHit := fmt.Sprintf(`(
  sum(increase(cache_results_total{outcome="hit",scenario="%s"}[%ds]))
) / clamp_min(sum(increase(cache_results_total{outcome=~"hit|miss",scenario="%s"}[%ds])), 1e-9)`, sc, secs, sc, secs)
	qUpstream := fmt.Sprintf(`sum(increase(upstream_latency_seconds_count{scenario="%s"}[%ds]))`, sc, secs)
	qErrors := fmt.Sprintf(`sum by (outcome) (increase(meteo_queries_total{outcome!="ok",scenario="%s"}[%ds]))`, sc, secs)
	qRedisMem := `sum(redis_memory_used_bytes)`

	var out []oneQuery
	for _, q := range []struct{ name, expr string }{
		{"p50_latency_s", quantile(0.50)},
		{"p95_latency_s", quantile(0.95)},
		{"p99_latency_s", quantile(0.99)},
		{"hit_ratio", qHit},
		{"upstream_calls", qUpstream},
		{"query_errors", qErrors},
		{"redis_memory_used_bytes_sum", qRedisMem},
	} {
		out = append(out, oneQuery{Name: q.name, Expr: q.expr, URL: base + "/api/v1/query?query=" + esc(q.expr)})
	}
	return out
}

func queryPrometheus(base, dir string, o opt, start, end time.Time) error {
	queries := promQueries(base, o, end.Sub(start).Round(time.Second))
	b, _ := json.MarshalIndent(queries, "", "  ")
	_ = os.WriteFile(filepath.Join(dir, "promql_queries.json"), b, 0o600)

	type promResp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  string          `json:"error,omitempty"`
	}

	httpCli := http.Client{Timeout: 8 * time.Second}
	results := make(map[string]json.RawMessage, len(queries))

	for _, q := range queries {
		resp, err := httpCli.Get(q.URL)
		if err != nil {
			return fmt.Errorf("prom query %s: %w", q.Name, err)
		}
		var rr promResp
		dec := json.NewDecoder(resp.Body)
		_ = dec.Decode(&rr)
		_ = resp.Body.Close()
		if rr.Status != "success" {
			msg, _ := json.Marshal(map[string]string{"error": rr.Error})
			results[q.Name] = msg
			continue
		}
		results[q.Name] = rr.Data
	}
	js, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(filepath.Join(dir, "prom_results.json"), js, 0o600); err != nil {
		return fmt.Errorf("write prom_results.json: %w", err)
	}
	return nil
}

func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %s is already in use: %w", addr, err)
	}
	_ = ln.Close()
	return nil
}

func clearRedis(addr string) error {
	rc := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 2 * time.Second})
	defer func() { _ = rc.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("flush redis %s: %w", addr, err)
	}
	return nil
}

func dryRun(c cfg) error {
	tstamp := time.Now().UTC().Format("20060102_150405Z")
	root := filepath.Join(c.OutRoot, tstamp)
	for _, one := range combos(c) {
		if err := os.MkdirAll(bundleDir(root, one), 0o750); err != nil {
			return fmt.Errorf("mkdir combo dir: %w", err)
		}
	}
	fmt.Println("created:", root)
	return nil
}
