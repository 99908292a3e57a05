// Command loadgen drives the gateway with a Zipf-distributed mix of
// time-series and grid queries and writes per-request samples plus a summary.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/meteo-query/internal/logger"
)

type Config struct {
	BaseURL         string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	QueryCount      int
	HotShare        float64
	H3Res           int
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	Scenario        string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:8080", "Gateway base URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.QueryCount, "queries", 256, "Distinct queries in pool")
	flag.Float64Var(&cfg.HotShare, "hot-share", 0.25, "Share of the pool placed on hot H3 neighbourhoods")
	flag.IntVar(&cfg.H3Res, "h3-res", 7, "H3 resolution of hot neighbourhoods")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.StringVar(&cfg.Scenario, "scenario", "", "Scenario label recorded in the summary")
	flag.Parse()
	return cfg
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Index     int
	Kind      string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Queries       int       `json:"queries"`
	TargetURL     string    `json:"target"`
	Scenario      string    `json:"scenario,omitempty"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	zl := logger.Build(logger.Config{Level: "info", Component: "loadgen", Console: true}, os.Stderr)
	if err := run(cfg, zl); err != nil {
		zl.Fatal().Err(err).Msg("loadgen failed")
	}
}

func run(cfg Config, log zerolog.Logger) error {
	if cfg.ZipfS <= 1 || cfg.ZipfV < 1 {
		return fmt.Errorf("zipf parameters need s > 1 and v >= 1, got s=%g v=%g", cfg.ZipfS, cfg.ZipfV)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		return fmt.Errorf("mkdir results: %w", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	seed := time.Now().UnixNano()
	queries, err := makeQueries(cfg.QueryCount, cfg.HotShare, cfg.H3Res, time.Now(), rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	imax := uint64(len(queries)) - 1
	base := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = csvFile.Close() }()

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		resultsChan <- collect(samplesChan, csv.NewWriter(csvFile), log)
	}()

	startTime := time.Now()
	log.Info().
		Str("target", base).
		Dur("duration", cfg.Duration).
		Int("concurrency", cfg.Concurrency).
		Float64("zipf_s", cfg.ZipfS).
		Float64("zipf_v", cfg.ZipfV).
		Int("queries", len(queries)).
		Msg("loadgen start")

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				idx := int(zipfDist.Uint64())
				if idx >= len(queries) {
					continue
				}
				result := fire(ctx, httpClient, base, queries[idx])
				result.Index = idx

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Queries:       len(queries),
		TargetURL:     base,
		Scenario:      cfg.Scenario,
	}
	if err := writeSummary(jsonPath, runSummary); err != nil {
		return err
	}

	log.Info().
		Int64("total", agg.total).
		Int64("success", agg.success).
		Int64("errors", agg.errors).
		Float64("rps", runSummary.ThroughputRPS).
		Float64("p50_ms", runSummary.P50Ms).
		Float64("p95_ms", runSummary.P95Ms).
		Float64("p99_ms", runSummary.P99Ms).
		Str("summary", jsonPath).
		Str("samples", csvPath).
		Msg("done")
	return nil
}

func fire(ctx context.Context, c *http.Client, base string, q query) sample {
	start := time.Now()
	res := sample{Timestamp: start, Kind: q.Kind}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+q.Path, nil)
	if err != nil {
		res.ErrorMsg = err.Error()
		return res
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	resp, err := c.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.ErrorMsg = err.Error()
		return res
	}
	res.Status = resp.StatusCode
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
	}
	return res
}

func collect(samples <-chan sample, w *csv.Writer, log zerolog.Logger) aggregatedResult {
	_ = w.Write([]string{"timestamp", "latency_ms", "status", "error", "query_idx", "kind"})
	var agg aggregatedResult
	for s := range samples {
		agg.total++
		latMs := float64(s.Latency.Microseconds()) / 1000.0
		if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
			agg.success++
			agg.latMs = append(agg.latMs, latMs)
		} else {
			agg.errors++
		}
		_ = w.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%.3f", latMs),
			fmt.Sprintf("%d", s.Status),
			s.ErrorMsg,
			fmt.Sprintf("%d", s.Index),
			s.Kind,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Warn().Err(err).Msg("csv flush error")
	}
	return agg
}

func writeSummary(path string, s summary) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open summary: %w", err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
