// Package observability holds the process-wide Prometheus collectors for the
// gateway, the upstream transport and the response cache.
package observability

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var scenarioLabel atomic.Value

func init() {
	scenarioLabel.Store("baseline")
}

func SetScenario(s string) {
	if s == "" {
		s = "baseline"
	}
	scenarioLabel.Store(s)
}

func getScenario() string {
	if v := scenarioLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "baseline"
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "scenario"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "scenario"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "status", "scenario"},
	)

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meteo_queries_total",
			Help: "Facade queries by shape and outcome.",
		},
		[]string{"shape", "outcome", "scenario"},
	)

	decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meteo_decode_errors_total",
			Help: "Payloads that could not be decoded, by shape.",
		},
		[]string{"shape"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by tier and outcome.",
		},
		[]string{"tier", "outcome", "scenario"},
	)

	redisOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis command latency by operation and result.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"op", "result"},
	)

	hotCells = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotness_tracked_cells",
			Help: "Number of H3 cells currently tracked by the hotness model.",
		},
	)

	sourceInvalidatedAt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "invalidation_last_applied_timestamp_seconds",
			Help: "Event timestamp of the last invalidation applied, by event source.",
		},
		[]string{"source"},
	)

	rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_rejected_total",
			Help: "Upstream calls refused locally, by reason (rate_limit, breaker_open).",
		},
		[]string{"reason"},
	)
)

var (
	registerOnce sync.Once
	registerer   prometheus.Registerer
)

var lastInvalidation sync.Map

// Init registers all collectors on reg. It is a no-op when disabled and only
// the first call registers.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	registerOnce.Do(func() {
		registerer = reg
		for _, c := range []prometheus.Collector{
			httpRequestsTotal,
			httpRequestDurationSeconds,
			upstreamLatencySeconds,
			queriesTotal,
			decodeErrorsTotal,
			cacheResults,
			redisOpSeconds,
			hotCells,
			sourceInvalidatedAt,
			rejectedTotal,
		} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	})
}

// Registerer is the registry given to Init, or nil while metrics are disabled.
// Components with their own collectors register there.
func Registerer() prometheus.Registerer { return registerer }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	s := getScenario()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, s).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, s).Observe(durationSeconds)
}

// ObserveUpstreamLatency records one upstream round trip. status is 0 when
// no response was received.
func ObserveUpstreamLatency(upstream string, status int, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, strconv.Itoa(status), getScenario()).Observe(durationSeconds)
}

func ObserveQuery(shape, outcome string) {
	queriesTotal.WithLabelValues(shape, outcome, getScenario()).Inc()
}

func IncDecodeError(shape string) {
	decodeErrorsTotal.WithLabelValues(shape).Inc()
}

// ObserveCacheOp counts a cache lookup; tier is "l1" or "l2", outcome "hit",
// "miss" or "error".
func ObserveCacheOp(tier, outcome string) {
	cacheResults.WithLabelValues(tier, outcome, getScenario()).Inc()
}

func ObserveRedisOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	redisOpSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func SetHotCells(n int) {
	hotCells.Set(float64(n))
}

func SetSourceInvalidatedAt(source string, ts time.Time) {
	if source == "" {
		source = "unknown"
	}
	sourceInvalidatedAt.WithLabelValues(source).Set(float64(ts.Unix()))
	lastInvalidation.Store(source, ts.Unix())
}

// GetSourceInvalidatedAtUnix returns the last value set for source, 0 if none.
func GetSourceInvalidatedAtUnix(source string) int64 {
	if v, ok := lastInvalidation.Load(source); ok {
		return v.(int64)
	}
	return 0
}

func IncRejected(reason string) {
	rejectedTotal.WithLabelValues(reason).Inc()
}
