// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultBaseURL = "https://api.meteomatics.com"

type UpstreamCfg struct {
	BaseURL            string
	User               string
	Password           string
	Timeout            time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	BreakerEnabled     bool
	BreakerFailures    int
	BreakerOpenTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	MetricsEnabled  bool
	Upstream        UpstreamCfg
	Scenario        string
	RedisAddr       string
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	CacheL1Size     int
	H3Res           int
	HotThreshold    float64
	HotHalfLife     time.Duration
	AdaptiveTTLCold time.Duration
	AdaptiveTTLWarm time.Duration
	AdaptiveTTLHot  time.Duration
	Events          EventsCfg
}

// Load reads an optional .env file (existing variables win) and then the
// environment. A missing file is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	ttlDefault := getduration("CACHE_TTL_DEFAULT", 5*time.Minute)

	res := getint("H3_RES", 6)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	ttlOvr := parseDurationMap(getenv("CACHE_TTL_OVERRIDES", ""))
	if _, ok := ttlOvr["account_stats"]; !ok {
		ttlOvr["account_stats"] = 0 // quota counters change on every call
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     max(getint("LOG_SAMPLE_N", 0), 0),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		Upstream: UpstreamCfg{
			BaseURL:            getenv("METEO_BASE_URL", DefaultBaseURL),
			User:               os.Getenv("METEO_USER"),
			Password:           os.Getenv("METEO_PASSWORD"),
			Timeout:            getduration("METEO_TIMEOUT", 10*time.Second),
			RateLimitRPS:       getfloat("METEO_RATE_LIMIT_RPS", 0),
			RateLimitBurst:     getint("METEO_RATE_LIMIT_BURST", 1),
			BreakerEnabled:     getbool("METEO_BREAKER_ENABLED", false),
			BreakerFailures:    getint("METEO_BREAKER_FAILURES", 5),
			BreakerOpenTimeout: getduration("METEO_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Scenario:        getenv("SCENARIO", "baseline"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: ttlDefault,
		CacheTTLOvr:     ttlOvr,
		CacheL1Size:     getint("CACHE_L1_SIZE", 1024),
		H3Res:           res,
		HotThreshold:    getfloat("HOT_THRESHOLD", 10.0),
		HotHalfLife:     getduration("HOT_HALF_LIFE", time.Minute),
		AdaptiveTTLCold: getduration("ADAPTIVE_TTL_COLD", ttlDefault/2),
		AdaptiveTTLWarm: getduration("ADAPTIVE_TTL_WARM", ttlDefault),
		AdaptiveTTLHot:  getduration("ADAPTIVE_TTL_HOT", 2*ttlDefault),
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "meteo-queries"),
		},
	}
}

// BrokerList splits the comma separated broker list.
func (e EventsCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "grid=5m,stations=24h" (keyed by query shape) into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
