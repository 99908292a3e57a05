package main

import (
	"flag"
	"os"
	"strconv"
)

type Config struct {
	Addr     string
	LogLevel string
	User     string
	Password string
	// MaxGridCells caps one grid response; larger requests get a 400 like the
	// real service returns for oversized areas.
	MaxGridCells int
}

// Configurations for fake-upstream
func LoadConfig() Config {
	var cfg Config
	cfg.Addr = getEnv("FAKE_UPSTREAM_ADDR", ":8091")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.User = getEnv("METEO_USER", "")
	cfg.Password = getEnv("METEO_PASSWORD", "")
	cfg.MaxGridCells = 40000
	if v, err := strconv.Atoi(os.Getenv("FAKE_UPSTREAM_MAX_GRID")); err == nil && v > 0 {
		cfg.MaxGridCells = v
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	flag.StringVar(&cfg.User, "user", cfg.User, "required basic auth user (empty disables auth)")
	flag.StringVar(&cfg.Password, "password", cfg.Password, "required basic auth password")
	flag.Parse()
	return cfg
}

func getEnv(k, def string) string {
	value := os.Getenv(k)
	if value != "" {
		return value
	}
	return def
}
