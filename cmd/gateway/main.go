package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/meteo-query/internal/core/config"
	"github.com/mohammed-shakir/meteo-query/internal/core/health"
	"github.com/mohammed-shakir/meteo-query/internal/core/observability"
	"github.com/mohammed-shakir/meteo-query/internal/core/router"
	"github.com/mohammed-shakir/meteo-query/internal/core/server"
	"github.com/mohammed-shakir/meteo-query/internal/logger"
	"github.com/mohammed-shakir/meteo-query/internal/metrics"
	"github.com/mohammed-shakir/meteo-query/internal/queryevents"
	"github.com/mohammed-shakir/meteo-query/internal/scenarios"
	_ "github.com/mohammed-shakir/meteo-query/internal/scenarios/baseline"
	_ "github.com/mohammed-shakir/meteo-query/internal/scenarios/cache"
	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding scenario via flag
	scenarioFlag := flag.String("scenario", "", "scenario name (baseline, cache)")
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 1
	}
	if *scenarioFlag != "" {
		cfg.Scenario = strings.TrimSpace(*scenarioFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Scenario:  cfg.Scenario,
		Component: "gateway",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), cfg.MetricsEnabled)
	observability.SetScenario(cfg.Scenario)

	appLog.Info("starting gateway",
		"addr", cfg.Addr,
		"version", Version,
		"upstream", cfg.Upstream.BaseURL,
		"scenario", cfg.Scenario)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := scenarios.New(ctx, cfg.Scenario, cfg, appLog)
	if err != nil {
		appLog.Error("scenario setup failed", "err", err)
		return 1
	}
	defer func() {
		if stack.Close == nil {
			return
		}
		if err := stack.Close(); err != nil {
			appLog.Warn("closing scenario", "err", err)
		}
	}()

	opts := []meteo.Option{meteo.WithLogger(appLog)}
	if cfg.Events.Enabled {
		pub, err := queryevents.NewPublisher(cfg.Events.BrokerList(), cfg.Events.Topic, 0, appLog)
		if err != nil {
			appLog.Error("query events setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("closing query events", "err", err)
			}
		}()
		opts = append(opts, meteo.WithQueryHook(pub.Hook(cfg.Scenario)))
	}
	client := meteo.New(stack.Fetcher, opts...)

	handler := router.New(router.Deps{
		Client:   client,
		Logger:   appLog,
		Scenario: cfg.Scenario,
		Metrics:  p.Handler(),
		Ready:    checks(stack),
	})

	if err := server.Run(ctx, cfg.Addr, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func checks(st scenarios.Stack) map[string]health.Checker {
	out := make(map[string]health.Checker, len(st.Checks))
	for name, c := range st.Checks {
		out[name] = c
	}
	return out
}
