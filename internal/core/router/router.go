// Package router maps the gateway's HTTP API onto the query facade.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/meteo-query/internal/core/health"
	"github.com/mohammed-shakir/meteo-query/internal/core/middleware"
	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

type Deps struct {
	Client   *meteo.Client
	Logger   *slog.Logger
	Scenario string
	// Metrics serves /metrics; nil uses the default Prometheus registry.
	Metrics http.Handler
	Ready   map[string]health.Checker
}

func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger, d.Scenario))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	r.Method(http.MethodGet, "/metrics", d.Metrics)

	h := NewHandlers(d.Client, d.Logger)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/timeseries", h.TimeSeries)
		r.Get("/timeseries/postal", h.TimeSeriesPostal)
		r.Get("/grid", h.Grid)
		r.Get("/grid/pivoted", h.GridPivoted)
		r.Get("/route", h.Route)
		r.Get("/stations", h.Stations)
		r.Get("/lightning", h.Lightning)
		r.Get("/account", h.Account)
		r.Get("/png", h.PNG)
	})
	return r
}
