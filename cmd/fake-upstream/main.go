// Command fake-upstream serves synthetic weather data in the remote service's
// wire format so the gateway and load generator can run without credentials.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/meteo-query/internal/logger"
)

var Version = "dev"

func main() {
	cfg := LoadConfig()
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Component: "fake-upstream"}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting fake-upstream", "addr", cfg.Addr, "version", Version, "auth", cfg.User != "")

	router := http.NewServeMux()
	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/", newService(cfg, log))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	shutdownSignalCh := make(chan os.Signal, 1)
	signal.Notify(shutdownSignalCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-shutdownSignalCh:
		log.Info("signal received, shutting down", "signal", sig.String())
	case err := <-serverErrCh:
		log.Error("server error", "err", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("server stopped")
}
