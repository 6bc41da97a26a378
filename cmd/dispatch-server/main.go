package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/dispatch-server/config"
	"github.com/angeloszaimis/dispatch-server/internal/circuitbreaker"
	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
	"github.com/angeloszaimis/dispatch-server/internal/handler"
	"github.com/angeloszaimis/dispatch-server/internal/healthcheck"
	"github.com/angeloszaimis/dispatch-server/internal/httpserver"
	"github.com/angeloszaimis/dispatch-server/internal/metrics"
	"github.com/angeloszaimis/dispatch-server/internal/routes"
	"github.com/angeloszaimis/dispatch-server/pkg/logger"
)

func main() {
	configDir := pflag.StringP("config-dir", "c", ".", "directory holding "+config.FileName)
	pflag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log, http.DefaultClient)
	if err != nil {
		log.Error("Failed to build routes", slog.Any("err", err))
		os.Exit(1)
	}

	srv, err := httpserver.New(cfg.Server.Addr(), a.mux, httpserver.Options{
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Dispatch server listening",
		slog.String("addr", srv.Addr()),
		slog.Any("routes", a.engine.Names()),
		slog.Int64("max_in_flight", cfg.Server.MaxInFlight()))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting dispatch server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

type app struct {
	engine    *dispatch.Engine
	mux       *http.ServeMux
	collector *metrics.Collector
	breakers  *circuitbreaker.Registry
}

// newApp wires routes, metrics, breakers and health checks from cfg. Background
// goroutines stop when ctx is done.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, client *http.Client) (*app, error) {
	a := &app{}

	if cfg.CircuitBreaker.Enabled {
		a.breakers = circuitbreaker.NewRegistry(cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.ResetTimeout)
	}

	candidates, proxies, err := buildCandidates(cfg.Routes, a.breakers, client)
	if err != nil {
		return nil, err
	}

	var (
		opts     []dispatch.Option
		refusals handler.RefusalRecorder
		reporter healthcheck.Reporter
	)
	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector(cfg.Metrics.BufferSize, log)
		a.collector.Start(ctx)
		opts = append(opts, dispatch.WithObserver(a.collector))
		refusals = a.collector
		reporter = a.collector
	}

	a.engine = dispatch.New(log, candidates, routes.NewErrorPage(cfg.Fallback.Format), opts...)

	for _, p := range proxies {
		go healthcheck.Run(ctx, p.Upstreams(), cfg.HealthCheck.Interval, log.With(slog.String("route", p.Name())), reporter)
	}

	dh := handler.NewDispatchHandler(log, a.engine, cfg.Server.MaxInFlight(), refusals)
	a.mux = setupRouter(dh, a.collector, a.breakers, cfg.Metrics.Path)

	return a, nil
}
