package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hirsh012/probed/config"
	"github.com/hirsh012/probed/internal/admin"
	"github.com/hirsh012/probed/internal/backend"
	"github.com/hirsh012/probed/internal/httpserver"
	"github.com/hirsh012/probed/internal/metrics"
	"github.com/hirsh012/probed/internal/probe"
	"github.com/hirsh012/probed/internal/workpool"
	"github.com/hirsh012/probed/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := workpool.NewAnts(cfg.Pool.Workers)
	if err != nil {
		log.Error("Failed to create worker pool", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	prober := probe.New(log, pool, collector)
	prober.Start()

	backends, err := registerBackends(prober, cfg, log)
	if err != nil {
		log.Error("Failed to register backends", slog.Any("err", err))
		os.Exit(1)
	}

	adminHandler := admin.NewHandler(log, prober, backends)
	mux := http.NewServeMux()
	adminHandler.Register(mux)
	mux.HandleFunc("GET /metrics", collector.Handler())

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create admin server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("probed started",
		slog.String("admin", cfg.Server.Address),
		slog.Int("backends", len(backends)),
		slog.Int("workers", cfg.Pool.Workers))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		prober.Shutdown()
		pool.Release()
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting admin server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func registerBackends(prober *probe.Prober, cfg *config.Config, log *slog.Logger) (map[string]*backend.Backend, error) {
	backends := make(map[string]*backend.Backend, len(cfg.Backends))

	for _, bc := range cfg.Backends {
		spec, err := probeSpec(cfg.Probe, bc.Probe)
		if err != nil {
			return nil, err
		}

		be := backend.New(bc.Name, bc.Address)
		if err := prober.Insert(be, spec, bc.HostHeader); err != nil {
			log.Error("Failed to register backend",
				slog.String("backend", bc.Name),
				slog.String("address", bc.Address),
				slog.Any("err", err))
			return nil, err
		}
		backends[bc.Name] = be
	}

	return backends, nil
}

// probeSpec folds the global probe defaults and a backend's override into
// one spec. Fields the config leaves empty keep the prober's defaults.
func probeSpec(base config.ProbeConfig, override *config.ProbeConfig) (probe.Spec, error) {
	merged := base
	if override != nil {
		merged = mergeProbe(base, *override)
	}

	spec := probe.Spec{
		Window:         merged.Window,
		Threshold:      merged.Threshold,
		Initial:        -1,
		ExpectedStatus: merged.ExpectedStatus,
		Request:        merged.Request,
		URL:            merged.URL,
	}
	if merged.Initial != nil {
		spec.Initial = *merged.Initial
	}

	var err error
	if merged.Timeout != "" {
		if spec.Timeout, err = time.ParseDuration(merged.Timeout); err != nil {
			return probe.Spec{}, err
		}
	}
	if merged.Interval != "" {
		if spec.Interval, err = time.ParseDuration(merged.Interval); err != nil {
			return probe.Spec{}, err
		}
	}
	return spec, nil
}

func mergeProbe(base, override config.ProbeConfig) config.ProbeConfig {
	if override.Timeout != "" {
		base.Timeout = override.Timeout
	}
	if override.Interval != "" {
		base.Interval = override.Interval
	}
	if override.Window != 0 {
		base.Window = override.Window
	}
	if override.Threshold != 0 {
		base.Threshold = override.Threshold
	}
	if override.Initial != nil {
		base.Initial = override.Initial
	}
	if override.ExpectedStatus != 0 {
		base.ExpectedStatus = override.ExpectedStatus
	}
	if override.URL != "" {
		base.URL = override.URL
	}
	if override.Request != "" {
		base.Request = override.Request
	}
	return base
}
