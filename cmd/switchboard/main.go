package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailored-agentic-units/switchboard/coordinator"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/transport/rpc"
	"github.com/tailored-agentic-units/switchboard/transport/ws"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to switchboard config file (YAML or JSON)")
		listen     = flag.String("listen", "", "Listen address (overrides config)")
		storage    = flag.String("storage", "", "Storage driver: memory, sqlite or pebble (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := coordinator.LoadEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg := coordinator.DefaultConfig()
	if *configFile != "" {
		loaded, err := coordinator.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *storage != "" {
		cfg.Storage.Driver = *storage
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Invalid log config: %v", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Error("switchboard stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *coordinator.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	events, err := observability.NewPrometheusObserver(cfg.Metrics.Namespace, registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics observer: %w", err)
	}
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
	observability.RegisterObserver("prometheus", events)
	if !slices.Contains(cfg.Observers, "prometheus") {
		cfg.Observers = append(cfg.Observers, "prometheus")
	}

	coord, err := coordinator.New(cfg, coordinator.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	defer coord.Close()

	registry.MustRegister(coord.Collectors()...)

	wsCfg := cfg.WebSocket
	wsCfg.Logger = logger
	wsServer := ws.NewServer(wsCfg, coord)

	rpcPath, rpcHandler := rpc.NewHandler(coord, rpc.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle(wsCfg.Path, wsServer)
	mux.Handle(rpcPath, rpcHandler)
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("switchboard listening",
			slog.String("addr", cfg.Listen),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("websocket", wsCfg.Path),
			slog.String("rpc", rpcPath),
			slog.String("metrics", cfg.Metrics.Path),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	wsServer.Close()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg coordinator.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
