package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tailored-agentic-units/datashelf/explorer"
	"github.com/tailored-agentic-units/datashelf/observability"
	"github.com/tailored-agentic-units/datashelf/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configFile = flag.String("config", "", "Path to datashelf config file, JSON or YAML (optional)")
		addr       = flag.String("addr", ":8501", "Listen address")
		dataPath   = flag.String("data", "", "Path to the dataset directory (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := explorer.DefaultConfig()
	if *configFile != "" {
		loaded, err := explorer.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *dataPath != "" {
		cfg.Storage.Path = *dataPath
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, &cfg, *addr, logger)
	stop()
	if err != nil {
		logger.Error("datashelf failed", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is done or the server fails. Resources opened here
// are released before it returns.
func run(ctx context.Context, cfg *explorer.Config, addr string, logger *slog.Logger) error {
	metrics := observability.NewMetricsRegistry()

	x, err := explorer.New(ctx, cfg, explorer.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create explorer: %w", err)
	}
	defer x.Close()

	if err := x.Start(ctx); err != nil {
		return fmt.Errorf("failed to start explorer: %w", err)
	}

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return fmt.Errorf("failed to create observer: %w", err)
	}
	srv := server.New(x, x.Gate(),
		server.WithObserver(observer),
		server.WithMetrics(metrics),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("datashelf listening",
			"addr", addr,
			"datasets", len(x.List()),
			"backend", cfg.Storage.Backend,
		)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}
