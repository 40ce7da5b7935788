// Package main is the entrypoint for a single-queue ingest worker.
//
// The process orchestrator launches it with WORKER_ROLE=ingest-worker,
// QUEUE_NAME set to the job kind to drain, BIND_ADDR for the health port,
// FEED_BASE_URL, and the database credentials. Nothing else from the parent
// environment is passed through.
//
// The worker drains its queue every POLL_INTERVAL and serves GET /health on
// BIND_ADDR until SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/core"
	"pricewatch/internal/ingest"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	if cfg.Ingest.QueueName == "" {
		fmt.Fprintln(os.Stderr, "config error: QUEUE_NAME is required")
		return 1
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel).With(
		"service", cfg.Service,
		"role", "ingest-worker",
		"queue", cfg.Ingest.QueueName,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", "error", err)
		return 1
	}
	defer rt.Close()

	workers, err := rt.Workers([]string{cfg.Ingest.QueueName})
	if err != nil {
		logger.Error("failed to build worker", "error", err)
		return 1
	}

	srv, err := core.NewServer(logger, core.NewProbe("database", rt.Store.Ping))
	if err != nil {
		logger.Error("failed to build health server", "error", err)
		return 1
	}

	logger.Info("ingest worker initialized",
		"bind_addr", cfg.Ingest.BindAddr,
		"poll_interval", cfg.Ingest.PollInterval.String(),
	)

	if err := serve(ctx, srv, rt.Manager(), workers, cfg.Ingest, logger); err != nil {
		logger.Error("ingest worker stopped", "error", err)
		return 1
	}
	logger.Info("ingest worker stopped")
	return 0
}

// serve runs the health server and the drain loop until ctx is cancelled or
// the health listener fails.
func serve(ctx context.Context, srv *core.Server, mgr *ingest.Manager, workers []ingest.Worker, cfg config.IngestConfig, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(ctx, cfg.BindAddr)
	})

	g.Go(func() error {
		return app.Every(ctx, cfg.PollInterval, func(ctx context.Context) error {
			if _, err := mgr.Run(ctx, workers); err != nil {
				logger.WarnContext(ctx, "drain failed", "error", err)
			}
			return nil
		})
	})

	return g.Wait()
}
