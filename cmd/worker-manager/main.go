// Package main is the entrypoint for the worker manager.
//
// The worker manager builds one provider worker per configured kind
// (PROVIDERS) and runs them concurrently against the shared job queue. By
// default it runs a single cycle and exits, which suits cron or an ECS
// scheduled task; with -loop it repeats every POLL_INTERVAL until SIGTERM.
//
// The exit status is non-zero when any worker in the final cycle failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/ingest"
)

// cycleRunner is satisfied by *ingest.Manager.
type cycleRunner interface {
	Run(ctx context.Context, workers []ingest.Worker) ([]ingest.Outcome, error)
}

func main() {
	os.Exit(run())
}

func run() int {
	loop := flag.Bool("loop", false, "repeat every POLL_INTERVAL until signalled")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel).With(
		"service", cfg.Service,
		"role", "worker-manager",
		"version", cfg.Build.Version,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", "error", err)
		return 1
	}
	defer rt.Close()

	workers, err := rt.Workers(cfg.Ingest.Providers)
	if err != nil {
		logger.Error("failed to build workers", "error", err)
		return 1
	}

	mgr := rt.Manager()
	logger.Info("worker manager initialized",
		"providers", cfg.Ingest.Providers,
		"loop", *loop,
		"poll_interval", cfg.Ingest.PollInterval.String(),
	)

	if !*loop {
		if err := runCycle(ctx, mgr, workers, logger); err != nil {
			return 1
		}
		return 0
	}

	err = app.Every(ctx, cfg.Ingest.PollInterval, func(ctx context.Context) error {
		// A failed cycle is logged; the next tick retries.
		_ = runCycle(ctx, mgr, workers, logger)
		return nil
	})
	if err != nil {
		logger.Error("worker manager stopped", "error", err)
		return 1
	}
	logger.Info("worker manager stopped")
	return 0
}

// runCycle runs every worker once and logs a summary line.
func runCycle(ctx context.Context, mgr cycleRunner, workers []ingest.Worker, logger *slog.Logger) error {
	start := time.Now()
	outcomes, err := mgr.Run(ctx, workers)

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}

	if err != nil {
		logger.ErrorContext(ctx, "cycle failed",
			"workers", len(outcomes),
			"failed", failed,
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}

	logger.InfoContext(ctx, "cycle complete",
		"workers", len(outcomes),
		"duration", time.Since(start),
	)
	return nil
}
