// Package main is the entrypoint for the Scheduler Lambda function.
//
// An EventBridge rule invokes it with a scheduler.Payload. The handler
// recovers abandoned claims and enqueues the recurring ingestion schedule;
// dedupe keys make repeated invocations idempotent.
//
// With APP_ENV=local the binary runs a single tick from the shell instead of
// starting the Lambda runtime.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/scheduler"
)

// Service is satisfied by *scheduler.Scheduler.
type Service interface {
	Tick(ctx context.Context, now time.Time) (scheduler.TickResult, error)
	EnqueueAll(ctx context.Context, now time.Time) (int, error)
	RecoverStale(ctx context.Context) (int64, error)
}

// Handler holds the dependencies for the scheduler Lambda.
type Handler struct {
	Scheduler Service
	Logger    *slog.Logger
}

// Handle routes the payload's task to the scheduler. An empty task is a tick.
func (h *Handler) Handle(ctx context.Context, payload scheduler.Payload) (scheduler.TickResult, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	task := payload.Task
	if task == "" {
		task = scheduler.TaskTick
	}

	logger.InfoContext(ctx, "scheduler handler invoked",
		"task", string(task),
		"reference_time", now.Format(time.RFC3339),
	)

	var (
		res scheduler.TickResult
		err error
	)
	switch task {
	case scheduler.TaskTick:
		res, err = h.Scheduler.Tick(ctx, now)
	case scheduler.TaskEnqueue:
		res.Enqueued, err = h.Scheduler.EnqueueAll(ctx, now)
	case scheduler.TaskRecoverStale:
		res.Recovered, err = h.Scheduler.RecoverStale(ctx)
	default:
		return res, fmt.Errorf("unknown task type: %q", task)
	}

	if err != nil {
		logger.ErrorContext(ctx, "scheduler task failed",
			"task", string(task),
			"enqueued_before_error", res.Enqueued,
			"error", err,
		)
		return res, fmt.Errorf("task %s failed: %w", task, err)
	}
	return res, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.Service, "role", "scheduler")
	logger.Info("Scheduler initializing (cold start)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	h := &Handler{Scheduler: rt.Scheduler(), Logger: logger}

	if cfg.Environment != "local" {
		lambda.Start(h.Handle)
		return
	}

	res, err := h.Handle(ctx, scheduler.Payload{Task: scheduler.TaskTick})
	if err != nil {
		logger.Error("local tick failed", "error", err)
		rt.Close()
		os.Exit(1)
	}
	logger.Info("local tick complete", "enqueued", res.Enqueued, "recovered", res.Recovered)
}
