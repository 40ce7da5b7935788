// Package ingest runs provider workers. A Manager fans a batch of workers out
// onto goroutines sharing one Store, waits for every one of them, and reduces
// their outcomes to a single pass/fail result.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pricewatch/internal/types"
)

// Worker is one unit of ingestion logic. Implementations must tolerate
// running concurrently with other workers on the same Store.
type Worker interface {
	Name() string
	Run(ctx context.Context, store Store) error
}

// Outcome is the result of one worker run.
type Outcome struct {
	Worker   string
	Err      error
	Panicked bool
	Duration time.Duration
}

// Failed reports whether the run returned an error or panicked.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Manager runs batches of workers.
type Manager struct {
	store   Store
	logger  *slog.Logger
	metrics Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics records one datum per outcome.
func WithMetrics(m Metrics) ManagerOption {
	return func(mg *Manager) {
		mg.metrics = m
	}
}

// NewManager creates a Manager over store.
func NewManager(store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, logger: logger, metrics: NoopMetrics{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts every worker concurrently and waits for all of them. A failing
// or panicking worker does not cancel its siblings. Outcomes are returned in
// completion order and the error is FirstError(outcomes).
func (m *Manager) Run(ctx context.Context, workers []Worker) ([]Outcome, error) {
	var (
		mu       sync.Mutex
		outcomes = make([]Outcome, 0, len(workers))
	)

	// A plain Group: no derived context, so one failure never cancels the rest.
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			o := m.runOne(ctx, w)
			m.metrics.RecordWorkerRun(ctx, o)

			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, FirstError(outcomes)
}

func (m *Manager) runOne(ctx context.Context, w Worker) (o Outcome) {
	name := w.Name()
	start := time.Now()
	o.Worker = name

	defer func() {
		o.Duration = time.Since(start)
		if r := recover(); r != nil {
			o.Panicked = true
			o.Err = types.NewAppError(types.ErrCodeInternalWorkerPanic, fmt.Sprintf("worker panicked: %v", r), nil)
			m.logger.ErrorContext(ctx, "worker panicked",
				"worker", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	m.logger.InfoContext(ctx, "worker starting", "worker", name)

	if err := w.Run(ctx, m.store); err != nil {
		o.Err = err
		m.logger.ErrorContext(ctx, "worker failed",
			"worker", name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return o
	}

	m.logger.InfoContext(ctx, "worker finished",
		"worker", name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return o
}

// FirstError returns the first failed outcome's error, wrapped with the
// worker's name, or nil when every outcome succeeded. An empty batch is a
// success. Panics keep their internal_worker_panic code; plain failures are
// reported as internal_worker_failed with the worker's error as the cause.
func FirstError(outcomes []Outcome) error {
	for _, o := range outcomes {
		if !o.Failed() {
			continue
		}
		if o.Panicked {
			return types.NewAppError(types.ErrCodeInternalWorkerPanic, "worker "+o.Worker+" panicked", o.Err)
		}
		return types.NewAppError(types.ErrCodeInternalWorkerFailed, "worker "+o.Worker+" failed", o.Err)
	}
	return nil
}
