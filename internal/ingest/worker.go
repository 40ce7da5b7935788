package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"pricewatch/internal/alerts"
	"pricewatch/internal/db"
	"pricewatch/internal/types"
)

// TriggerPublisher delivers alert triggers downstream. queue.TriggerPublisher
// implements it.
type TriggerPublisher interface {
	Publish(ctx context.Context, triggers []types.AlertTrigger) error
}

// ProviderWorker drains the queue for one source's kind. Each claimed job is
// fetched, written, evaluated for alerts and then completed.
type ProviderWorker struct {
	source    Source
	workerID  string
	publisher TriggerPublisher
	maxJobs   int
	logger    *slog.Logger
}

// WorkerOption configures a ProviderWorker.
type WorkerOption func(*ProviderWorker)

// WithPublisher sends alert triggers raised by each job to p.
func WithPublisher(p TriggerPublisher) WorkerOption {
	return func(w *ProviderWorker) { w.publisher = p }
}

// WithMaxJobs bounds the number of jobs processed per Run. Zero means until
// the queue is empty.
func WithMaxJobs(n int) WorkerOption {
	return func(w *ProviderWorker) { w.maxJobs = n }
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *ProviderWorker) { w.logger = l }
}

// NewProviderWorker creates a worker for source. Its claim owner ID is the
// kind plus a random UUID, unique per worker instance.
func NewProviderWorker(source Source, opts ...WorkerOption) *ProviderWorker {
	w := &ProviderWorker{
		source:   source,
		workerID: source.Kind() + "-" + uuid.NewString(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Worker.
func (w *ProviderWorker) Name() string { return w.source.Kind() }

// ID returns the owner ID written to locked_by on claim.
func (w *ProviderWorker) ID() string { return w.workerID }

// Run implements Worker. It claims jobs until none is left, maxJobs is
// reached or ctx is done. A fetch or write failure marks that job failed
// and ends the run with the error.
func (w *ProviderWorker) Run(ctx context.Context, store Store) error {
	kind := w.source.Kind()
	for processed := 0; w.maxJobs == 0 || processed < w.maxJobs; processed++ {
		if ctx.Err() != nil {
			return nil
		}

		job, err := store.Claim(ctx, kind, w.workerID)
		if err != nil {
			return err
		}
		if job == nil {
			w.logger.DebugContext(ctx, "no claimable jobs", "worker", kind, "processed", processed)
			return nil
		}

		if err := w.process(ctx, store, job); err != nil {
			return err
		}
	}
	return nil
}

func (w *ProviderWorker) process(ctx context.Context, store Store, job *types.IngestionJob) error {
	log := w.logger.With("worker", w.source.Kind(), "job_id", job.ID, "dedupe_key", job.DedupeKey)
	log.InfoContext(ctx, "job claimed", "attempt", job.Attempts)

	rows, err := w.source.Fetch(ctx, job)
	if err != nil {
		w.fail(ctx, store, job, log, err)
		return err
	}

	n, err := store.InsertPrices(ctx, rows)
	if err != nil {
		w.fail(ctx, store, job, log, err)
		return err
	}

	w.notify(ctx, store, rows, log)

	if err := store.Complete(context.WithoutCancel(ctx), job.ID, w.workerID); err != nil {
		if errors.Is(err, db.ErrClaimSuperseded) {
			log.WarnContext(ctx, "job re-enqueued while running, leaving it queued")
			return nil
		}
		return err
	}

	log.InfoContext(ctx, "job completed", "rows", n)
	return nil
}

// fail records cause on the job. The bookkeeping write ignores ctx
// cancellation so a shutdown mid-fetch still leaves an accurate status.
func (w *ProviderWorker) fail(ctx context.Context, store Store, job *types.IngestionJob, log *slog.Logger, cause error) {
	log.ErrorContext(ctx, "job failed", "error", cause, "retryable", types.CodeOf(cause).Retryable())
	if err := store.Fail(context.WithoutCancel(ctx), job.ID, w.workerID, cause); err != nil && !errors.Is(err, db.ErrClaimSuperseded) {
		log.ErrorContext(ctx, "failed to record job failure", "error", err)
	}
}

// notify evaluates alerts on the offers just written. Errors here are logged
// and never fail the ingestion.
func (w *ProviderWorker) notify(ctx context.Context, store Store, rows []types.PriceRow, log *slog.Logger) {
	if len(rows) == 0 {
		return
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.OfferJurisdictionID)
	}

	triggers, err := alerts.NewEvaluator(store).Evaluate(ctx, ids)
	if err != nil {
		log.WarnContext(ctx, "alert evaluation failed", "error", err)
		return
	}
	if len(triggers) == 0 {
		return
	}

	log.InfoContext(ctx, "alerts triggered", "count", len(triggers))
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, triggers); err != nil {
		log.WarnContext(ctx, "alert publish failed", "error", err)
	}
}
