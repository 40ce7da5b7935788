// Package jobs is the entry point for requesting ingestion work. It validates
// enqueue requests and hands them to the durable job store, which coalesces
// repeated requests for the same dedupe key into one row.
package jobs

import (
	"context"
	"log/slog"
	"strings"

	"pricewatch/internal/types"
)

// Upserter is the storage operation the queue depends on. db.JobRepository
// implements it.
type Upserter interface {
	Upsert(ctx context.Context, kind, dedupeKey string, payload types.JobPayload) (*types.IngestionJob, error)
}

// Queue accepts enqueue requests from the CLI, the scheduler and the API.
type Queue struct {
	store  Upserter
	logger *slog.Logger
}

// NewQueue creates a Queue over store. A nil logger falls back to
// slog.Default().
func NewQueue(store Upserter, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, logger: logger}
}

// Enqueue inserts a job or refreshes the existing row for dedupeKey. Enqueuing
// an unchanged key again is a silent refresh, not an error: the row goes back
// to queued with the new payload and a fresh scheduled_at.
func (q *Queue) Enqueue(ctx context.Context, kind, dedupeKey string, payload types.JobPayload) (*types.IngestionJob, error) {
	kind = strings.TrimSpace(kind)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if kind == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "job kind is required", nil)
	}
	if dedupeKey == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "dedupe key is required", nil)
	}
	if payload == nil {
		payload = types.JobPayload{}
	}

	job, err := q.store.Upsert(ctx, kind, dedupeKey, payload)
	if err != nil {
		q.logger.ErrorContext(ctx, "enqueue failed",
			"kind", kind,
			"dedupe_key", dedupeKey,
			"error", err,
		)
		return nil, err
	}

	q.logger.InfoContext(ctx, "job enqueued",
		"kind", kind,
		"dedupe_key", dedupeKey,
		"job_id", job.ID,
	)
	return job, nil
}
