package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"pricewatch/internal/types"
)

// Enqueuer is implemented by jobs.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind, dedupeKey string, payload types.JobPayload) (*types.IngestionJob, error)
}

// StaleRecoverer is implemented by db.JobRepository.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// Scheduler enqueues the schedule and returns abandoned claims to the queue.
type Scheduler struct {
	queue     Enqueuer
	recoverer StaleRecoverer
	schedule  Schedule
	staleTTL  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler.
func New(queue Enqueuer, recoverer StaleRecoverer, schedule Schedule, staleTTL time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queue:     queue,
		recoverer: recoverer,
		schedule:  schedule,
		staleTTL:  staleTTL,
		logger:    logger,
	}
}

// Tick recovers stale claims and then enqueues every scheduled job. Running
// it twice at the same instant leaves the queue unchanged apart from
// refreshed timestamps, since every enqueue goes through its dedupe key.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	var res TickResult

	recovered, err := s.RecoverStale(ctx)
	if err != nil {
		return res, err
	}
	res.Recovered = recovered

	enqueued, err := s.EnqueueAll(ctx, now)
	res.Enqueued = enqueued
	if err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "scheduler tick complete",
		"enqueued", res.Enqueued,
		"recovered", res.Recovered,
		"reference_time", now.UTC().Format(time.RFC3339),
	)
	return res, nil
}

// EnqueueAll enqueues the schedule in order and stops at the first storage
// error. It returns how many jobs were enqueued before stopping.
func (s *Scheduler) EnqueueAll(ctx context.Context, now time.Time) (int, error) {
	count := 0
	for _, j := range s.schedule {
		key := j.DedupeKey(now)
		payload := j.Payload
		if j.Daily {
			payload = withDate(payload, now)
		}
		if _, err := s.queue.Enqueue(ctx, j.Kind, key, payload); err != nil {
			return count, fmt.Errorf("enqueuing %s: %w", key, err)
		}
		count++
	}
	return count, nil
}

// RecoverStale resets running jobs untouched for longer than the configured
// TTL. A zero TTL disables recovery.
func (s *Scheduler) RecoverStale(ctx context.Context) (int64, error) {
	if s.staleTTL <= 0 || s.recoverer == nil {
		return 0, nil
	}
	n, err := s.recoverer.RecoverStale(ctx, s.staleTTL)
	if err != nil {
		return 0, fmt.Errorf("recovering stale jobs: %w", err)
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "recovered stale job claims", "count", n, "ttl", s.staleTTL.String())
	}
	return n, nil
}

func withDate(p types.JobPayload, now time.Time) types.JobPayload {
	out := make(types.JobPayload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out["date"] = now.UTC().Format("2006-01-02")
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }
