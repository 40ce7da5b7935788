package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pricewatch/internal/types"
)

// ErrClaimSuperseded is returned by Complete and Fail when the job is no
// longer held by the caller, typically because it was re-enqueued while the
// worker was still processing it.
var ErrClaimSuperseded = errors.New("job claim superseded")

// jobColumns is the column list returned by every job query, in scanJob order.
const jobColumns = `id, kind, dedupe_key, payload, status, attempts, last_error, locked_by, scheduled_at, updated_at`

// JobRepository owns the ingestion_jobs table. The unique constraint on
// dedupe_key is what keeps at most one live row per logical job; ordering
// between concurrent writers is resolved by Postgres (last writer wins).
//
// Every timestamp and cutoff is taken from the database clock so processes
// on different hosts agree on when a job became claimable or stale.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Upsert inserts a job or, when dedupe_key already exists, overwrites its
// payload, resets it to queued and bumps both timestamps. Attempt counters
// and claim ownership are cleared too, so a re-enqueued job starts fresh.
//
// SQL pattern:
//
//	INSERT INTO ingestion_jobs (...) VALUES (...)
//	ON CONFLICT (dedupe_key) DO UPDATE SET payload = EXCLUDED.payload, status = 'queued', ...
//	RETURNING ...
func (r *JobRepository) Upsert(ctx context.Context, kind, dedupeKey string, payload types.JobPayload) (*types.IngestionJob, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO ingestion_jobs (kind, dedupe_key, payload, status, scheduled_at, updated_at)
		 VALUES ($1, $2, $3, 'queued', now(), now())
		 ON CONFLICT (dedupe_key) DO UPDATE
		   SET kind = EXCLUDED.kind,
		       payload = EXCLUDED.payload,
		       status = 'queued',
		       attempts = 0,
		       last_error = NULL,
		       locked_by = NULL,
		       scheduled_at = EXCLUDED.scheduled_at,
		       updated_at = EXCLUDED.updated_at
		 RETURNING `+jobColumns,
		kind,
		dedupeKey,
		payload,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to enqueue job", err)
	}
	return job, nil
}

// Claim atomically moves the oldest due queued job of the given kind to
// running and records workerID as its owner. It returns nil, nil when nothing
// is claimable.
//
// The inner SELECT uses FOR UPDATE SKIP LOCKED so concurrent claimers in
// different processes each get a distinct row without blocking on one
// another.
func (r *JobRepository) Claim(ctx context.Context, kind, workerID string) (*types.IngestionJob, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE ingestion_jobs
		    SET status = 'running',
		        locked_by = $2,
		        attempts = attempts + 1,
		        updated_at = now()
		  WHERE id = (
		        SELECT id FROM ingestion_jobs
		         WHERE kind = $1 AND status = 'queued' AND scheduled_at <= now()
		         ORDER BY scheduled_at, id
		         LIMIT 1
		         FOR UPDATE SKIP LOCKED)
		 RETURNING `+jobColumns,
		kind,
		workerID,
	)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim job", err)
	}
	return job, nil
}

// Complete marks a running job owned by workerID as completed.
func (r *JobRepository) Complete(ctx context.Context, id int64, workerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs
		    SET status = 'completed', locked_by = NULL, last_error = NULL, updated_at = now()
		  WHERE id = $1 AND status = 'running' AND locked_by = $2`,
		id,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimSuperseded
	}
	return nil
}

// Fail marks a running job owned by workerID as failed and stores the error
// message.
func (r *JobRepository) Fail(ctx context.Context, id int64, workerID string, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs
		    SET status = 'failed', locked_by = NULL, last_error = $3, updated_at = now()
		  WHERE id = $1 AND status = 'running' AND locked_by = $2`,
		id,
		workerID,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimSuperseded
	}
	return nil
}

// RecoverStale returns running jobs whose claim has not been touched for
// longer than ttl to the queue. A worker process that crashed mid-job leaves
// exactly this state behind.
func (r *JobRepository) RecoverStale(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs
		    SET status = 'queued', locked_by = NULL, updated_at = now()
		  WHERE status = 'running' AND updated_at < now() - make_interval(secs => $1)`,
		ttl.Seconds(),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to recover stale jobs", err)
	}
	return tag.RowsAffected(), nil
}

// Get returns the job with the given dedupe key.
func (r *JobRepository) Get(ctx context.Context, dedupeKey string) (*types.IngestionJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE dedupe_key = $1`,
		dedupeKey,
	)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get job", err)
	}
	return job, nil
}

// CountByStatus returns the number of jobs of kind in each status. Statuses
// with no rows are absent from the map.
func (r *JobRepository) CountByStatus(ctx context.Context, kind string) (map[types.JobStatus]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM ingestion_jobs WHERE kind = $1 GROUP BY status`,
		kind,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count jobs", err)
	}
	defer rows.Close()

	counts := make(map[types.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job count row", err)
		}
		counts[types.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job count rows", err)
	}
	return counts, nil
}

func scanJob(row pgx.Row) (*types.IngestionJob, error) {
	var job types.IngestionJob
	var status string
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.DedupeKey,
		&job.Payload,
		&status,
		&job.Attempts,
		&job.LastError,
		&job.LockedBy,
		&job.ScheduledAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = types.JobStatus(status)
	if !job.Status.Valid() {
		return nil, fmt.Errorf("unknown job status %q", status)
	}
	return &job, nil
}
