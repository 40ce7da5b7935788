package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"pricewatch/internal/db"
	"pricewatch/internal/types"
)

// --- Fake Store ---

// fakeStore keeps jobs per kind in memory and records every transition.
type fakeStore struct {
	mu        sync.Mutex
	queued    map[string][]*types.IngestionJob
	claims    int
	completed []int64
	failed    map[int64]string
	inserted  []types.PriceRow
	rules     []types.PricedAlertRule

	claimErr    error
	insertErr   error
	completeErr error
	rulesErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queued: make(map[string][]*types.IngestionJob),
		failed: make(map[int64]string),
	}
}

func (s *fakeStore) enqueue(kind string, id int64, payload types.JobPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[kind] = append(s.queued[kind], &types.IngestionJob{
		ID:        id,
		Kind:      kind,
		DedupeKey: fmt.Sprintf("%s:%d", kind, id),
		Payload:   payload,
		Status:    types.JobQueued,
	})
}

func (s *fakeStore) Claim(_ context.Context, kind, workerID string) (*types.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	q := s.queued[kind]
	if len(q) == 0 {
		return nil, nil
	}
	job := q[0]
	s.queued[kind] = q[1:]
	job.Status = types.JobRunning
	job.LockedBy = &workerID
	job.Attempts++
	return job, nil
}

func (s *fakeStore) Complete(_ context.Context, id int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeStore) Fail(_ context.Context, id int64, _ string, jobErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	s.failed[id] = msg
	return nil
}

func (s *fakeStore) InsertPrices(_ context.Context, rows []types.PriceRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, rows...)
	return int64(len(rows)), nil
}

func (s *fakeStore) ListActiveForOffers(_ context.Context, offerIDs []string) ([]types.PricedAlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	want := make(map[string]bool, len(offerIDs))
	for _, id := range offerIDs {
		want[id] = true
	}
	var out []types.PricedAlertRule
	for _, r := range s.rules {
		if r.Active && want[r.OfferJurisdictionID] {
			out = append(out, r)
		}
	}
	return out, nil
}

var _ Store = (*fakeStore)(nil)

// --- Fake Source ---

type fakeSource struct {
	kind  string
	rows  []types.PriceRow
	err   error
	mu    sync.Mutex
	calls []int64
}

func (s *fakeSource) Kind() string { return s.kind }

func (s *fakeSource) Fetch(_ context.Context, job *types.IngestionJob) ([]types.PriceRow, error) {
	s.mu.Lock()
	s.calls = append(s.calls, job.ID)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

// --- Fake Publisher ---

type fakePublisher struct {
	mu        sync.Mutex
	published []types.AlertTrigger
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, triggers []types.AlertTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, triggers...)
	return p.err
}

// --- Fake Worker ---

type funcWorker struct {
	name string
	fn   func(ctx context.Context, store Store) error
}

func (w funcWorker) Name() string                              { return w.name }
func (w funcWorker) Run(ctx context.Context, store Store) error { return w.fn(ctx, store) }

// --- Log capture ---

// syncBuffer makes a bytes.Buffer safe for the concurrent writes of a
// shared slog handler.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newCaptureLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// logEntries parses captured JSON lines.
func logEntries(t *testing.T, buf *syncBuffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

// terminalMessages maps worker name to its terminal log message.
func terminalMessages(t *testing.T, buf *syncBuffer) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, e := range logEntries(t, buf) {
		msg, _ := e["msg"].(string)
		switch msg {
		case "worker finished", "worker failed", "worker panicked":
			name, _ := e["worker"].(string)
			out[name] = msg
		}
	}
	return out
}

var errSuperseded = db.ErrClaimSuperseded
