package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an IngestionJob, persisted as text.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is expected without a
// re-enqueue.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is one of the four persisted values.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Well-known job kinds. Kind doubles as the queue name a worker consumes.
const (
	KindPSStoreRegion  = "psstore.region"
	KindSteamCatalog   = "steam.catalog"
	KindXboxCatalog    = "xbox.catalog"
	KindNexardaPrices  = "nexarda.prices"
	KindGiantBombGames = "giantbomb.games"
	KindExchangeRates  = "fx.rates"
)

// IngestionJob is one requested unit of ingestion work. DedupeKey is unique
// across the table; enqueueing an existing key overwrites the row.
type IngestionJob struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	DedupeKey   string     `json:"dedupe_key"`
	Payload     JobPayload `json:"payload"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	LockedBy    *string    `json:"locked_by,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobPayload is the parameter document of a job, stored as JSONB.
type JobPayload map[string]any

var (
	_ sql.Scanner   = (*JobPayload)(nil)
	_ driver.Valuer = JobPayload(nil)
)

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (p *JobPayload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("job payload: unsupported scan type %T", value)
	}
	*p = nil
	return json.Unmarshal(data, p)
}

// Value implements the driver.Valuer interface. A nil payload is stored as an
// empty object so the column can stay NOT NULL.
func (p JobPayload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// String returns the payload value for key if it is a string.
func (p JobPayload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the payload value for key as an int. JSON numbers decode as
// float64, so both representations are accepted.
func (p JobPayload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
