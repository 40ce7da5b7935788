// Package scheduler turns the recurring ingestion schedule into queue
// entries. It is driven by an EventBridge rule through cmd/scheduler, or from
// the shell in local development.
//
// The Payload is the JSON structure sent by the EventBridge rule. Task selects
// what the invocation does; an empty Task runs a full tick.
package scheduler

import "time"

// TaskType identifies what a scheduler invocation should do.
type TaskType string

const (
	TaskTick         TaskType = "tick"
	TaskEnqueue      TaskType = "enqueue_ingestion"
	TaskRecoverStale TaskType = "recover_stale"
)

// Payload is the EventBridge event body:
//
//	{
//	  "task": "tick",
//	  "reference_time": "2024-05-01T03:00:00Z"  // optional
//	}
type Payload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual invocation. Daily dedupe keys
	// are derived from it, so replaying a past day re-enqueues that day's jobs.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// TickResult summarizes one tick.
type TickResult struct {
	Enqueued  int   `json:"enqueued"`
	Recovered int64 `json:"recovered"`
}
