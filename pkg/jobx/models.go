package jobx

import (
	"context"
	"encoding/json"
	"time"
)

// State is the lifecycle state of a job. A job is in exactly one state at a time.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// AllStates lists every state in dispatch order.
var AllStates = []State{StateWaiting, StateDelayed, StateActive, StateCompleted, StateFailed}

func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible without an explicit retry.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// Priority tiers. Higher values are dispatched first.
const (
	PriorityLow    = 10
	PriorityNormal = 50
	PriorityHigh   = 100
)

// Job is the full record of a unit of work stored in the backend.
//
// ID, Queue, Name, Payload, Priority, MaxAttempts and Backoff never change after
// enqueue. Everything else is mutated only by the store's atomic transitions.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     Backoff         `json:"backoff"`

	// Timeout overrides the engine's per-job execution timeout when non-zero.
	Timeout time.Duration `json:"timeout,omitempty"`

	State        State  `json:"state"`
	AttemptsMade int    `json:"attempts_made"`
	StalledCount int    `json:"stalled_count"`
	Progress     int    `json:"progress"`
	LastError    string `json:"last_error,omitempty"`

	AvailableAt    time.Time `json:"available_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ProcessedAt    time.Time `json:"processed_at,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`

	// LeaseToken identifies the current lease. Only the holder may complete,
	// fail or renew the job.
	LeaseToken string `json:"-"`

	progress progressFunc
}

type progressFunc func(ctx context.Context, pct int) error

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return jobxErrors.NewWithCause(ErrInvalidPayload, err).WithDetail("job_id", j.ID)
	}
	return nil
}

// ReportProgress records advisory progress (0-100) and renews the job's lease.
// It is a no-op for jobs that are not being executed by a worker.
func (j *Job) ReportProgress(ctx context.Context, pct int) error {
	if j.progress == nil {
		return nil
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return j.progress(ctx, pct)
}

// Stats holds per-state job counts of a queue.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    int64 `json:"paused"`
}

// ReclaimResult reports what a reclaim sweep did.
type ReclaimResult struct {
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// FailOutcome is the Retry Coordinator's decision, applied atomically by the store.
type FailOutcome struct {
	Retry        bool
	AttemptsMade int
	AvailableAt  time.Time
	LastError    string
	// Keep is the failed-partition retention count, used when Retry is false.
	Keep int
}
