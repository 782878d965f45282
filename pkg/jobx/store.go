package jobx

import (
	"context"
	"time"
)

// Store is the durable queue store shared by every worker process.
//
// Every transition is atomic in the backend, so two callers can never lease
// the same job and a stale lease holder cannot overwrite a newer state.
type Store interface {
	// Push inserts a new job as waiting, or delayed when AvailableAt is in the
	// future. The job's State is set accordingly. An existing ID is rejected
	// with ErrDuplicateJob.
	Push(ctx context.Context, job *Job) error

	// LeasePop atomically promotes due delayed jobs, then moves the
	// highest-priority, oldest waiting job to active with a fresh lease token.
	// It returns (nil, nil) when nothing is eligible or the queue is paused.
	LeasePop(ctx context.Context, queue string, leaseTimeout time.Duration) (*Job, error)

	// RenewLease extends the lease held by job.LeaseToken and records progress
	// when progress >= 0.
	RenewLease(ctx context.Context, job *Job, leaseTimeout time.Duration, progress int) error

	// Complete moves an active job to completed and trims the completed
	// partition to keep records (keep < 0 keeps all).
	Complete(ctx context.Context, job *Job, keep int) error

	// Fail applies the Retry Coordinator's outcome: back to delayed with a new
	// AvailableAt, or to failed.
	Fail(ctx context.Context, job *Job, outcome FailOutcome) error

	// ReclaimExpiredLeases moves active jobs whose lease expired back to
	// waiting without consuming an attempt. Jobs reclaimed more than
	// maxStalled times (when > 0) are failed instead, after which the failed
	// partition is trimmed to keepFailed records (keepFailed < 0 keeps all).
	ReclaimExpiredLeases(ctx context.Context, queue string, maxStalled, keepFailed int) (ReclaimResult, error)

	Get(ctx context.Context, queue, id string) (*Job, error)
	Remove(ctx context.Context, queue, id string) error

	// Requeue moves a failed job back to waiting with its attempts reset.
	Requeue(ctx context.Context, queue, id string) error

	// List returns jobs in the given states; the inclusive range applies to
	// each state. Terminal states are listed newest first.
	List(ctx context.Context, queue string, states []State, start, end int) ([]*Job, error)

	Stats(ctx context.Context, queue string) (Stats, error)

	// Sweep deletes up to limit jobs in a terminal state that finished before olderThan.
	Sweep(ctx context.Context, queue string, state State, olderThan time.Time, limit int) (int, error)

	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error

	// Empty removes every waiting and delayed job of the queue.
	Empty(ctx context.Context, queue string) (int, error)
}
