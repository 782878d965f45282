package jobx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/google/uuid"
)

// Queue is the handle for one named queue. Obtain it from Manager.Queue.
type Queue struct {
	config QueueConfig
	store  Store
	now    func() time.Time
	health Thresholds
}

func newQueue(cfg QueueConfig, store Store, opts ManagerOptions) *Queue {
	return &Queue{
		config: cfg,
		store:  store,
		now:    opts.Now,
		health: opts.Thresholds,
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.config.Name }

// Config returns a copy of the queue configuration.
func (q *Queue) Config() QueueConfig { return q.config }

// Enqueue adds a job and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, jobName string, payload any, opts ...EnqueueOption) (string, error) {
	job, err := q.buildJob(jobName, payload, applyEnqueueOptions(opts))
	if err != nil {
		return "", err
	}

	if err := q.store.Push(ctx, job); err != nil {
		return "", err
	}

	logx.WithFields(logx.Fields{
		"queue":    q.config.Name,
		"job_id":   job.ID,
		"job_name": job.Name,
		"state":    job.State,
	}).Debug("jobx: job enqueued")

	return job.ID, nil
}

// EnqueueAt adds a job that becomes eligible at the given time, which must be in the future.
func (q *Queue) EnqueueAt(ctx context.Context, jobName string, payload any, at time.Time, opts ...EnqueueOption) (string, error) {
	if !at.After(q.now()) {
		return "", jobxErrors.New(ErrInvalidSchedule).
			WithDetail("reason", "scheduled time must be in the future").
			WithDetail("at", at)
	}
	return q.Enqueue(ctx, jobName, payload, append(opts, WithRunAt(at))...)
}

func (q *Queue) buildJob(jobName string, payload any, opts EnqueueOptions) (*Job, error) {
	if jobName == "" {
		return nil, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "job name is required")
	}
	if opts.MaxAttempts < 0 {
		return nil, jobxErrors.New(ErrInvalidJob).WithDetail("max_attempts", opts.MaxAttempts)
	}
	if opts.Delay < 0 || opts.Timeout < 0 {
		return nil, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "delay and timeout cannot be negative")
	}

	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	backoff := q.config.DefaultBackoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}
	if err := backoff.Validate(); err != nil {
		return nil, err
	}

	maxAttempts := q.config.DefaultMaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	now := q.now().UTC()
	availableAt := now.Add(opts.Delay)
	if !opts.RunAt.IsZero() {
		availableAt = opts.RunAt.UTC()
	}

	id := opts.JobID
	if id == "" {
		id = uuid.New().String()
	}

	return &Job{
		ID:          id,
		Queue:       q.config.Name,
		Name:        jobName,
		Payload:     data,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Timeout:     opts.Timeout,
		State:       StateWaiting,
		AvailableAt: availableAt,
		CreatedAt:   now,
	}, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	var data []byte
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, jobxErrors.NewWithCause(ErrInvalidPayload, err)
		}
		return b, nil
	}

	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, jobxErrors.New(ErrInvalidPayload).WithDetail("reason", "payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// Get returns a job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, q.config.Name, id)
}

// Remove deletes a job regardless of its state.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.Remove(ctx, q.config.Name, id); err != nil {
		return err
	}
	logx.WithFields(logx.Fields{"queue": q.config.Name, "job_id": id}).Info("jobx: job removed")
	return nil
}

// Retry moves a failed job back to waiting. Any other state is rejected.
func (q *Queue) Retry(ctx context.Context, id string) error {
	if err := q.store.Requeue(ctx, q.config.Name, id); err != nil {
		return err
	}
	logx.WithFields(logx.Fields{"queue": q.config.Name, "job_id": id}).Info("jobx: job retried")
	return nil
}

// Pause stops every dispatcher from leasing new jobs of this queue.
// Jobs already running are not affected.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.store.Pause(ctx, q.config.Name); err != nil {
		return err
	}
	logx.WithField("queue", q.config.Name).Info("jobx: queue paused")
	return nil
}

// Resume re-enables leasing.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.store.Resume(ctx, q.config.Name); err != nil {
		return err
	}
	logx.WithField("queue", q.config.Name).Info("jobx: queue resumed")
	return nil
}

// List returns jobs in the given states. An empty states slice means all states.
func (q *Queue) List(ctx context.Context, states []State, start, end int) ([]*Job, error) {
	if len(states) == 0 {
		states = AllStates
	}
	for _, s := range states {
		if !s.Valid() {
			return nil, jobxErrors.New(ErrInvalidJob).WithDetail("state", string(s))
		}
	}
	if start < 0 || (end >= 0 && end < start) {
		return nil, jobxErrors.New(ErrInvalidJob).
			WithDetail("start", start).
			WithDetail("end", end)
	}
	return q.store.List(ctx, q.config.Name, states, start, end)
}

// Cleanup removes up to limit terminal jobs in state that finished more than olderThan ago.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration, limit int, state State) (int, error) {
	if !state.IsTerminal() {
		return 0, jobxErrors.New(ErrInvalidState).
			WithDetail("state", string(state)).
			WithDetail("reason", "only completed or failed jobs can be cleaned up")
	}
	if limit <= 0 || olderThan < 0 {
		return 0, jobxErrors.New(ErrInvalidJob).
			WithDetail("limit", limit).
			WithDetail("older_than", olderThan.String())
	}

	removed, err := q.store.Sweep(ctx, q.config.Name, state, q.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logx.WithFields(logx.Fields{
			"queue":   q.config.Name,
			"state":   state,
			"removed": removed,
		}).Info("jobx: cleaned up jobs")
	}
	return removed, nil
}

// Empty removes all waiting and delayed jobs.
func (q *Queue) Empty(ctx context.Context) (int, error) {
	removed, err := q.store.Empty(ctx, q.config.Name)
	if err != nil {
		return 0, err
	}
	logx.WithFields(logx.Fields{"queue": q.config.Name, "removed": removed}).Info("jobx: queue emptied")
	return removed, nil
}

// Stats returns the per-state counts.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx, q.config.Name)
}

// Health classifies the queue against the configured thresholds.
func (q *Queue) Health(ctx context.Context) QueueHealth {
	stats, err := q.store.Stats(ctx, q.config.Name)
	return classify(q.config.Name, stats, err, q.health, q.now())
}
