package jobx

import "time"

// QueueConfig is the read-only configuration of one named queue.
type QueueConfig struct {
	Name string

	// Concurrency is the number of execution slots in this process.
	Concurrency int

	// DefaultMaxAttempts and DefaultBackoff are captured on each job at enqueue
	// time unless overridden by enqueue options.
	DefaultMaxAttempts int
	DefaultBackoff     Backoff

	// KeepCompleted and KeepFailed bound how many terminal jobs are retained.
	// Zero removes the job on the terminal transition; negative keeps all.
	KeepCompleted int
	KeepFailed    int

	// CompletedRetention and FailedRetention are the age windows used by the
	// cleanup sweeper. Zero disables age-based cleanup for that state.
	CompletedRetention time.Duration
	FailedRetention    time.Duration

	// MaxStalledCount is how many times a job may be reclaimed before it is
	// failed permanently. Zero means unlimited.
	MaxStalledCount int
}

// Validate checks the configuration.
func (c QueueConfig) Validate() error {
	if c.Name == "" {
		return jobxErrors.New(ErrInvalidQueue).WithDetail("reason", "queue name is required")
	}
	if c.Concurrency < 1 {
		return jobxErrors.New(ErrInvalidQueue).
			WithDetail("queue", c.Name).
			WithDetail("reason", "concurrency must be at least 1")
	}
	if c.DefaultMaxAttempts < 1 {
		return jobxErrors.New(ErrInvalidQueue).
			WithDetail("queue", c.Name).
			WithDetail("reason", "max attempts must be at least 1")
	}
	if c.MaxStalledCount < 0 {
		return jobxErrors.New(ErrInvalidQueue).
			WithDetail("queue", c.Name).
			WithDetail("reason", "max stalled count cannot be negative")
	}
	return c.DefaultBackoff.Validate()
}

// DefaultQueueConfig returns a single-slot queue with three exponential attempts.
func DefaultQueueConfig(name string) QueueConfig {
	return QueueConfig{
		Name:               name,
		Concurrency:        1,
		DefaultMaxAttempts: 3,
		DefaultBackoff:     ExponentialBackoff(2 * time.Second),
		KeepCompleted:      100,
		KeepFailed:         50,
		CompletedRetention: 7 * 24 * time.Hour,
		FailedRetention:    14 * 24 * time.Hour,
		MaxStalledCount:    1,
	}
}

// Thresholds classify queue backlogs for health reporting.
type Thresholds struct {
	WaitingWarning  int64
	WaitingCritical int64
	FailedCritical  int64
}

// DefaultThresholds mirrors the monitoring defaults: 100 / 500 waiting, 50 failed.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WaitingWarning:  100,
		WaitingCritical: 500,
		FailedCritical:  50,
	}
}
