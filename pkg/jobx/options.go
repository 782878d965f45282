package jobx

import "time"

// ManagerOptions configures the engine's background tasks.
type ManagerOptions struct {
	PollInterval       time.Duration
	StoreRetryInterval time.Duration
	LeaseTimeout       time.Duration
	JobTimeout         time.Duration
	StalledInterval    time.Duration
	StatsInterval      time.Duration
	ShutdownTimeout    time.Duration

	// CleanupSchedule is a standard cron expression. Empty disables the sweeper.
	CleanupSchedule string
	CleanupLimit    int

	Thresholds Thresholds
	Reporter   HealthReporter
	Now        func() time.Time
}

func defaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		PollInterval:       time.Second,
		StoreRetryInterval: 5 * time.Second,
		LeaseTimeout:       30 * time.Second,
		JobTimeout:         0,
		StalledInterval:    30 * time.Second,
		StatsInterval:      time.Minute,
		ShutdownTimeout:    30 * time.Second,
		CleanupSchedule:    "0 2 * * *",
		CleanupLimit:       1000,
		Thresholds:         DefaultThresholds(),
		Reporter:           LogReporter{},
		Now:                time.Now,
	}
}

// ManagerOption is a functional option for configuring the manager.
type ManagerOption func(*ManagerOptions)

// WithPollInterval sets how long an idle dispatcher waits before polling again.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithStoreRetryInterval sets the pause after a transient store error.
func WithStoreRetryInterval(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		if d > 0 {
			o.StoreRetryInterval = d
		}
	}
}

// WithLeaseTimeout sets how long a lease lasts before the reaper may reclaim the job.
func WithLeaseTimeout(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		if d > 0 {
			o.LeaseTimeout = d
		}
	}
}

// WithJobTimeout sets the default per-job execution timeout. Zero disables it.
func WithJobTimeout(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		o.JobTimeout = d
	}
}

// WithStalledInterval sets how often the reaper looks for expired leases.
func WithStalledInterval(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		if d > 0 {
			o.StalledInterval = d
		}
	}
}

// WithStatsInterval sets how often health is pushed to the reporter.
func WithStatsInterval(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		if d > 0 {
			o.StatsInterval = d
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight jobs on shutdown.
func WithShutdownTimeout(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) {
		o.ShutdownTimeout = d
	}
}

// WithCleanup sets the retention sweep schedule and per-run limit.
func WithCleanup(schedule string, limit int) ManagerOption {
	return func(o *ManagerOptions) {
		o.CleanupSchedule = schedule
		if limit > 0 {
			o.CleanupLimit = limit
		}
	}
}

// WithThresholds sets the backlog thresholds used for health classification.
func WithThresholds(t Thresholds) ManagerOption {
	return func(o *ManagerOptions) {
		o.Thresholds = t
	}
}

// WithReporter sets the collaborator that receives periodic health snapshots.
func WithReporter(r HealthReporter) ManagerOption {
	return func(o *ManagerOptions) {
		if r != nil {
			o.Reporter = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(o *ManagerOptions) {
		if now != nil {
			o.Now = now
		}
	}
}

// EnqueueOptions configures a single job.
type EnqueueOptions struct {
	JobID       string
	Priority    int
	Delay       time.Duration
	RunAt       time.Time
	MaxAttempts int
	Backoff     *Backoff
	Timeout     time.Duration
}

// EnqueueOption is a functional option for Enqueue.
type EnqueueOption func(*EnqueueOptions)

// WithPriority sets the job priority (higher = dispatched sooner).
func WithPriority(priority int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Priority = priority
	}
}

// WithDelay keeps the job delayed for d before it becomes eligible.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Delay = d
	}
}

// WithRunAt makes the job eligible at t.
func WithRunAt(t time.Time) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.RunAt = t
	}
}

// WithMaxAttempts overrides the queue's default attempt ceiling.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.MaxAttempts = n
	}
}

// WithBackoff overrides the queue's default backoff policy.
func WithBackoff(b Backoff) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Backoff = &b
	}
}

// WithTimeout overrides the engine's per-job execution timeout.
func WithTimeout(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Timeout = d
	}
}

// WithJobID sets an explicit job ID. Enqueuing an existing ID fails with a conflict.
func WithJobID(id string) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.JobID = id
	}
}

func applyEnqueueOptions(opts []EnqueueOption) EnqueueOptions {
	options := EnqueueOptions{Priority: PriorityNormal}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
