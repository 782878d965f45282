package config

import (
	"strings"
	"time"
)

// JobxConfig configures the job queue engine and its named queues.
type JobxConfig struct {
	// Backend selects the store: redis, postgres or memory.
	Backend string

	PollInterval       time.Duration
	LeaseTimeout       time.Duration
	JobTimeout         time.Duration
	StalledInterval    time.Duration
	MaxStalledCount    int
	ShutdownTimeout    time.Duration
	StoreRetryInterval time.Duration
	StatsInterval      time.Duration

	BacklogWarning  int64
	BacklogCritical int64
	FailedCritical  int64

	CleanupEnabled      bool
	CleanupSchedule     string
	CompletedRetainDays int
	FailedRetainDays    int
	CleanupLimit        int

	Queues []QueueSettings
}

// QueueSettings is the configuration of one named queue.
type QueueSettings struct {
	Name             string
	Concurrency      int
	Attempts         int
	BackoffType      string
	BackoffDelay     time.Duration
	RemoveOnComplete int
	RemoveOnFail     int
}

// queueDefaults holds the built-in queues and their defaults.
var queueDefaults = []QueueSettings{
	{Name: "email", Concurrency: 5, Attempts: 3, BackoffType: "exponential", BackoffDelay: 2 * time.Second},
	{Name: "file", Concurrency: 3, Attempts: 2, BackoffType: "fixed", BackoffDelay: time.Second},
	{Name: "notification", Concurrency: 10, Attempts: 5, BackoffType: "exponential", BackoffDelay: time.Second},
	{Name: "data", Concurrency: 2, Attempts: 1, BackoffType: "off"},
	{Name: "report", Concurrency: 1, Attempts: 2, BackoffType: "fixed", BackoffDelay: 5 * time.Second},
}

func loadJobxConfig() JobxConfig {
	return JobxConfig{
		Backend:            strings.ToLower(getEnv("JOBX_BACKEND", "redis")),
		PollInterval:       getEnvDuration("JOBX_POLL_INTERVAL", time.Second),
		LeaseTimeout:       getEnvDuration("JOBX_LEASE_TIMEOUT", 30*time.Second),
		JobTimeout:         getEnvDuration("JOBX_JOB_TIMEOUT", 0),
		StalledInterval:    getEnvDuration("QUEUE_STALLED_INTERVAL", 30*time.Second),
		MaxStalledCount:    getEnvInt("QUEUE_MAX_STALLED_COUNT", 1),
		ShutdownTimeout:    getEnvDuration("JOBX_SHUTDOWN_TIMEOUT", 30*time.Second),
		StoreRetryInterval: getEnvDuration("JOBX_STORE_RETRY_INTERVAL", 5*time.Second),
		StatsInterval:      getEnvDuration("JOBX_STATS_INTERVAL", time.Minute),

		BacklogWarning:  int64(getEnvInt("QUEUE_BACKLOG_WARNING", 100)),
		BacklogCritical: int64(getEnvInt("QUEUE_BACKLOG_CRITICAL", 500)),
		FailedCritical:  int64(getEnvInt("QUEUE_FAILED_CRITICAL", 50)),

		CleanupEnabled:      getEnvBool("QUEUE_CLEANUP_ENABLED", false),
		CleanupSchedule:     getEnv("QUEUE_CLEANUP_INTERVAL", "0 2 * * *"),
		CompletedRetainDays: getEnvInt("QUEUE_CLEANUP_RETAIN_DAYS", 7),
		FailedRetainDays:    getEnvInt("QUEUE_CLEANUP_FAILED_RETAIN_DAYS", 14),
		CleanupLimit:        getEnvInt("QUEUE_CLEANUP_LIMIT", 1000),

		Queues: loadQueueSettings(),
	}
}

// loadQueueSettings applies QUEUE_<NAME>_* overrides to the built-in queues.
// JOBX_QUEUES restricts which of them are served by this process.
func loadQueueSettings() []QueueSettings {
	removeOnComplete := getEnvInt("QUEUE_REMOVE_ON_COMPLETE", 100)
	removeOnFail := getEnvInt("QUEUE_REMOVE_ON_FAIL", 50)

	enabled := make(map[string]bool)
	for _, name := range getEnvStringSlice("JOBX_QUEUES", nil) {
		enabled[name] = true
	}

	out := make([]QueueSettings, 0, len(queueDefaults))
	for _, d := range queueDefaults {
		if len(enabled) > 0 && !enabled[d.Name] {
			continue
		}
		prefix := "QUEUE_" + strings.ToUpper(d.Name) + "_"
		out = append(out, QueueSettings{
			Name:             d.Name,
			Concurrency:      getEnvInt(prefix+"CONCURRENCY", d.Concurrency),
			Attempts:         getEnvInt(prefix+"ATTEMPTS", d.Attempts),
			BackoffType:      getEnv(prefix+"BACKOFF_TYPE", d.BackoffType),
			BackoffDelay:     getEnvDuration(prefix+"BACKOFF_DELAY", d.BackoffDelay),
			RemoveOnComplete: removeOnComplete,
			RemoveOnFail:     removeOnFail,
		})
	}
	return out
}
