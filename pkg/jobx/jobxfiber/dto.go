package jobxfiber

import (
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
)

// AddJobRequest is the body of POST /queues/:queue/jobs.
type AddJobRequest struct {
	JobName string          `json:"jobName"`
	Data    json.RawMessage `json:"data"`
	Options *JobOptions     `json:"options,omitempty"`
}

// JobOptions mirrors jobx enqueue options. Durations are in milliseconds.
type JobOptions struct {
	JobID    string          `json:"jobId,omitempty"`
	Delay    int64           `json:"delay,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
	Priority *int            `json:"priority,omitempty"`
	Timeout  int64           `json:"timeout,omitempty"`
	Backoff  *BackoffOptions `json:"backoff,omitempty"`
}

// BackoffOptions overrides the queue's default backoff.
type BackoffOptions struct {
	Type   string  `json:"type"`
	Delay  int64   `json:"delay"`
	Jitter float64 `json:"jitter,omitempty"`
}

// AddJobResponse is returned after a job was enqueued.
type AddJobResponse struct {
	JobID   string `json:"jobId"`
	JobName string `json:"jobName"`
	Queue   string `json:"queue"`
}

// CleanupResponse reports how many jobs a cleanup removed.
type CleanupResponse struct {
	Cleaned int        `json:"cleaned"`
	Type    jobx.State `json:"type"`
}

// EmptyResponse reports how many pending jobs were removed.
type EmptyResponse struct {
	Removed int `json:"removed"`
}

func (r AddJobRequest) enqueueOptions() []jobx.EnqueueOption {
	if r.Options == nil {
		return nil
	}
	o := r.Options

	var opts []jobx.EnqueueOption
	if o.JobID != "" {
		opts = append(opts, jobx.WithJobID(o.JobID))
	}
	if o.Delay != 0 {
		opts = append(opts, jobx.WithDelay(millis(o.Delay)))
	}
	if o.Attempts != 0 {
		opts = append(opts, jobx.WithMaxAttempts(o.Attempts))
	}
	if o.Priority != nil {
		opts = append(opts, jobx.WithPriority(*o.Priority))
	}
	if o.Timeout != 0 {
		opts = append(opts, jobx.WithTimeout(millis(o.Timeout)))
	}
	if o.Backoff != nil {
		opts = append(opts, jobx.WithBackoff(jobx.Backoff{
			Type:   jobx.BackoffType(o.Backoff.Type),
			Delay:  millis(o.Backoff.Delay),
			Jitter: o.Backoff.Jitter,
		}))
	}
	return opts
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
