package jobx

import "time"

// RetryCoordinator decides between a delayed retry and a permanent failure.
// The decision depends only on the job's attempt count, its backoff policy,
// the error kind and the current time.
type RetryCoordinator struct {
	now func() time.Time
}

// NewRetryCoordinator creates a coordinator using the given clock.
func NewRetryCoordinator(now func() time.Time) RetryCoordinator {
	if now == nil {
		now = time.Now
	}
	return RetryCoordinator{now: now}
}

// Decide computes the outcome of a failed execution of job.
func (r RetryCoordinator) Decide(job *Job, cause error) FailOutcome {
	maxAttempts := job.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := job.AttemptsMade + 1
	if attempts > maxAttempts {
		attempts = maxAttempts
	}

	outcome := FailOutcome{
		AttemptsMade: attempts,
		LastError:    errorMessage(cause),
	}

	if attempts >= maxAttempts || IsPermanent(cause) {
		return outcome
	}

	outcome.Retry = true
	outcome.AvailableAt = r.now().Add(job.Backoff.DelayFor(attempts))
	return outcome
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
