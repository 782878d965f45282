package jobx_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/stretchr/testify/assert"
)

func TestRetryCoordinator_Decide(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rc := jobx.NewRetryCoordinator(func() time.Time { return now })
	boom := errors.New("smtp unavailable")

	t.Run("retries with backoff while attempts remain", func(t *testing.T) {
		job := &jobx.Job{MaxAttempts: 3, AttemptsMade: 1, Backoff: jobx.ExponentialBackoff(time.Second)}

		out := rc.Decide(job, boom)
		assert.True(t, out.Retry)
		assert.Equal(t, 2, out.AttemptsMade)
		assert.Equal(t, now.Add(2*time.Second), out.AvailableAt)
		assert.Equal(t, "smtp unavailable", out.LastError)
	})

	t.Run("fails when the last attempt is used", func(t *testing.T) {
		job := &jobx.Job{MaxAttempts: 3, AttemptsMade: 2, Backoff: jobx.FixedBackoff(time.Second)}

		out := rc.Decide(job, boom)
		assert.False(t, out.Retry)
		assert.Equal(t, 3, out.AttemptsMade)
		assert.True(t, out.AvailableAt.IsZero())
	})

	t.Run("single attempt never retries", func(t *testing.T) {
		out := rc.Decide(&jobx.Job{MaxAttempts: 1}, boom)
		assert.False(t, out.Retry)
		assert.Equal(t, 1, out.AttemptsMade)
	})

	t.Run("attempts never exceed the ceiling", func(t *testing.T) {
		out := rc.Decide(&jobx.Job{MaxAttempts: 2, AttemptsMade: 5}, boom)
		assert.False(t, out.Retry)
		assert.Equal(t, 2, out.AttemptsMade)
	})

	t.Run("permanent errors skip retries", func(t *testing.T) {
		job := &jobx.Job{MaxAttempts: 5, Backoff: jobx.FixedBackoff(time.Second)}

		out := rc.Decide(job, jobx.Permanent(boom))
		assert.False(t, out.Retry)
		assert.Equal(t, 1, out.AttemptsMade)
		assert.Equal(t, "smtp unavailable", out.LastError)
	})

	t.Run("missing handler is permanent", func(t *testing.T) {
		job := &jobx.Job{MaxAttempts: 5}

		out := rc.Decide(job, jobx.Error(jobx.ErrNoHandler))
		assert.False(t, out.Retry)
		assert.Equal(t, 1, out.AttemptsMade)
	})

	t.Run("nil cause still records an error", func(t *testing.T) {
		out := rc.Decide(&jobx.Job{MaxAttempts: 1}, nil)
		assert.Equal(t, "unknown error", out.LastError)
	})
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, jobx.Permanent(nil))

	cause := errors.New("bad input")
	err := jobx.Permanent(cause)
	assert.True(t, jobx.IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, jobx.IsPermanent(cause))
}
