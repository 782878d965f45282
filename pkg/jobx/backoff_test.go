package jobx_test

import (
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayFor(t *testing.T) {
	tests := []struct {
		name    string
		backoff jobx.Backoff
		want    []time.Duration
	}{
		{
			name:    "exponential doubles from base",
			backoff: jobx.ExponentialBackoff(time.Second),
			want:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name:    "fixed repeats delay",
			backoff: jobx.FixedBackoff(time.Second),
			want:    []time.Duration{time.Second, time.Second, time.Second},
		},
		{
			name:    "off retries immediately",
			backoff: jobx.NoBackoff(),
			want:    []time.Duration{0, 0},
		},
		{
			name:    "zero value retries immediately",
			backoff: jobx.Backoff{},
			want:    []time.Duration{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, tt.backoff.DelayFor(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestBackoff_ExponentialIsCapped(t *testing.T) {
	b := jobx.ExponentialBackoff(time.Hour)
	assert.Equal(t, 24*time.Hour, b.DelayFor(64))
	assert.Equal(t, 24*time.Hour, b.DelayFor(10_000))
}

func TestBackoff_AttemptBelowOneUsesFirstDelay(t *testing.T) {
	b := jobx.ExponentialBackoff(time.Second)
	assert.Equal(t, time.Second, b.DelayFor(0))
}

func TestBackoff_JitterStaysWithinBound(t *testing.T) {
	b := jobx.Backoff{Type: jobx.BackoffFixed, Delay: time.Second, Jitter: 0.5}
	for range 100 {
		d := b.DelayFor(1)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestBackoff_Validate(t *testing.T) {
	assert.NoError(t, jobx.ExponentialBackoff(time.Second).Validate())
	assert.NoError(t, jobx.Backoff{}.Validate())

	for _, b := range []jobx.Backoff{
		{Type: "linear", Delay: time.Second},
		{Type: jobx.BackoffFixed, Delay: -time.Second},
		{Type: jobx.BackoffFixed, Delay: time.Second, Jitter: 1.5},
	} {
		err := b.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), jobx.ErrInvalidBackoff.Code)
	}
}
