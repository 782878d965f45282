package jobx

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffType selects how the retry delay grows with the attempt count.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
	BackoffNone        BackoffType = "off"
)

// maxBackoffDelay caps exponential growth so the shift never overflows.
const maxBackoffDelay = 24 * time.Hour

// Backoff describes the retry delay policy captured on a job at enqueue time.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`

	// Jitter is the maximum fraction (0-1) of random extra delay added on top of
	// the computed value. Zero keeps the policy deterministic.
	Jitter float64 `json:"jitter,omitempty"`
}

// FixedBackoff waits d before every retry.
func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Type: BackoffFixed, Delay: d}
}

// ExponentialBackoff waits base * 2^(attempt-1).
func ExponentialBackoff(base time.Duration) Backoff {
	return Backoff{Type: BackoffExponential, Delay: base}
}

// NoBackoff retries immediately.
func NoBackoff() Backoff {
	return Backoff{Type: BackoffNone}
}

// Validate checks the policy descriptor.
func (b Backoff) Validate() error {
	switch b.Type {
	case BackoffFixed, BackoffExponential, BackoffNone, "":
	default:
		return jobxErrors.New(ErrInvalidBackoff).WithDetail("type", string(b.Type))
	}
	if b.Delay < 0 {
		return jobxErrors.New(ErrInvalidBackoff).WithDetail("delay", b.Delay.String())
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return jobxErrors.New(ErrInvalidBackoff).WithDetail("jitter", b.Jitter)
	}
	return nil
}

// DelayFor returns the delay before the retry that follows the given number
// of failed attempts. attemptsMade starts at 1.
func (b Backoff) DelayFor(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}

	var d time.Duration
	switch b.Type {
	case BackoffFixed:
		d = b.Delay
	case BackoffExponential:
		d = exponential(b.Delay, attemptsMade)
	default:
		return 0
	}

	if b.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * b.Jitter * float64(d))
	}
	return d
}

func exponential(base time.Duration, attemptsMade int) time.Duration {
	if base <= 0 {
		return 0
	}
	factor := math.Pow(2, float64(attemptsMade-1))
	if float64(base)*factor >= float64(maxBackoffDelay) {
		return maxBackoffDelay
	}
	return time.Duration(float64(base) * factor)
}
