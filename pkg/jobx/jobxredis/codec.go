package jobxredis

import (
	"strconv"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
)

// Hash field names. state, wmember and token are written by the scripts only.
const (
	fieldID          = "id"
	fieldQueue       = "queue"
	fieldName        = "name"
	fieldPayload     = "payload"
	fieldPriority    = "priority"
	fieldMaxAttempts = "maxAttempts"
	fieldBackoffType = "backoffType"
	fieldBackoffMs   = "backoffDelay"
	fieldJitter      = "backoffJitter"
	fieldTimeoutMs   = "timeout"
	fieldState       = "state"
	fieldAttempts    = "attempts"
	fieldStalled     = "stalled"
	fieldProgress    = "progress"
	fieldLastError   = "lastError"
	fieldAvailableAt = "availableAt"
	fieldLeaseExpiry = "leaseExpiresAt"
	fieldCreatedAt   = "createdAt"
	fieldProcessedAt = "processedAt"
	fieldFinishedAt  = "finishedAt"
	fieldToken       = "token"
)

// encodeJob flattens a new job into HSET field/value pairs.
func encodeJob(j *jobx.Job) []any {
	return []any{
		fieldID, j.ID,
		fieldQueue, j.Queue,
		fieldName, j.Name,
		fieldPayload, string(j.Payload),
		fieldPriority, strconv.Itoa(j.Priority),
		fieldMaxAttempts, strconv.Itoa(j.MaxAttempts),
		fieldBackoffType, string(j.Backoff.Type),
		fieldBackoffMs, strconv.FormatInt(j.Backoff.Delay.Milliseconds(), 10),
		fieldJitter, strconv.FormatFloat(j.Backoff.Jitter, 'f', -1, 64),
		fieldTimeoutMs, strconv.FormatInt(j.Timeout.Milliseconds(), 10),
		fieldAttempts, strconv.Itoa(j.AttemptsMade),
		fieldStalled, strconv.Itoa(j.StalledCount),
		fieldProgress, strconv.Itoa(j.Progress),
		fieldLastError, j.LastError,
		fieldAvailableAt, millis(j.AvailableAt),
		fieldLeaseExpiry, "0",
		fieldCreatedAt, millis(j.CreatedAt),
		fieldProcessedAt, "0",
		fieldFinishedAt, "0",
		fieldToken, "",
	}
}

// decodeJob rebuilds a job from its hash.
func decodeJob(h map[string]string) (*jobx.Job, error) {
	d := decoder{h: h}
	j := &jobx.Job{
		ID:          h[fieldID],
		Queue:       h[fieldQueue],
		Name:        h[fieldName],
		Payload:     []byte(h[fieldPayload]),
		Priority:    d.int(fieldPriority),
		MaxAttempts: d.int(fieldMaxAttempts),
		Backoff: jobx.Backoff{
			Type:   jobx.BackoffType(h[fieldBackoffType]),
			Delay:  d.duration(fieldBackoffMs),
			Jitter: d.float(fieldJitter),
		},
		Timeout:        d.duration(fieldTimeoutMs),
		State:          jobx.State(h[fieldState]),
		AttemptsMade:   d.int(fieldAttempts),
		StalledCount:   d.int(fieldStalled),
		Progress:       d.int(fieldProgress),
		LastError:      h[fieldLastError],
		AvailableAt:    d.time(fieldAvailableAt),
		LeaseExpiresAt: d.time(fieldLeaseExpiry),
		CreatedAt:      d.time(fieldCreatedAt),
		ProcessedAt:    d.time(fieldProcessedAt),
		FinishedAt:     d.time(fieldFinishedAt),
		LeaseToken:     h[fieldToken],
	}
	if d.err != nil {
		return nil, redisErrors.NewWithCause(ErrDecode, d.err).WithDetail("job_id", j.ID)
	}
	return j, nil
}

// decoder keeps the first parse error so decodeJob stays linear.
type decoder struct {
	h   map[string]string
	err error
}

func (d *decoder) int64(field string) int64 {
	v := d.h[field]
	if v == "" || d.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		d.err = err
	}
	return n
}

func (d *decoder) int(field string) int {
	return int(d.int64(field))
}

func (d *decoder) float(field string) float64 {
	v := d.h[field]
	if v == "" || d.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		d.err = err
	}
	return f
}

func (d *decoder) duration(field string) time.Duration {
	return time.Duration(d.int64(field)) * time.Millisecond
}

func (d *decoder) time(field string) time.Time {
	ms := d.int64(field)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func millis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// pairs converts a flat HGETALL reply returned by a script into a map.
func pairs(reply []any) map[string]string {
	out := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		out[k] = v
	}
	return out
}
