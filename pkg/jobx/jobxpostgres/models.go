package jobxpostgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
)

const jobColumns = `queue, id, name, payload, priority, max_attempts, backoff_type,
	backoff_delay_ms, backoff_jitter, timeout_ms, state, attempts_made, stalled_count,
	progress, last_error, available_at, lease_expires_at, lease_token, created_at,
	processed_at, finished_at`

// jobRow is the persistence shape of a job.
type jobRow struct {
	Queue          string       `db:"queue"`
	ID             string       `db:"id"`
	Name           string       `db:"name"`
	Payload        string       `db:"payload"`
	Priority       int          `db:"priority"`
	MaxAttempts    int          `db:"max_attempts"`
	BackoffType    string       `db:"backoff_type"`
	BackoffDelayMs int64        `db:"backoff_delay_ms"`
	BackoffJitter  float64      `db:"backoff_jitter"`
	TimeoutMs      int64        `db:"timeout_ms"`
	State          string       `db:"state"`
	AttemptsMade   int          `db:"attempts_made"`
	StalledCount   int          `db:"stalled_count"`
	Progress       int          `db:"progress"`
	LastError      string       `db:"last_error"`
	AvailableAt    time.Time    `db:"available_at"`
	LeaseExpiresAt sql.NullTime `db:"lease_expires_at"`
	LeaseToken     string       `db:"lease_token"`
	CreatedAt      time.Time    `db:"created_at"`
	ProcessedAt    sql.NullTime `db:"processed_at"`
	FinishedAt     sql.NullTime `db:"finished_at"`
}

func toPersistence(j *jobx.Job) jobRow {
	payload := string(j.Payload)
	if payload == "" {
		payload = "null"
	}
	return jobRow{
		Queue:          j.Queue,
		ID:             j.ID,
		Name:           j.Name,
		Payload:        payload,
		Priority:       j.Priority,
		MaxAttempts:    j.MaxAttempts,
		BackoffType:    string(j.Backoff.Type),
		BackoffDelayMs: j.Backoff.Delay.Milliseconds(),
		BackoffJitter:  j.Backoff.Jitter,
		TimeoutMs:      j.Timeout.Milliseconds(),
		State:          string(j.State),
		AttemptsMade:   j.AttemptsMade,
		StalledCount:   j.StalledCount,
		Progress:       j.Progress,
		LastError:      j.LastError,
		AvailableAt:    j.AvailableAt.UTC(),
		LeaseExpiresAt: nullTime(j.LeaseExpiresAt),
		LeaseToken:     j.LeaseToken,
		CreatedAt:      j.CreatedAt.UTC(),
		ProcessedAt:    nullTime(j.ProcessedAt),
		FinishedAt:     nullTime(j.FinishedAt),
	}
}

func (r jobRow) toDomain() *jobx.Job {
	return &jobx.Job{
		ID:          r.ID,
		Queue:       r.Queue,
		Name:        r.Name,
		Payload:     json.RawMessage(r.Payload),
		Priority:    r.Priority,
		MaxAttempts: r.MaxAttempts,
		Backoff: jobx.Backoff{
			Type:   jobx.BackoffType(r.BackoffType),
			Delay:  time.Duration(r.BackoffDelayMs) * time.Millisecond,
			Jitter: r.BackoffJitter,
		},
		Timeout:        time.Duration(r.TimeoutMs) * time.Millisecond,
		State:          jobx.State(r.State),
		AttemptsMade:   r.AttemptsMade,
		StalledCount:   r.StalledCount,
		Progress:       r.Progress,
		LastError:      r.LastError,
		AvailableAt:    r.AvailableAt.UTC(),
		LeaseExpiresAt: fromNullTime(r.LeaseExpiresAt),
		LeaseToken:     r.LeaseToken,
		CreatedAt:      r.CreatedAt.UTC(),
		ProcessedAt:    fromNullTime(r.ProcessedAt),
		FinishedAt:     fromNullTime(r.FinishedAt),
	}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
