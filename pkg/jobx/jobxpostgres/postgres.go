// Package jobxpostgres implements jobx.Store on a single Postgres table.
// Leases are claimed with SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// workers never receive the same row.
package jobxpostgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store is a Postgres-backed jobx.Store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source. Timestamps are always bound as
// parameters, never taken from NOW().
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Postgres-backed store.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ jobx.Store = (*Store)(nil)

// Migrate creates the job tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return pgErrors.NewWithCause(ErrMigrate, err)
	}
	return nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return pgErrors.NewWithCause(ErrTx, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return pgErrors.NewWithCause(ErrTx, err)
	}
	return nil
}

func (s *Store) Push(ctx context.Context, job *jobx.Job) error {
	state := jobx.StateWaiting
	if job.AvailableAt.After(s.clock()) {
		state = jobx.StateDelayed
	}

	row := toPersistence(job)
	row.State = string(state)

	query := `
		INSERT INTO jobx_jobs (` + jobColumns + `)
		VALUES (
			:queue, :id, :name, :payload, :priority, :max_attempts, :backoff_type,
			:backoff_delay_ms, :backoff_jitter, :timeout_ms, :state, :attempts_made, :stalled_count,
			:progress, :last_error, :available_at, :lease_expires_at, :lease_token, :created_at,
			:processed_at, :finished_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return jobx.Error(jobx.ErrDuplicateJob).WithDetail("job_id", job.ID)
		}
		return queryError(err).
			WithDetail("queue", job.Queue).
			WithDetail("job_id", job.ID)
	}

	job.State = state
	return nil
}

func (s *Store) LeasePop(ctx context.Context, queue string, leaseTimeout time.Duration) (*jobx.Job, error) {
	now := s.clock()
	var leased *jobx.Job

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		promote := `
			UPDATE jobx_jobs SET state = 'waiting', seq = nextval('jobx_jobs_seq')
			WHERE queue = $1 AND state = 'delayed' AND available_at <= $2`
		if _, err := tx.ExecContext(ctx, promote, queue, now); err != nil {
			return queryError(err).WithDetail("queue", queue)
		}

		var paused bool
		if err := tx.GetContext(ctx, &paused,
			`SELECT EXISTS (SELECT 1 FROM jobx_paused_queues WHERE queue = $1)`, queue); err != nil {
			return queryError(err).WithDetail("queue", queue)
		}
		if paused {
			return nil
		}

		claim := `
			UPDATE jobx_jobs
			SET state = 'active', lease_token = $2, lease_expires_at = $3, processed_at = $4
			WHERE queue = $1 AND id = (
				SELECT id FROM jobx_jobs
				WHERE queue = $1 AND state = 'waiting'
				ORDER BY priority DESC, seq ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING ` + jobColumns

		var row jobRow
		err := tx.GetContext(ctx, &row, claim, queue, uuid.New().String(), now.Add(leaseTimeout), now)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return queryError(err).WithDetail("queue", queue)
		}
		leased = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

func (s *Store) RenewLease(ctx context.Context, job *jobx.Job, leaseTimeout time.Duration, progress int) error {
	query := `
		UPDATE jobx_jobs
		SET lease_expires_at = $4,
			progress = CASE WHEN $5::int >= 0 THEN $5::int ELSE progress END
		WHERE queue = $1 AND id = $2 AND state = 'active' AND lease_token = $3`

	res, err := s.db.ExecContext(ctx, query,
		job.Queue, job.ID, job.LeaseToken, s.clock().Add(leaseTimeout), progress)
	if err != nil {
		return queryError(err).WithDetail("job_id", job.ID)
	}
	return requireLease(res, job)
}

func (s *Store) Complete(ctx context.Context, job *jobx.Job, keep int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE jobx_jobs
			SET state = 'completed', finished_at = $4, lease_token = '', lease_expires_at = NULL
			WHERE queue = $1 AND id = $2 AND state = 'active' AND lease_token = $3`

		res, err := tx.ExecContext(ctx, query, job.Queue, job.ID, job.LeaseToken, s.clock())
		if err != nil {
			return queryError(err).WithDetail("job_id", job.ID)
		}
		if err := requireLease(res, job); err != nil {
			return err
		}
		return trim(ctx, tx, job.Queue, jobx.StateCompleted, keep)
	})
}

func (s *Store) Fail(ctx context.Context, job *jobx.Job, outcome jobx.FailOutcome) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var (
			res sql.Result
			err error
		)
		if outcome.Retry {
			query := `
				UPDATE jobx_jobs
				SET state = 'delayed', attempts_made = $4, last_error = $5, available_at = $6,
					lease_token = '', lease_expires_at = NULL
				WHERE queue = $1 AND id = $2 AND state = 'active' AND lease_token = $3`
			res, err = tx.ExecContext(ctx, query, job.Queue, job.ID, job.LeaseToken,
				outcome.AttemptsMade, outcome.LastError, outcome.AvailableAt.UTC())
		} else {
			query := `
				UPDATE jobx_jobs
				SET state = 'failed', attempts_made = $4, last_error = $5, finished_at = $6,
					lease_token = '', lease_expires_at = NULL
				WHERE queue = $1 AND id = $2 AND state = 'active' AND lease_token = $3`
			res, err = tx.ExecContext(ctx, query, job.Queue, job.ID, job.LeaseToken,
				outcome.AttemptsMade, outcome.LastError, s.clock())
		}
		if err != nil {
			return queryError(err).WithDetail("job_id", job.ID)
		}
		if err := requireLease(res, job); err != nil {
			return err
		}
		if outcome.Retry {
			return nil
		}
		return trim(ctx, tx, job.Queue, jobx.StateFailed, outcome.Keep)
	})
}

// trim deletes all but the newest keep jobs in a terminal state.
func trim(ctx context.Context, tx *sqlx.Tx, queue string, state jobx.State, keep int) error {
	if keep < 0 {
		return nil
	}
	query := `
		DELETE FROM jobx_jobs
		WHERE queue = $1 AND state = $2 AND id IN (
			SELECT id FROM jobx_jobs
			WHERE queue = $1 AND state = $2
			ORDER BY finished_at DESC, seq DESC
			OFFSET $3
		)`
	if _, err := tx.ExecContext(ctx, query, queue, string(state), keep); err != nil {
		return queryError(err).WithDetail("queue", queue)
	}
	return nil
}

func requireLease(res sql.Result, job *jobx.Job) error {
	n, err := res.RowsAffected()
	if err != nil {
		return queryError(err).WithDetail("job_id", job.ID)
	}
	if n == 0 {
		return jobx.Error(jobx.ErrLeaseLost).
			WithDetail("queue", job.Queue).
			WithDetail("job_id", job.ID)
	}
	return nil
}

func (s *Store) ReclaimExpiredLeases(ctx context.Context, queue string, maxStalled, keepFailed int) (jobx.ReclaimResult, error) {
	query := `
		UPDATE jobx_jobs
		SET stalled_count = stalled_count + 1,
			lease_token = '',
			lease_expires_at = NULL,
			seq = nextval('jobx_jobs_seq'),
			state = CASE WHEN $3::int > 0 AND stalled_count + 1 > $3::int THEN 'failed' ELSE 'waiting' END,
			last_error = CASE WHEN $3::int > 0 AND stalled_count + 1 > $3::int THEN $4 ELSE last_error END,
			finished_at = CASE WHEN $3::int > 0 AND stalled_count + 1 > $3::int THEN $2 ELSE finished_at END
		WHERE queue = $1 AND state = 'active' AND lease_expires_at < $2
		RETURNING state`

	var res jobx.ReclaimResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var states []string
		if err := tx.SelectContext(ctx, &states, query,
			queue, s.clock(), maxStalled, jobx.ErrStalledLimit.Message); err != nil {
			return queryError(err).WithDetail("queue", queue)
		}

		for _, st := range states {
			switch jobx.State(st) {
			case jobx.StateWaiting:
				res.Requeued++
			case jobx.StateFailed:
				res.Failed++
			default:
				return pgErrors.New(ErrBadState).WithDetail("state", st)
			}
		}
		if res.Failed == 0 {
			return nil
		}
		return trim(ctx, tx, queue, jobx.StateFailed, keepFailed)
	})
	if err != nil {
		return jobx.ReclaimResult{}, err
	}
	return res, nil
}

func (s *Store) Get(ctx context.Context, queue, id string) (*jobx.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobx_jobs WHERE queue = $1 AND id = $2`
	err := s.db.GetContext(ctx, &row, query, queue, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(queue, id)
	}
	if err != nil {
		return nil, queryError(err).WithDetail("job_id", id)
	}
	return row.toDomain(), nil
}

func (s *Store) Remove(ctx context.Context, queue, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobx_jobs WHERE queue = $1 AND id = $2`, queue, id)
	if err != nil {
		return queryError(err).WithDetail("job_id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return queryError(err).WithDetail("job_id", id)
	}
	if n == 0 {
		return notFound(queue, id)
	}
	return nil
}

func (s *Store) Requeue(ctx context.Context, queue, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var state string
		err := tx.GetContext(ctx, &state,
			`SELECT state FROM jobx_jobs WHERE queue = $1 AND id = $2 FOR UPDATE`, queue, id)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(queue, id)
		}
		if err != nil {
			return queryError(err).WithDetail("job_id", id)
		}
		if jobx.State(state) != jobx.StateFailed {
			return jobx.Error(jobx.ErrInvalidState).
				WithDetail("job_id", id).
				WithDetail("state", state)
		}

		query := `
			UPDATE jobx_jobs
			SET state = 'waiting', attempts_made = 0, stalled_count = 0, progress = 0,
				available_at = $3, finished_at = NULL, seq = nextval('jobx_jobs_seq')
			WHERE queue = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, query, queue, id, s.clock()); err != nil {
			return queryError(err).WithDetail("job_id", id)
		}
		return nil
	})
}

// listOrder is how each partition is ordered by List and retention.
var listOrder = map[jobx.State]string{
	jobx.StateWaiting:   "priority DESC, seq ASC",
	jobx.StateDelayed:   "available_at ASC, seq ASC",
	jobx.StateActive:    "lease_expires_at ASC, seq ASC",
	jobx.StateCompleted: "finished_at DESC, seq DESC",
	jobx.StateFailed:    "finished_at DESC, seq DESC",
}

func (s *Store) List(ctx context.Context, queue string, states []jobx.State, start, end int) ([]*jobx.Job, error) {
	limit := sql.NullInt64{}
	if end >= 0 {
		limit = sql.NullInt64{Int64: int64(end - start + 1), Valid: true}
	}

	out := make([]*jobx.Job, 0)
	for _, st := range states {
		order, ok := listOrder[st]
		if !ok {
			return nil, jobx.Error(jobx.ErrInvalidJob).WithDetail("state", string(st))
		}

		query := `SELECT ` + jobColumns + ` FROM jobx_jobs
			WHERE queue = $1 AND state = $2
			ORDER BY ` + order + `
			LIMIT $3 OFFSET $4`

		var rows []jobRow
		if err := s.db.SelectContext(ctx, &rows, query, queue, string(st), limit, start); err != nil {
			return nil, queryError(err).WithDetail("queue", queue)
		}
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, queue string) (jobx.Stats, error) {
	var counts []struct {
		State string `db:"state"`
		Count int64  `db:"count"`
	}
	query := `SELECT state, COUNT(*) AS count FROM jobx_jobs WHERE queue = $1 GROUP BY state`
	if err := s.db.SelectContext(ctx, &counts, query, queue); err != nil {
		return jobx.Stats{}, queryError(err).WithDetail("queue", queue)
	}

	var paused bool
	if err := s.db.GetContext(ctx, &paused,
		`SELECT EXISTS (SELECT 1 FROM jobx_paused_queues WHERE queue = $1)`, queue); err != nil {
		return jobx.Stats{}, queryError(err).WithDetail("queue", queue)
	}

	var st jobx.Stats
	for _, c := range counts {
		switch jobx.State(c.State) {
		case jobx.StateWaiting:
			st.Waiting = c.Count
		case jobx.StateDelayed:
			st.Delayed = c.Count
		case jobx.StateActive:
			st.Active = c.Count
		case jobx.StateCompleted:
			st.Completed = c.Count
		case jobx.StateFailed:
			st.Failed = c.Count
		}
	}
	if paused {
		st.Paused = st.Waiting
	}
	return st, nil
}

func (s *Store) Sweep(ctx context.Context, queue string, state jobx.State, olderThan time.Time, limit int) (int, error) {
	if !state.IsTerminal() {
		return 0, jobx.Error(jobx.ErrInvalidState).WithDetail("state", string(state))
	}

	query := `
		DELETE FROM jobx_jobs
		WHERE queue = $1 AND state = $2 AND id IN (
			SELECT id FROM jobx_jobs
			WHERE queue = $1 AND state = $2 AND finished_at < $3
			ORDER BY finished_at ASC
			LIMIT $4
		)`
	res, err := s.db.ExecContext(ctx, query, queue, string(state), olderThan.UTC(), limit)
	if err != nil {
		return 0, queryError(err).WithDetail("queue", queue)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(err).WithDetail("queue", queue)
	}
	return int(n), nil
}

func (s *Store) Pause(ctx context.Context, queue string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobx_paused_queues (queue) VALUES ($1) ON CONFLICT (queue) DO NOTHING`, queue)
	if err != nil {
		return queryError(err).WithDetail("queue", queue)
	}
	return nil
}

func (s *Store) Resume(ctx context.Context, queue string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobx_paused_queues WHERE queue = $1`, queue); err != nil {
		return queryError(err).WithDetail("queue", queue)
	}
	return nil
}

func (s *Store) Empty(ctx context.Context, queue string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobx_jobs WHERE queue = $1 AND state IN ('waiting', 'delayed')`, queue)
	if err != nil {
		return 0, queryError(err).WithDetail("queue", queue)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, queryError(err).WithDetail("queue", queue)
	}
	return int(n), nil
}

func queryError(err error) *errx.Error {
	return pgErrors.NewWithCause(ErrQuery, err)
}

func notFound(queue, id string) error {
	return jobx.Error(jobx.ErrJobNotFound).
		WithDetail("queue", queue).
		WithDetail("job_id", id)
}
