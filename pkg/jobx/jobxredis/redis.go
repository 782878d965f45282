// Package jobxredis implements jobx.Store on Redis. Every state transition
// runs as a single Lua script, so leases stay exclusive across processes.
package jobxredis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed jobx.Store.
type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithKeyPrefix namespaces every key. Defaults to "jobx".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock overrides the time source. Time is always taken from the
// caller, never from the Redis server.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Redis-backed store.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: "jobx", now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ jobx.Store = (*Store)(nil)

// keys of one queue. The queue name is a hash tag so all keys of a queue
// map to the same cluster slot.
type keys struct {
	base string
}

func (s *Store) keys(queue string) keys {
	return keys{base: fmt.Sprintf("%s:{%s}", s.prefix, queue)}
}

func (k keys) job(id string) string { return k.jobPrefix() + id }
func (k keys) jobPrefix() string { return k.base + ":job:" }
func (k keys) partition(st jobx.State) string { return k.base + ":" + string(st) }
func (k keys) waiting() string { return k.partition(jobx.StateWaiting) }
func (k keys) delayed() string { return k.partition(jobx.StateDelayed) }
func (k keys) active() string { return k.partition(jobx.StateActive) }
func (k keys) completed() string { return k.partition(jobx.StateCompleted) }
func (k keys) failed() string { return k.partition(jobx.StateFailed) }
func (k keys) paused() string { return k.base + ":paused" }
func (k keys) seq() string { return k.base + ":seq" }

func (s *Store) nowMillis() string {
	return millis(s.now().UTC())
}

func (s *Store) Push(ctx context.Context, job *jobx.Job) error {
	k := s.keys(job.Queue)
	args := append([]any{millis(job.AvailableAt), s.nowMillis(), job.ID}, encodeJob(job)...)

	res, err := pushScript.Run(ctx, s.rdb,
		[]string{k.job(job.ID), k.waiting(), k.delayed(), k.seq()},
		args...,
	).Int()
	if err != nil {
		return redisErrors.NewWithCause(ErrPush, err).
			WithDetail("queue", job.Queue).
			WithDetail("job_id", job.ID)
	}

	switch res {
	case 0:
		return jobx.Error(jobx.ErrDuplicateJob).WithDetail("job_id", job.ID)
	case 2:
		job.State = jobx.StateDelayed
	default:
		job.State = jobx.StateWaiting
	}
	return nil
}

func (s *Store) LeasePop(ctx context.Context, queue string, leaseTimeout time.Duration) (*jobx.Job, error) {
	k := s.keys(queue)
	now := s.now().UTC()

	reply, err := leaseScript.Run(ctx, s.rdb,
		[]string{k.waiting(), k.delayed(), k.active(), k.paused(), k.seq()},
		k.jobPrefix(), millis(now), millis(now.Add(leaseTimeout)), uuid.New().String(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrLease, err).WithDetail("queue", queue)
	}
	return decodeJob(pairs(reply))
}

func (s *Store) RenewLease(ctx context.Context, job *jobx.Job, leaseTimeout time.Duration, progress int) error {
	k := s.keys(job.Queue)
	expiry := millis(s.now().UTC().Add(leaseTimeout))

	ok, err := renewScript.Run(ctx, s.rdb,
		[]string{k.job(job.ID), k.active()},
		job.LeaseToken, expiry, strconv.Itoa(progress), job.ID,
	).Int()
	return s.transition(ok, err, job)
}

func (s *Store) Complete(ctx context.Context, job *jobx.Job, keep int) error {
	k := s.keys(job.Queue)

	ok, err := completeScript.Run(ctx, s.rdb,
		[]string{k.job(job.ID), k.active(), k.completed()},
		job.LeaseToken, s.nowMillis(), strconv.Itoa(keep), job.ID, k.jobPrefix(),
	).Int()
	return s.transition(ok, err, job)
}

func (s *Store) Fail(ctx context.Context, job *jobx.Job, outcome jobx.FailOutcome) error {
	k := s.keys(job.Queue)
	retry := "0"
	if outcome.Retry {
		retry = "1"
	}

	ok, err := failScript.Run(ctx, s.rdb,
		[]string{k.job(job.ID), k.active(), k.failed(), k.delayed()},
		job.LeaseToken, s.nowMillis(), strconv.Itoa(outcome.Keep), job.ID, k.jobPrefix(),
		retry, strconv.Itoa(outcome.AttemptsMade), outcome.LastError, millis(outcome.AvailableAt),
	).Int()
	return s.transition(ok, err, job)
}

// transition maps the reply of a lease-guarded script.
func (s *Store) transition(ok int, err error, job *jobx.Job) error {
	if err != nil {
		return redisErrors.NewWithCause(ErrTransit, err).
			WithDetail("queue", job.Queue).
			WithDetail("job_id", job.ID)
	}
	if ok == 0 {
		return jobx.Error(jobx.ErrLeaseLost).
			WithDetail("queue", job.Queue).
			WithDetail("job_id", job.ID)
	}
	return nil
}

func (s *Store) ReclaimExpiredLeases(ctx context.Context, queue string, maxStalled, keepFailed int) (jobx.ReclaimResult, error) {
	k := s.keys(queue)

	counts, err := reclaimScript.Run(ctx, s.rdb,
		[]string{k.active(), k.waiting(), k.failed(), k.seq()},
		k.jobPrefix(), s.nowMillis(), strconv.Itoa(maxStalled), jobx.ErrStalledLimit.Message, strconv.Itoa(keepFailed),
	).Int64Slice()
	if err != nil {
		return jobx.ReclaimResult{}, redisErrors.NewWithCause(ErrReclaim, err).WithDetail("queue", queue)
	}
	if len(counts) != 2 {
		return jobx.ReclaimResult{}, redisErrors.New(ErrBadReply).WithDetail("reply", counts)
	}
	return jobx.ReclaimResult{Requeued: int(counts[0]), Failed: int(counts[1])}, nil
}

func (s *Store) Get(ctx context.Context, queue, id string) (*jobx.Job, error) {
	h, err := s.rdb.HGetAll(ctx, s.keys(queue).job(id)).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrRead, err).WithDetail("job_id", id)
	}
	if len(h) == 0 {
		return nil, notFound(queue, id)
	}
	return decodeJob(h)
}

func (s *Store) Remove(ctx context.Context, queue, id string) error {
	k := s.keys(queue)

	ok, err := removeScript.Run(ctx, s.rdb,
		[]string{k.job(id), k.waiting(), k.delayed(), k.active(), k.completed(), k.failed()},
		id,
	).Int()
	if err != nil {
		return redisErrors.NewWithCause(ErrTransit, err).WithDetail("job_id", id)
	}
	if ok == 0 {
		return notFound(queue, id)
	}
	return nil
}

func (s *Store) Requeue(ctx context.Context, queue, id string) error {
	k := s.keys(queue)

	res, err := requeueScript.Run(ctx, s.rdb,
		[]string{k.job(id), k.failed(), k.waiting(), k.seq()},
		id, s.nowMillis(),
	).Text()
	if err != nil {
		return redisErrors.NewWithCause(ErrTransit, err).WithDetail("job_id", id)
	}

	switch res {
	case "requeued":
		return nil
	case "":
		return notFound(queue, id)
	default:
		return jobx.Error(jobx.ErrInvalidState).
			WithDetail("job_id", id).
			WithDetail("state", res)
	}
}

func (s *Store) List(ctx context.Context, queue string, states []jobx.State, start, end int) ([]*jobx.Job, error) {
	k := s.keys(queue)
	out := make([]*jobx.Job, 0)

	for _, st := range states {
		ids, err := s.rangeIDs(ctx, k, st, int64(start), int64(end))
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}

		pipe := s.rdb.Pipeline()
		cmds := make([]*redis.MapStringStringCmd, len(ids))
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, k.job(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, redisErrors.NewWithCause(ErrRead, err).WithDetail("queue", queue)
		}

		for _, cmd := range cmds {
			h := cmd.Val()
			// removed between the range read and the fetch
			if len(h) == 0 {
				continue
			}
			j, err := decodeJob(h)
			if err != nil {
				return nil, err
			}
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) rangeIDs(ctx context.Context, k keys, st jobx.State, start, end int64) ([]string, error) {
	var (
		members []string
		err     error
	)
	if st.IsTerminal() {
		members, err = s.rdb.ZRevRange(ctx, k.partition(st), start, end).Result()
	} else {
		members, err = s.rdb.ZRange(ctx, k.partition(st), start, end).Result()
	}
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrRead, err).WithDetail("state", string(st))
	}

	if st == jobx.StateWaiting {
		for i, m := range members {
			members[i] = waitingID(m)
		}
	}
	return members, nil
}

// waitingID strips the sequence prefix of a waiting-set member.
func waitingID(member string) string {
	const seqWidth = 17
	if len(member) <= seqWidth {
		return member
	}
	return member[seqWidth:]
}

func (s *Store) Stats(ctx context.Context, queue string) (jobx.Stats, error) {
	k := s.keys(queue)

	pipe := s.rdb.Pipeline()
	waiting := pipe.ZCard(ctx, k.waiting())
	delayed := pipe.ZCard(ctx, k.delayed())
	active := pipe.ZCard(ctx, k.active())
	completed := pipe.ZCard(ctx, k.completed())
	failed := pipe.ZCard(ctx, k.failed())
	paused := pipe.Exists(ctx, k.paused())
	if _, err := pipe.Exec(ctx); err != nil {
		return jobx.Stats{}, redisErrors.NewWithCause(ErrRead, err).WithDetail("queue", queue)
	}

	st := jobx.Stats{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	if paused.Val() > 0 {
		st.Paused = st.Waiting
	}
	return st, nil
}

func (s *Store) Sweep(ctx context.Context, queue string, state jobx.State, olderThan time.Time, limit int) (int, error) {
	if !state.IsTerminal() {
		return 0, jobx.Error(jobx.ErrInvalidState).WithDetail("state", string(state))
	}
	k := s.keys(queue)

	n, err := sweepScript.Run(ctx, s.rdb,
		[]string{k.partition(state)},
		k.jobPrefix(), millis(olderThan.UTC()), strconv.Itoa(limit),
	).Int()
	if err != nil {
		return 0, redisErrors.NewWithCause(ErrSweep, err).
			WithDetail("queue", queue).
			WithDetail("state", string(state))
	}
	return n, nil
}

func (s *Store) Pause(ctx context.Context, queue string) error {
	if err := s.rdb.Set(ctx, s.keys(queue).paused(), "1", 0).Err(); err != nil {
		return redisErrors.NewWithCause(ErrTransit, err).WithDetail("queue", queue)
	}
	return nil
}

func (s *Store) Resume(ctx context.Context, queue string) error {
	if err := s.rdb.Del(ctx, s.keys(queue).paused()).Err(); err != nil {
		return redisErrors.NewWithCause(ErrTransit, err).WithDetail("queue", queue)
	}
	return nil
}

func (s *Store) Empty(ctx context.Context, queue string) (int, error) {
	k := s.keys(queue)

	n, err := emptyScript.Run(ctx, s.rdb,
		[]string{k.waiting(), k.delayed()},
		k.jobPrefix(),
	).Int()
	if err != nil {
		return 0, redisErrors.NewWithCause(ErrSweep, err).WithDetail("queue", queue)
	}
	return n, nil
}

func notFound(queue, id string) error {
	return jobx.Error(jobx.ErrJobNotFound).
		WithDetail("queue", queue).
		WithDetail("job_id", id)
}
