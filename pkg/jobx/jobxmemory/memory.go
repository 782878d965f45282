// Package jobxmemory is a process-local jobx.Store. It honours every store
// contract but shares nothing across processes, so it suits development and
// tests only.
package jobxmemory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/google/uuid"
)

// Store keeps every queue in memory behind a single mutex.
type Store struct {
	mu     sync.Mutex
	queues map[string]*queueState
	seq    int64
	now    func() time.Time
}

type queueState struct {
	jobs   map[string]*record
	paused bool
}

// record is a stored job plus its FIFO position among waiting jobs.
type record struct {
	job jobx.Job
	seq int64
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source used for availability and lease expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		queues: make(map[string]*queueState),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ jobx.Store = (*Store)(nil)

func (s *Store) queue(name string) *queueState {
	q, ok := s.queues[name]
	if !ok {
		q = &queueState{jobs: make(map[string]*record)}
		s.queues[name] = q
	}
	return q
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *Store) Push(_ context.Context, job *jobx.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(job.Queue)
	if _, exists := q.jobs[job.ID]; exists {
		return jobx.Error(jobx.ErrDuplicateJob).WithDetail("job_id", job.ID)
	}

	job.State = jobx.StateWaiting
	if job.AvailableAt.After(s.now()) {
		job.State = jobx.StateDelayed
	}

	q.jobs[job.ID] = &record{job: clone(job), seq: s.nextSeq()}
	return nil
}

func (s *Store) LeasePop(_ context.Context, queue string, leaseTimeout time.Duration) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	now := s.now().UTC()
	s.promote(q, now)

	if q.paused {
		return nil, nil
	}

	var next *record
	for _, r := range q.jobs {
		if r.job.State != jobx.StateWaiting {
			continue
		}
		if next == nil || waitingBefore(r, next) {
			next = r
		}
	}
	if next == nil {
		return nil, nil
	}

	next.job.State = jobx.StateActive
	next.job.LeaseToken = uuid.New().String()
	next.job.LeaseExpiresAt = now.Add(leaseTimeout)
	next.job.ProcessedAt = now

	out := clone(&next.job)
	return &out, nil
}

// promote moves due delayed jobs to waiting, behind the jobs already there.
func (s *Store) promote(q *queueState, now time.Time) {
	due := make([]*record, 0)
	for _, r := range q.jobs {
		if r.job.State == jobx.StateDelayed && !r.job.AvailableAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].job.AvailableAt.Equal(due[j].job.AvailableAt) {
			return due[i].job.AvailableAt.Before(due[j].job.AvailableAt)
		}
		return due[i].seq < due[j].seq
	})
	for _, r := range due {
		r.job.State = jobx.StateWaiting
		r.seq = s.nextSeq()
	}
}

func waitingBefore(a, b *record) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	return a.seq < b.seq
}

// leased returns the record only while job still holds its lease.
func (s *Store) leased(job *jobx.Job) (*queueState, *record, error) {
	q := s.queue(job.Queue)
	r, ok := q.jobs[job.ID]
	if !ok || r.job.State != jobx.StateActive || r.job.LeaseToken != job.LeaseToken {
		return nil, nil, jobx.Error(jobx.ErrLeaseLost).
			WithDetail("queue", job.Queue).
			WithDetail("job_id", job.ID)
	}
	return q, r, nil
}

func (s *Store) RenewLease(_ context.Context, job *jobx.Job, leaseTimeout time.Duration, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, r, err := s.leased(job)
	if err != nil {
		return err
	}
	r.job.LeaseExpiresAt = s.now().UTC().Add(leaseTimeout)
	if progress >= 0 {
		r.job.Progress = progress
	}
	return nil
}

func (s *Store) Complete(_ context.Context, job *jobx.Job, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, r, err := s.leased(job)
	if err != nil {
		return err
	}

	r.job.State = jobx.StateCompleted
	r.job.FinishedAt = s.now().UTC()
	r.job.LeaseToken = ""
	r.job.LeaseExpiresAt = time.Time{}
	trim(q, jobx.StateCompleted, keep)
	return nil
}

func (s *Store) Fail(_ context.Context, job *jobx.Job, outcome jobx.FailOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, r, err := s.leased(job)
	if err != nil {
		return err
	}

	r.job.AttemptsMade = outcome.AttemptsMade
	r.job.LastError = outcome.LastError
	r.job.LeaseToken = ""
	r.job.LeaseExpiresAt = time.Time{}

	if outcome.Retry {
		r.job.State = jobx.StateDelayed
		r.job.AvailableAt = outcome.AvailableAt.UTC()
		return nil
	}

	r.job.State = jobx.StateFailed
	r.job.FinishedAt = s.now().UTC()
	trim(q, jobx.StateFailed, outcome.Keep)
	return nil
}

// trim keeps the newest keep jobs in a terminal state. keep < 0 keeps all.
func trim(q *queueState, state jobx.State, keep int) {
	if keep < 0 {
		return
	}
	jobs := collect(q, state)
	sortState(jobs, state)
	for _, r := range jobs[min(keep, len(jobs)):] {
		delete(q.jobs, r.job.ID)
	}
}

func (s *Store) ReclaimExpiredLeases(_ context.Context, queue string, maxStalled, keepFailed int) (jobx.ReclaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res jobx.ReclaimResult
	q := s.queue(queue)
	now := s.now().UTC()

	for _, r := range collect(q, jobx.StateActive) {
		if !r.job.LeaseExpiresAt.Before(now) {
			continue
		}
		r.job.StalledCount++
		r.job.LeaseToken = ""
		r.job.LeaseExpiresAt = time.Time{}

		if maxStalled > 0 && r.job.StalledCount > maxStalled {
			r.job.State = jobx.StateFailed
			r.job.LastError = jobx.ErrStalledLimit.Message
			r.job.FinishedAt = now
			res.Failed++
			continue
		}

		r.job.State = jobx.StateWaiting
		r.seq = s.nextSeq()
		res.Requeued++
	}
	if res.Failed > 0 {
		trim(q, jobx.StateFailed, keepFailed)
	}
	return res, nil
}

func (s *Store) Get(_ context.Context, queue, id string) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.queue(queue).jobs[id]
	if !ok {
		return nil, notFound(queue, id)
	}
	out := clone(&r.job)
	return &out, nil
}

func (s *Store) Remove(_ context.Context, queue, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	if _, ok := q.jobs[id]; !ok {
		return notFound(queue, id)
	}
	delete(q.jobs, id)
	return nil
}

func (s *Store) Requeue(_ context.Context, queue, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.queue(queue).jobs[id]
	if !ok {
		return notFound(queue, id)
	}
	if r.job.State != jobx.StateFailed {
		return jobx.Error(jobx.ErrInvalidState).
			WithDetail("job_id", id).
			WithDetail("state", string(r.job.State))
	}

	r.job.State = jobx.StateWaiting
	r.job.AttemptsMade = 0
	r.job.StalledCount = 0
	r.job.Progress = 0
	r.job.AvailableAt = s.now().UTC()
	r.job.FinishedAt = time.Time{}
	r.seq = s.nextSeq()
	return nil
}

func (s *Store) List(_ context.Context, queue string, states []jobx.State, start, end int) ([]*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	out := make([]*jobx.Job, 0)
	for _, state := range states {
		jobs := collect(q, state)
		sortState(jobs, state)
		for _, r := range window(jobs, start, end) {
			j := clone(&r.job)
			out = append(out, &j)
		}
	}
	return out, nil
}

// window applies an inclusive range; end < 0 means to the last element.
func window(jobs []*record, start, end int) []*record {
	if start >= len(jobs) {
		return nil
	}
	if end < 0 || end >= len(jobs) {
		end = len(jobs) - 1
	}
	if end < start {
		return nil
	}
	return jobs[start : end+1]
}

func (s *Store) Stats(_ context.Context, queue string) (jobx.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	var st jobx.Stats
	for _, r := range q.jobs {
		switch r.job.State {
		case jobx.StateWaiting:
			st.Waiting++
		case jobx.StateDelayed:
			st.Delayed++
		case jobx.StateActive:
			st.Active++
		case jobx.StateCompleted:
			st.Completed++
		case jobx.StateFailed:
			st.Failed++
		}
	}
	if q.paused {
		st.Paused = st.Waiting
	}
	return st, nil
}

func (s *Store) Sweep(_ context.Context, queue string, state jobx.State, olderThan time.Time, limit int) (int, error) {
	if !state.IsTerminal() {
		return 0, jobx.Error(jobx.ErrInvalidState).WithDetail("state", string(state))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	jobs := collect(q, state)
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].job.FinishedAt.Before(jobs[j].job.FinishedAt)
	})

	removed := 0
	for _, r := range jobs {
		if removed >= limit || !r.job.FinishedAt.Before(olderThan) {
			break
		}
		delete(q.jobs, r.job.ID)
		removed++
	}
	return removed, nil
}

func (s *Store) Pause(_ context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue(queue).paused = true
	return nil
}

func (s *Store) Resume(_ context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue(queue).paused = false
	return nil
}

func (s *Store) Empty(_ context.Context, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	removed := 0
	for id, r := range q.jobs {
		if r.job.State == jobx.StateWaiting || r.job.State == jobx.StateDelayed {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func collect(q *queueState, state jobx.State) []*record {
	out := make([]*record, 0)
	for _, r := range q.jobs {
		if r.job.State == state {
			out = append(out, r)
		}
	}
	return out
}

// sortState orders jobs the way List and retention see them.
func sortState(jobs []*record, state jobx.State) {
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		switch state {
		case jobx.StateWaiting:
			return waitingBefore(a, b)
		case jobx.StateDelayed:
			if !a.job.AvailableAt.Equal(b.job.AvailableAt) {
				return a.job.AvailableAt.Before(b.job.AvailableAt)
			}
		case jobx.StateActive:
			if !a.job.LeaseExpiresAt.Equal(b.job.LeaseExpiresAt) {
				return a.job.LeaseExpiresAt.Before(b.job.LeaseExpiresAt)
			}
		default:
			if !a.job.FinishedAt.Equal(b.job.FinishedAt) {
				return a.job.FinishedAt.After(b.job.FinishedAt)
			}
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
}

func notFound(queue, id string) error {
	return jobx.Error(jobx.ErrJobNotFound).
		WithDetail("queue", queue).
		WithDetail("job_id", id)
}

func clone(j *jobx.Job) jobx.Job {
	out := *j
	out.Payload = bytes.Clone(j.Payload)
	return out
}
