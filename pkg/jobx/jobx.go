package jobx

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/asyncx"
	"github.com/Abraxas-365/jobqueue/pkg/logx"
)

// Manager owns the named queues, the handler registry and the background
// tasks. It is the single entry point for producers and for the engine.
type Manager struct {
	store    Store
	opts     ManagerOptions
	queues   map[string]*Queue
	order    []*Queue
	handlers *Registry
	retry    RetryCoordinator
	repeats  *repeatScheduler

	mu      sync.Mutex
	running bool
}

// NewManager validates the queue configurations and builds a manager.
func NewManager(store Store, queues []QueueConfig, options ...ManagerOption) (*Manager, error) {
	opts := defaultManagerOptions()
	for _, o := range options {
		o(&opts)
	}

	if store == nil {
		return nil, jobxErrors.New(ErrInvalidQueue).WithDetail("reason", "store is required")
	}
	if len(queues) == 0 {
		return nil, jobxErrors.New(ErrInvalidQueue).WithDetail("reason", "at least one queue is required")
	}
	if opts.CleanupSchedule != "" {
		if _, err := parseSchedule(opts.CleanupSchedule); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		store:    store,
		opts:     opts,
		queues:   make(map[string]*Queue, len(queues)),
		handlers: NewRegistry(),
		retry:    NewRetryCoordinator(opts.Now),
		repeats:  newRepeatScheduler(opts.Now),
	}

	for _, cfg := range queues {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.queues[cfg.Name]; dup {
			return nil, jobxErrors.New(ErrInvalidQueue).
				WithDetail("queue", cfg.Name).
				WithDetail("reason", "duplicate queue name")
		}
		q := newQueue(cfg, store, opts)
		m.queues[cfg.Name] = q
		m.order = append(m.order, q)
	}

	if opts.JobTimeout > opts.LeaseTimeout {
		logx.WithFields(logx.Fields{
			"job_timeout":   opts.JobTimeout.String(),
			"lease_timeout": opts.LeaseTimeout.String(),
		}).Warn("jobx: job timeout exceeds lease timeout; long jobs must report progress to keep their lease")
	}

	return m, nil
}

// Queue returns the handle for a configured queue.
func (m *Manager) Queue(name string) (*Queue, error) {
	q, ok := m.queues[name]
	if !ok {
		return nil, jobxErrors.New(ErrUnknownQueue).WithDetail("queue", name)
	}
	return q, nil
}

// Queues returns all queue handles in configuration order.
func (m *Manager) Queues() []*Queue {
	out := make([]*Queue, len(m.order))
	copy(out, m.order)
	return out
}

// RegisterHandler binds a handler to (queue, jobName).
func (m *Manager) RegisterHandler(queue, jobName string, handler HandlerFunc) error {
	if _, err := m.Queue(queue); err != nil {
		return err
	}
	if jobName == "" || handler == nil {
		return jobxErrors.New(ErrInvalidJob).WithDetail("reason", "job name and handler are required")
	}
	m.handlers.Register(queue, jobName, handler)
	return nil
}

// Enqueue adds a job to queue and returns its ID.
func (m *Manager) Enqueue(ctx context.Context, queue, jobName string, payload any, opts ...EnqueueOption) (string, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, jobName, payload, opts...)
}

// EnqueueAt adds a job that becomes eligible at the given future time.
func (m *Manager) EnqueueAt(ctx context.Context, queue, jobName string, payload any, at time.Time, opts ...EnqueueOption) (string, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return "", err
	}
	return q.EnqueueAt(ctx, jobName, payload, at, opts...)
}

// GetJob returns a job by ID.
func (m *Manager) GetJob(ctx context.Context, queue, id string) (*Job, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return nil, err
	}
	return q.Get(ctx, id)
}

// RemoveJob deletes a job.
func (m *Manager) RemoveJob(ctx context.Context, queue, id string) error {
	q, err := m.Queue(queue)
	if err != nil {
		return err
	}
	return q.Remove(ctx, id)
}

// RetryJob moves a failed job back to waiting.
func (m *Manager) RetryJob(ctx context.Context, queue, id string) error {
	q, err := m.Queue(queue)
	if err != nil {
		return err
	}
	return q.Retry(ctx, id)
}

// PauseQueue stops leasing for queue in every process.
func (m *Manager) PauseQueue(ctx context.Context, queue string) error {
	q, err := m.Queue(queue)
	if err != nil {
		return err
	}
	return q.Pause(ctx)
}

// ResumeQueue re-enables leasing for queue.
func (m *Manager) ResumeQueue(ctx context.Context, queue string) error {
	q, err := m.Queue(queue)
	if err != nil {
		return err
	}
	return q.Resume(ctx)
}

// ListJobs returns jobs of queue in the given states.
func (m *Manager) ListJobs(ctx context.Context, queue string, states []State, start, end int) ([]*Job, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return nil, err
	}
	return q.List(ctx, states, start, end)
}

// CleanupJobs removes terminal jobs older than olderThan.
func (m *Manager) CleanupJobs(ctx context.Context, queue string, olderThan time.Duration, limit int, state State) (int, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return 0, err
	}
	return q.Cleanup(ctx, olderThan, limit, state)
}

// EmptyQueue removes all waiting and delayed jobs of queue.
func (m *Manager) EmptyQueue(ctx context.Context, queue string) (int, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return 0, err
	}
	return q.Empty(ctx)
}

// GetQueueStats returns per-state counts for queue.
func (m *Manager) GetQueueStats(ctx context.Context, queue string) (Stats, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return Stats{}, err
	}
	return q.Stats(ctx)
}

// GetAllQueueStats returns counts for every queue. A queue whose stats
// cannot be read reports zero counts.
func (m *Manager) GetAllQueueStats(ctx context.Context) map[string]Stats {
	fns := make([]func(context.Context) (Stats, error), len(m.order))
	for i, q := range m.order {
		fns[i] = q.Stats
	}

	results := asyncx.AllSettled(ctx, fns...)
	out := make(map[string]Stats, len(m.order))
	for i, r := range results {
		name := m.order[i].Name()
		if !r.OK() {
			logx.WithError(r.Err).WithField("queue", name).Warn("jobx: failed to read queue stats")
			out[name] = Stats{}
			continue
		}
		out[name] = r.Value
	}
	return out
}

// GetQueueHealth classifies one queue.
func (m *Manager) GetQueueHealth(ctx context.Context, queue string) (QueueHealth, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return QueueHealth{}, err
	}
	return q.Health(ctx), nil
}

// GetHealth classifies every queue concurrently.
func (m *Manager) GetHealth(ctx context.Context) []QueueHealth {
	fns := make([]func(context.Context) (QueueHealth, error), len(m.order))
	for i, q := range m.order {
		fns[i] = func(ctx context.Context) (QueueHealth, error) {
			return q.Health(ctx), nil
		}
	}

	results := asyncx.AllSettled(ctx, fns...)
	out := make([]QueueHealth, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

// AddRepeatable enqueues jobName on queue at every firing of a standard
// five-field cron spec while the engine runs. It returns the schedule key.
func (m *Manager) AddRepeatable(queue, jobName string, payload any, spec string, opts ...EnqueueOption) (string, error) {
	q, err := m.Queue(queue)
	if err != nil {
		return "", err
	}
	if jobName == "" {
		return "", jobxErrors.New(ErrInvalidJob).WithDetail("reason", "job name is required")
	}
	sched, err := parseSchedule(spec)
	if err != nil {
		return "", err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	key := repeatKey(queue, jobName, spec)
	m.repeats.add(&repeatEntry{
		key:      key,
		queue:    q,
		name:     jobName,
		payload:  data,
		spec:     spec,
		schedule: sched,
		opts:     opts,
	})

	logx.WithFields(logx.Fields{
		"queue":    queue,
		"job_name": jobName,
		"schedule": spec,
	}).Info("jobx: repeatable job registered")
	return key, nil
}

// RemoveRepeatable stops a schedule. It reports whether the key existed.
func (m *Manager) RemoveRepeatable(key string) bool {
	return m.repeats.remove(key)
}

// Repeatables returns the registered schedule keys.
func (m *Manager) Repeatables() []string {
	return m.repeats.keys()
}

// Start runs the dispatchers, worker pools, reaper, stats reporter, cleanup
// sweeper and repeat scheduler. It blocks until ctx is cancelled, then stops
// leasing and waits up to ShutdownTimeout for in-flight jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	logx.Infof("jobx: starting engine with %d queues", len(m.order))

	// In-flight jobs must be able to finish and record their outcome after
	// ctx is cancelled.
	execCtx := context.WithoutCancel(ctx)

	var background sync.WaitGroup
	pools := make([]*workerPool, 0, len(m.order))

	for _, q := range m.order {
		if names := m.handlers.Names(q.Name()); len(names) == 0 {
			logx.WithField("queue", q.Name()).Warn("jobx: no handlers registered; jobs will fail permanently")
		}

		pool := newWorkerPool(q, m.store, m.handlers, m.retry, m.opts)
		pools = append(pools, pool)
		d := newDispatcher(q, m.store, pool, m.opts)

		background.Add(1)
		go func() {
			defer background.Done()
			d.run(ctx, execCtx)
		}()
	}

	r := &reaper{queues: m.order, store: m.store, interval: m.opts.StalledInterval}
	background.Add(1)
	go func() {
		defer background.Done()
		r.run(ctx)
	}()

	background.Add(1)
	go func() {
		defer background.Done()
		m.reportLoop(ctx)
	}()

	if m.opts.CleanupSchedule != "" {
		s := &sweeper{
			queues:   m.order,
			store:    m.store,
			schedule: m.opts.CleanupSchedule,
			limit:    m.opts.CleanupLimit,
			now:      m.opts.Now,
		}
		background.Add(1)
		go func() {
			defer background.Done()
			s.run(ctx)
		}()
	}

	background.Add(1)
	go func() {
		defer background.Done()
		m.repeats.run(ctx)
	}()

	<-ctx.Done()
	logx.Info("jobx: shutting down, no new jobs will be leased")
	background.Wait()

	done := make(chan struct{})
	go func() {
		for _, p := range pools {
			p.wait()
		}
		close(done)
	}()

	if m.opts.ShutdownTimeout <= 0 {
		<-done
		logx.Info("jobx: all workers stopped")
		return nil
	}

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
	case <-time.After(m.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, unfinished jobs will be reclaimed after their lease expires")
	}
	return nil
}

func (m *Manager) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.opts.Reporter.ReportHealth(ctx, m.GetHealth(ctx))
		}
	}
}
