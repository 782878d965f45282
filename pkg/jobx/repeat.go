package jobx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/robfig/cron/v3"
)

// repeatEntry is a job enqueued on a cron schedule.
type repeatEntry struct {
	key      string
	queue    *Queue
	name     string
	payload  any
	spec     string
	schedule cron.Schedule
	opts     []EnqueueOption
	cancel   context.CancelFunc
}

// jobID derives a deterministic ID for the firing at t, so processes that
// fire the same schedule enqueue it only once.
func (e *repeatEntry) jobID(t time.Time) string {
	return fmt.Sprintf("repeat:%s:%d", e.key, t.UnixMilli())
}

// repeatScheduler enqueues repeatable jobs while the engine is running.
type repeatScheduler struct {
	mu      sync.Mutex
	entries map[string]*repeatEntry
	ctx     context.Context
	wg      sync.WaitGroup
	now     func() time.Time
}

func newRepeatScheduler(now func() time.Time) *repeatScheduler {
	return &repeatScheduler{
		entries: make(map[string]*repeatEntry),
		now:     now,
	}
}

func repeatKey(queue, name, spec string) string {
	return queue + ":" + name + ":" + spec
}

func (s *repeatScheduler) add(e *repeatEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[e.key]; ok && old.cancel != nil {
		old.cancel()
	}
	s.entries[e.key] = e
	if s.ctx != nil {
		s.launch(e)
	}
}

func (s *repeatScheduler) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(s.entries, key)
	return true
}

func (s *repeatScheduler) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// run starts every entry and blocks until ctx is done and all loops exited.
func (s *repeatScheduler) run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	for _, e := range s.entries {
		s.launch(e)
	}
	s.mu.Unlock()

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	for _, e := range s.entries {
		e.cancel = nil
	}
	s.mu.Unlock()
}

// launch must be called with s.mu held.
func (s *repeatScheduler) launch(e *repeatEntry) {
	ctx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, e)
	}()
}

func (s *repeatScheduler) loop(ctx context.Context, e *repeatEntry) {
	for {
		next := e.schedule.Next(s.now())
		if !sleep(ctx, next.Sub(s.now())) {
			return
		}
		s.fire(ctx, e, next)
	}
}

func (s *repeatScheduler) fire(ctx context.Context, e *repeatEntry, at time.Time) {
	opts := append([]EnqueueOption{}, e.opts...)
	opts = append(opts, WithJobID(e.jobID(at)))

	id, err := e.queue.Enqueue(ctx, e.name, e.payload, opts...)
	log := logx.WithFields(logx.Fields{
		"queue":    e.queue.Name(),
		"job_name": e.name,
		"schedule": e.spec,
	})
	switch {
	case err == nil:
		log.WithField("job_id", id).Debug("jobx: repeatable job enqueued")
	case IsDuplicate(err):
		log.Debug("jobx: repeatable job already enqueued by another process")
	default:
		log.WithError(err).Warn("jobx: failed to enqueue repeatable job")
	}
}
