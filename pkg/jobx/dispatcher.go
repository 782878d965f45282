package jobx

import (
	"context"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"golang.org/x/sync/semaphore"
)

// dispatcher leases jobs for one queue only while an execution slot is held,
// so a leased job is always handed to a worker immediately.
type dispatcher struct {
	queue *Queue
	store Store
	slots *semaphore.Weighted
	pool  *workerPool
	opts  ManagerOptions
}

func newDispatcher(q *Queue, store Store, pool *workerPool, opts ManagerOptions) *dispatcher {
	return &dispatcher{
		queue: q,
		store: store,
		slots: semaphore.NewWeighted(int64(q.config.Concurrency)),
		pool:  pool,
		opts:  opts,
	}
}

// run leases until ctx is cancelled. Jobs already handed to the pool keep
// running on execCtx, which is not tied to ctx.
func (d *dispatcher) run(ctx, execCtx context.Context) {
	name := d.queue.Name()
	logx.WithFields(logx.Fields{
		"queue":       name,
		"concurrency": d.queue.config.Concurrency,
	}).Info("jobx: dispatcher started")

	for {
		if err := d.slots.Acquire(ctx, 1); err != nil {
			break
		}

		job, err := d.store.LeasePop(ctx, name, d.opts.LeaseTimeout)
		if err != nil {
			d.slots.Release(1)
			if ctx.Err() != nil {
				break
			}
			logx.WithError(err).WithField("queue", name).Warn("jobx: lease failed, backing off")
			if !sleep(ctx, d.opts.StoreRetryInterval) {
				break
			}
			continue
		}

		if job == nil {
			d.slots.Release(1)
			if !sleep(ctx, d.opts.PollInterval) {
				break
			}
			continue
		}

		d.pool.dispatch(execCtx, job, func() { d.slots.Release(1) })
	}

	logx.WithField("queue", name).Info("jobx: dispatcher stopped")
}

// sleep waits for d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
