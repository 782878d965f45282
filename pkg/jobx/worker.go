package jobx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/asyncx"
	"github.com/Abraxas-365/jobqueue/pkg/logx"
)

// storeRetryAttempts bounds how often a terminal transition is retried on a
// transient store error before the job is left for the reaper.
const (
	storeRetryAttempts = 3
	storeRetryDelay    = 100 * time.Millisecond
)

// workerPool executes leased jobs of one queue.
type workerPool struct {
	queue    *Queue
	store    Store
	handlers *Registry
	retry    RetryCoordinator
	opts     ManagerOptions
	wg       sync.WaitGroup
}

func newWorkerPool(q *Queue, store Store, handlers *Registry, retry RetryCoordinator, opts ManagerOptions) *workerPool {
	return &workerPool{
		queue:    q,
		store:    store,
		handlers: handlers,
		retry:    retry,
		opts:     opts,
	}
}

// dispatch runs job in its own goroutine and calls release once the handler
// has returned. A timed-out handler keeps its slot until it actually exits.
func (p *workerPool) dispatch(ctx context.Context, job *Job, release func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer release()
		<-p.execute(ctx, job)
	}()
}

// wait blocks until all in-flight jobs finished.
func (p *workerPool) wait() {
	p.wg.Wait()
}

// execute runs job to a recorded outcome. The returned channel is closed when
// the handler goroutine has exited, which may be after execute returns.
func (p *workerPool) execute(ctx context.Context, job *Job) <-chan struct{} {
	log := logx.WithFields(logx.Fields{
		"queue":    job.Queue,
		"job_id":   job.ID,
		"job_name": job.Name,
		"attempt":  job.AttemptsMade + 1,
	})

	handler, ok := p.handlers.Lookup(job.Queue, job.Name)
	if !ok {
		p.fail(ctx, job, jobxErrors.New(ErrNoHandler).WithDetail("job_name", job.Name))
		return closedChan
	}

	log.Debug("jobx: processing job")
	started := time.Now()

	exited, err := p.invoke(ctx, handler, job)
	if err != nil {
		p.fail(ctx, job, err)
		return exited
	}

	err := p.withStoreRetry(ctx, func(ctx context.Context) error {
		return p.store.Complete(ctx, job, p.queue.config.KeepCompleted)
	})
	if err != nil {
		if IsLeaseLost(err) {
			log.Warn("jobx: lease lost before completion, result discarded")
			return exited
		}
		log.WithError(err).Error("jobx: failed to complete job")
		return exited
	}

	log.WithField("duration", time.Since(started).String()).Info("jobx: job completed")
	return exited
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// invoke runs the handler on a copy of the job with the execution timeout.
// A timed-out handler is not preempted; it is only treated as failed. The
// returned channel is closed when the handler goroutine exits.
func (p *workerPool) invoke(ctx context.Context, handler HandlerFunc, job *Job) (<-chan struct{}, error) {
	run := *job
	run.progress = func(ctx context.Context, pct int) error {
		return p.store.RenewLease(ctx, job, p.opts.LeaseTimeout, pct)
	}

	exited := make(chan struct{})
	call := func(ctx context.Context) (struct{}, error) {
		defer close(exited)
		return struct{}{}, safeCall(ctx, handler, &run)
	}

	timeout := p.opts.JobTimeout
	if job.Timeout > 0 {
		timeout = job.Timeout
	}
	if timeout <= 0 {
		_, err := call(ctx)
		return exited, err
	}

	_, err := asyncx.WithTimeout(ctx, timeout, call)
	if errors.Is(err, context.DeadlineExceeded) {
		return exited, jobxErrors.NewWithCause(ErrHandlerTimeout, err).WithDetail("timeout", timeout.String())
	}
	return exited, err
}

func safeCall(ctx context.Context, handler HandlerFunc, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jobxErrors.NewWithCause(ErrHandlerPanic, fmt.Errorf("%v", r))
		}
	}()
	return handler(ctx, job)
}

func (p *workerPool) fail(ctx context.Context, job *Job, cause error) {
	outcome := p.retry.Decide(job, cause)
	outcome.Keep = p.queue.config.KeepFailed

	log := logx.WithFields(logx.Fields{
		"queue":    job.Queue,
		"job_id":   job.ID,
		"job_name": job.Name,
		"attempts": outcome.AttemptsMade,
	}).WithError(cause)

	err := p.withStoreRetry(ctx, func(ctx context.Context) error {
		return p.store.Fail(ctx, job, outcome)
	})
	if err != nil {
		if IsLeaseLost(err) {
			log.Warn("jobx: lease lost before failure was recorded")
			return
		}
		log.Errorf("jobx: failed to record job failure: %v", err)
		return
	}

	if outcome.Retry {
		log.WithField("retry_at", outcome.AvailableAt).Warn("jobx: job failed, retry scheduled")
		return
	}
	log.Error("jobx: job failed permanently")
}

// withStoreRetry retries op on transient store errors only.
func (p *workerPool) withStoreRetry(ctx context.Context, op func(context.Context) error) error {
	var final error
	_, err := asyncx.RetryWithBackoff(ctx, storeRetryAttempts, storeRetryDelay, func(ctx context.Context) (struct{}, error) {
		err := op(ctx)
		if err != nil && !IsTransient(err) {
			final = err
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if final != nil {
		return final
	}
	return err
}
