package jobx

import (
	"context"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
)

// reaper returns jobs with expired leases to waiting. Several processes may
// run it concurrently: the store's reclaim is atomic per job.
type reaper struct {
	queues   []*Queue
	store    Store
	interval time.Duration
}

func (r *reaper) run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *reaper) sweep(ctx context.Context) {
	for _, q := range r.queues {
		res, err := r.store.ReclaimExpiredLeases(ctx, q.Name(), q.config.MaxStalledCount, q.config.KeepFailed)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).WithField("queue", q.Name()).Warn("jobx: stalled job check failed")
			continue
		}
		if res.Requeued > 0 || res.Failed > 0 {
			logx.WithFields(logx.Fields{
				"queue":    q.Name(),
				"requeued": res.Requeued,
				"failed":   res.Failed,
			}).Warn("jobx: reclaimed stalled jobs")
		}
	}
}
