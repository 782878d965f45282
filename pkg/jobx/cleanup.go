package jobx

import (
	"context"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/robfig/cron/v3"
)

// sweeper deletes terminal jobs older than each queue's retention windows.
type sweeper struct {
	queues   []*Queue
	store    Store
	schedule string
	limit    int
	now      func() time.Time
}

func parseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, jobxErrors.NewWithCause(ErrInvalidSchedule, err).WithDetail("schedule", spec)
	}
	return sched, nil
}

func (s *sweeper) run(ctx context.Context) {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		logx.WithError(err).WithField("schedule", s.schedule).Error("jobx: cleanup disabled, invalid schedule")
		return
	}

	logx.WithField("schedule", s.schedule).Info("jobx: cleanup sweeper scheduled")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// sweep runs one bounded pass over every queue.
func (s *sweeper) sweep(ctx context.Context) {
	now := s.now()
	for _, q := range s.queues {
		s.sweepState(ctx, q, StateCompleted, q.config.CompletedRetention, now)
		s.sweepState(ctx, q, StateFailed, q.config.FailedRetention, now)
	}
}

func (s *sweeper) sweepState(ctx context.Context, q *Queue, state State, retention time.Duration, now time.Time) int {
	if retention <= 0 {
		return 0
	}

	removed, err := s.store.Sweep(ctx, q.Name(), state, now.Add(-retention), s.limit)
	if err != nil {
		logx.WithError(err).WithFields(logx.Fields{
			"queue": q.Name(),
			"state": state,
		}).Warn("jobx: retention sweep failed")
		return 0
	}
	if removed > 0 {
		logx.WithFields(logx.Fields{
			"queue":   q.Name(),
			"state":   state,
			"removed": removed,
		}).Info("jobx: retention sweep removed jobs")
	}
	return removed
}
