package jobx

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/logx"
)

// HealthStatus is the verdict for a queue.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// QueueHealth is a point-in-time health snapshot of one queue.
type QueueHealth struct {
	Queue     string       `json:"queue"`
	Status    HealthStatus `json:"status"`
	Stats     Stats        `json:"stats"`
	Errors    []string     `json:"errors"`
	CheckedAt time.Time    `json:"checked_at"`
}

// HealthReporter is the monitoring collaborator that receives periodic snapshots.
type HealthReporter interface {
	ReportHealth(ctx context.Context, snapshot []QueueHealth)
}

// HealthReporterFunc adapts a function to HealthReporter.
type HealthReporterFunc func(ctx context.Context, snapshot []QueueHealth)

func (f HealthReporterFunc) ReportHealth(ctx context.Context, snapshot []QueueHealth) {
	f(ctx, snapshot)
}

// LogReporter writes snapshots to the structured log.
type LogReporter struct{}

func (LogReporter) ReportHealth(_ context.Context, snapshot []QueueHealth) {
	for _, h := range snapshot {
		entry := logx.WithFields(logx.Fields{
			"queue":     h.Queue,
			"status":    h.Status,
			"waiting":   h.Stats.Waiting,
			"active":    h.Stats.Active,
			"delayed":   h.Stats.Delayed,
			"completed": h.Stats.Completed,
			"failed":    h.Stats.Failed,
			"paused":    h.Stats.Paused,
		})
		switch h.Status {
		case HealthHealthy:
			entry.Debug("jobx: queue health")
		case HealthDegraded:
			entry.Warnf("jobx: queue degraded: %v", h.Errors)
		default:
			entry.Errorf("jobx: queue unhealthy: %v", h.Errors)
		}
	}
}

// classify never mutates anything; it only reads the counts.
func classify(queue string, stats Stats, statsErr error, t Thresholds, now time.Time) QueueHealth {
	h := QueueHealth{
		Queue:     queue,
		Status:    HealthHealthy,
		Stats:     stats,
		Errors:    []string{},
		CheckedAt: now,
	}

	if statsErr != nil {
		h.Status = HealthUnhealthy
		h.Stats = Stats{}
		h.Errors = append(h.Errors, fmt.Sprintf("Queue error: %v", statsErr))
		return h
	}

	switch {
	case t.WaitingCritical > 0 && stats.Waiting > t.WaitingCritical:
		h.Status = HealthUnhealthy
		h.Errors = append(h.Errors, fmt.Sprintf("critical backlog: %d waiting jobs", stats.Waiting))
	case t.WaitingWarning > 0 && stats.Waiting > t.WaitingWarning:
		h.Status = HealthDegraded
		h.Errors = append(h.Errors, fmt.Sprintf("warning backlog: %d waiting jobs", stats.Waiting))
	}

	if t.FailedCritical > 0 && stats.Failed > t.FailedCritical {
		h.Status = HealthUnhealthy
		h.Errors = append(h.Errors, fmt.Sprintf("too many failed jobs: %d", stats.Failed))
	}

	return h
}

// Overall folds several snapshots into the worst status.
func Overall(snapshot []QueueHealth) HealthStatus {
	status := HealthHealthy
	for _, h := range snapshot {
		switch h.Status {
		case HealthUnhealthy:
			return HealthUnhealthy
		case HealthDegraded:
			status = HealthDegraded
		}
	}
	return status
}
