// Package jobxfiber exposes queue administration over HTTP with fiber.
//
// Routes, mounted under the router passed to RegisterRoutes:
//
//	GET    /queues/stats
//	GET    /queues/:queue/stats
//	GET    /queues/:queue/health
//	GET    /queues/:queue/jobs?status=waiting,active&start=0&end=50
//	POST   /queues/:queue/jobs
//	GET    /queues/:queue/jobs/:id
//	DELETE /queues/:queue/jobs/:id
//	POST   /queues/:queue/jobs/:id/retry
//	POST   /queues/:queue/pause
//	POST   /queues/:queue/resume
//	DELETE /queues/:queue/clean
//	DELETE /queues/:queue/cleanup?type=completed&grace=3600000&limit=100
//
// Handlers return errx errors; install ErrorHandler on the app to render them.
package jobxfiber

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultListStatus   = "waiting,active,completed,failed"
	defaultListEnd      = 50
	defaultCleanupGrace = time.Hour
	defaultCleanupLimit = 100
)

// Handlers serves the admin routes for a manager.
type Handlers struct {
	manager *jobx.Manager
}

// NewHandlers creates the admin handlers.
func NewHandlers(manager *jobx.Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes mounts the admin routes on router.
func (h *Handlers) RegisterRoutes(router fiber.Router) {
	queues := router.Group("/queues")

	queues.Get("/stats", h.AllStats)
	queues.Get("/:queue/stats", h.Stats)
	queues.Get("/:queue/health", h.Health)

	queues.Get("/:queue/jobs", h.ListJobs)
	queues.Post("/:queue/jobs", h.AddJob)
	queues.Get("/:queue/jobs/:id", h.GetJob)
	queues.Delete("/:queue/jobs/:id", h.RemoveJob)
	queues.Post("/:queue/jobs/:id/retry", h.RetryJob)

	queues.Post("/:queue/pause", h.Pause)
	queues.Post("/:queue/resume", h.Resume)
	queues.Delete("/:queue/clean", h.Empty)
	queues.Delete("/:queue/cleanup", h.Cleanup)
}

// ----------------------------------------------------------------------------
// Stats & health
// ----------------------------------------------------------------------------

func (h *Handlers) AllStats(c *fiber.Ctx) error {
	stats := h.manager.GetAllQueueStats(c.UserContext())
	return ok(c, stats, "Queue stats retrieved")
}

func (h *Handlers) Stats(c *fiber.Ctx) error {
	queue := c.Params("queue")
	stats, err := h.manager.GetQueueStats(c.UserContext(), queue)
	if err != nil {
		return err
	}
	return ok(c, stats, fmt.Sprintf("Stats for queue %s retrieved", queue))
}

func (h *Handlers) Health(c *fiber.Ctx) error {
	queue := c.Params("queue")
	health, err := h.manager.GetQueueHealth(c.UserContext(), queue)
	if err != nil {
		return err
	}
	return ok(c, health, fmt.Sprintf("Health for queue %s retrieved", queue))
}

// ----------------------------------------------------------------------------
// Jobs
// ----------------------------------------------------------------------------

func (h *Handlers) ListJobs(c *fiber.Ctx) error {
	queue := c.Params("queue")

	states := parseStates(c.Query("status", defaultListStatus))
	start, err := queryInt(c, "start", 0)
	if err != nil {
		return err
	}
	end, err := queryInt(c, "end", defaultListEnd)
	if err != nil {
		return err
	}

	jobs, err := h.manager.ListJobs(c.UserContext(), queue, states, start, end)
	if err != nil {
		return err
	}
	return ok(c, jobs, fmt.Sprintf("Jobs of queue %s retrieved", queue))
}

func (h *Handlers) AddJob(c *fiber.Ctx) error {
	queue := c.Params("queue")

	var req AddJobRequest
	if err := c.BodyParser(&req); err != nil {
		return httpErrors.NewWithCause(ErrInvalidBody, err)
	}
	if req.JobName == "" {
		return httpErrors.New(ErrInvalidBody).WithDetail("field", "jobName")
	}

	id, err := h.manager.Enqueue(c.UserContext(), queue, req.JobName, req.Data, req.enqueueOptions()...)
	if err != nil {
		return err
	}

	return respond(c, fiber.StatusCreated, AddJobResponse{
		JobID:   id,
		JobName: req.JobName,
		Queue:   queue,
	}, fmt.Sprintf("Job added to queue %s", queue))
}

func (h *Handlers) GetJob(c *fiber.Ctx) error {
	job, err := h.manager.GetJob(c.UserContext(), c.Params("queue"), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, job, "Job retrieved")
}

func (h *Handlers) RemoveJob(c *fiber.Ctx) error {
	queue, id := c.Params("queue"), c.Params("id")
	if err := h.manager.RemoveJob(c.UserContext(), queue, id); err != nil {
		return err
	}
	return ok(c, nil, fmt.Sprintf("Job %s removed from queue %s", id, queue))
}

func (h *Handlers) RetryJob(c *fiber.Ctx) error {
	queue, id := c.Params("queue"), c.Params("id")
	if err := h.manager.RetryJob(c.UserContext(), queue, id); err != nil {
		return err
	}
	return ok(c, nil, fmt.Sprintf("Job %s moved back to queue %s", id, queue))
}

// ----------------------------------------------------------------------------
// Queue control
// ----------------------------------------------------------------------------

func (h *Handlers) Pause(c *fiber.Ctx) error {
	queue := c.Params("queue")
	if err := h.manager.PauseQueue(c.UserContext(), queue); err != nil {
		return err
	}
	return ok(c, nil, fmt.Sprintf("Queue %s paused", queue))
}

func (h *Handlers) Resume(c *fiber.Ctx) error {
	queue := c.Params("queue")
	if err := h.manager.ResumeQueue(c.UserContext(), queue); err != nil {
		return err
	}
	return ok(c, nil, fmt.Sprintf("Queue %s resumed", queue))
}

func (h *Handlers) Empty(c *fiber.Ctx) error {
	queue := c.Params("queue")
	removed, err := h.manager.EmptyQueue(c.UserContext(), queue)
	if err != nil {
		return err
	}
	return ok(c, EmptyResponse{Removed: removed}, fmt.Sprintf("Queue %s emptied", queue))
}

func (h *Handlers) Cleanup(c *fiber.Ctx) error {
	queue := c.Params("queue")
	state := jobx.State(c.Query("type", string(jobx.StateCompleted)))

	grace, err := queryInt(c, "grace", int(defaultCleanupGrace.Milliseconds()))
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", defaultCleanupLimit)
	if err != nil {
		return err
	}

	cleaned, err := h.manager.CleanupJobs(c.UserContext(), queue, millis(int64(grace)), limit, state)
	if err != nil {
		return err
	}
	return ok(c, CleanupResponse{Cleaned: cleaned, Type: state},
		fmt.Sprintf("Removed %d %s jobs from queue %s", cleaned, state, queue))
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func parseStates(raw string) []jobx.State {
	var states []jobx.State
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			states = append(states, jobx.State(part))
		}
	}
	return states
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httpErrors.NewWithCause(ErrInvalidQuery, err).WithDetail("param", key)
	}
	return n, nil
}
