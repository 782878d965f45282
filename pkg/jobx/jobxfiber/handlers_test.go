package jobxfiber_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxfiber"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxmemory"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Type    string         `json:"type"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details"`
}

func setup(t *testing.T) (*fiber.App, *jobx.Manager) {
	t.Helper()

	m, err := jobx.NewManager(jobxmemory.New(), []jobx.QueueConfig{
		jobx.DefaultQueueConfig("email"),
		jobx.DefaultQueueConfig("report"),
	})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: jobxfiber.ErrorHandler})
	jobxfiber.NewHandlers(m).RegisterRoutes(app)
	return app, m
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decodeOK(t *testing.T, raw []byte, v any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
	return env
}

func decodeErr(t *testing.T, raw []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestAddAndGetJob(t *testing.T) {
	app, _ := setup(t)

	status, raw := do(t, app, "POST", "/queues/email/jobs",
		`{"jobName":"send-email","data":{"to":"a@example.com"},"options":{"priority":100,"attempts":5,"jobId":"welcome-1"}}`)
	require.Equal(t, fiber.StatusCreated, status, string(raw))

	var added jobxfiber.AddJobResponse
	env := decodeOK(t, raw, &added)
	assert.Equal(t, fiber.StatusCreated, env.Code)
	assert.Equal(t, "welcome-1", added.JobID)
	assert.Equal(t, "email", added.Queue)

	status, raw = do(t, app, "GET", "/queues/email/jobs/welcome-1", "")
	require.Equal(t, fiber.StatusOK, status, string(raw))

	var job jobx.Job
	decodeOK(t, raw, &job)
	assert.Equal(t, "send-email", job.Name)
	assert.Equal(t, 100, job.Priority)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.Equal(t, jobx.StateWaiting, job.State)
	assert.JSONEq(t, `{"to":"a@example.com"}`, string(job.Payload))
}

func TestAddJob_Validation(t *testing.T) {
	app, _ := setup(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"missing job name", "/queues/email/jobs", `{"data":{}}`, 400, jobxfiber.ErrInvalidBody.Code},
		{"malformed body", "/queues/email/jobs", `{"jobName":`, 400, jobxfiber.ErrInvalidBody.Code},
		{"unknown queue", "/queues/nope/jobs", `{"jobName":"x"}`, 400, jobx.ErrUnknownQueue.Code},
		{"negative delay", "/queues/email/jobs", `{"jobName":"x","options":{"delay":-5}}`, 400, jobx.ErrInvalidJob.Code},
		{"bad backoff", "/queues/email/jobs", `{"jobName":"x","options":{"backoff":{"type":"linear","delay":10}}}`, 400, jobx.ErrInvalidBackoff.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := do(t, app, "POST", tt.target, tt.body)
			assert.Equal(t, tt.status, status, string(raw))
			assert.Equal(t, tt.code, decodeErr(t, raw).Code)
		})
	}
}

func TestAddJob_DuplicateIDConflicts(t *testing.T) {
	app, _ := setup(t)

	body := `{"jobName":"send-email","options":{"jobId":"dup"}}`
	status, _ := do(t, app, "POST", "/queues/email/jobs", body)
	require.Equal(t, fiber.StatusCreated, status)

	status, raw := do(t, app, "POST", "/queues/email/jobs", body)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, jobx.ErrDuplicateJob.Code, decodeErr(t, raw).Code)
}

func TestGetJob_NotFound(t *testing.T) {
	app, _ := setup(t)

	status, raw := do(t, app, "GET", "/queues/email/jobs/missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	body := decodeErr(t, raw)
	assert.Equal(t, jobx.ErrJobNotFound.Code, body.Code)
	assert.Equal(t, "NOT_FOUND", body.Type)
}

func TestListJobs(t *testing.T) {
	app, m := setup(t)
	ctx := context.Background()

	_, err := m.Enqueue(ctx, "email", "send-email", nil, jobx.WithJobID("low"), jobx.WithPriority(jobx.PriorityLow))
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "email", "send-email", nil, jobx.WithJobID("high"), jobx.WithPriority(jobx.PriorityHigh))
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "email", "send-email", nil, jobx.WithJobID("later"), jobx.WithDelay(time.Hour))
	require.NoError(t, err)

	t.Run("defaults exclude delayed", func(t *testing.T) {
		status, raw := do(t, app, "GET", "/queues/email/jobs", "")
		require.Equal(t, fiber.StatusOK, status, string(raw))

		var jobs []jobx.Job
		decodeOK(t, raw, &jobs)
		require.Len(t, jobs, 2)
		assert.Equal(t, "high", jobs[0].ID)
		assert.Equal(t, "low", jobs[1].ID)
	})

	t.Run("status filter and range", func(t *testing.T) {
		status, raw := do(t, app, "GET", "/queues/email/jobs?status=waiting,delayed&start=0&end=0", "")
		require.Equal(t, fiber.StatusOK, status, string(raw))

		var jobs []jobx.Job
		decodeOK(t, raw, &jobs)
		require.Len(t, jobs, 2)
		assert.Equal(t, "high", jobs[0].ID)
		assert.Equal(t, "later", jobs[1].ID)
	})

	t.Run("invalid query", func(t *testing.T) {
		status, raw := do(t, app, "GET", "/queues/email/jobs?start=abc", "")
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, jobxfiber.ErrInvalidQuery.Code, decodeErr(t, raw).Code)
	})

	t.Run("unknown state", func(t *testing.T) {
		status, _ := do(t, app, "GET", "/queues/email/jobs?status=sleeping", "")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})
}

func TestRemoveAndRetryJob(t *testing.T) {
	app, m := setup(t)
	ctx := context.Background()

	id, err := m.Enqueue(ctx, "email", "send-email", nil)
	require.NoError(t, err)

	status, raw := do(t, app, "POST", "/queues/email/jobs/"+id+"/retry", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, jobx.ErrInvalidState.Code, decodeErr(t, raw).Code)

	status, _ = do(t, app, "DELETE", "/queues/email/jobs/"+id, "")
	assert.Equal(t, fiber.StatusOK, status)

	_, err = m.GetJob(ctx, "email", id)
	assert.True(t, jobx.IsNotFound(err))

	status, _ = do(t, app, "DELETE", "/queues/email/jobs/"+id, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestPauseResumeAndStats(t *testing.T) {
	app, m := setup(t)
	ctx := context.Background()

	_, err := m.Enqueue(ctx, "report", "generate-report", nil)
	require.NoError(t, err)

	status, _ := do(t, app, "POST", "/queues/report/pause", "")
	require.Equal(t, fiber.StatusOK, status)

	status, raw := do(t, app, "GET", "/queues/report/stats", "")
	require.Equal(t, fiber.StatusOK, status)
	var stats jobx.Stats
	decodeOK(t, raw, &stats)
	assert.Equal(t, int64(1), stats.Waiting)
	assert.Equal(t, int64(1), stats.Paused)

	status, _ = do(t, app, "POST", "/queues/report/resume", "")
	require.Equal(t, fiber.StatusOK, status)

	status, raw = do(t, app, "GET", "/queues/stats", "")
	require.Equal(t, fiber.StatusOK, status)
	var all map[string]jobx.Stats
	decodeOK(t, raw, &all)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(1), all["report"].Waiting)
	assert.Equal(t, int64(0), all["report"].Paused)
	assert.Equal(t, jobx.Stats{}, all["email"])
}

func TestHealth(t *testing.T) {
	app, _ := setup(t)

	status, raw := do(t, app, "GET", "/queues/email/health", "")
	require.Equal(t, fiber.StatusOK, status)

	var health jobx.QueueHealth
	decodeOK(t, raw, &health)
	assert.Equal(t, "email", health.Queue)
	assert.Equal(t, jobx.HealthHealthy, health.Status)
	assert.Empty(t, health.Errors)

	status, _ = do(t, app, "GET", "/queues/nope/health", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCleanAndCleanup(t *testing.T) {
	app, m := setup(t)
	ctx := context.Background()

	_, err := m.Enqueue(ctx, "email", "send-email", nil)
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "email", "send-email", nil, jobx.WithDelay(time.Hour))
	require.NoError(t, err)

	status, raw := do(t, app, "DELETE", "/queues/email/clean", "")
	require.Equal(t, fiber.StatusOK, status)
	var emptied jobxfiber.EmptyResponse
	decodeOK(t, raw, &emptied)
	assert.Equal(t, 2, emptied.Removed)

	status, raw = do(t, app, "DELETE", "/queues/email/cleanup?type=failed&grace=0&limit=10", "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var cleaned jobxfiber.CleanupResponse
	decodeOK(t, raw, &cleaned)
	assert.Equal(t, 0, cleaned.Cleaned)
	assert.Equal(t, jobx.StateFailed, cleaned.Type)

	status, raw = do(t, app, "DELETE", "/queues/email/cleanup?type=waiting", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, jobx.ErrInvalidState.Code, decodeErr(t, raw).Code)
}
