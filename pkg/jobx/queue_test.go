package jobx_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lease = 30 * time.Second

func newManager(t *testing.T, store jobx.Store, opts ...jobx.ManagerOption) *jobx.Manager {
	t.Helper()

	email := jobx.DefaultQueueConfig("email")
	email.DefaultMaxAttempts = 3
	email.DefaultBackoff = jobx.ExponentialBackoff(2 * time.Second)

	m, err := jobx.NewManager(store, []jobx.QueueConfig{email, jobx.DefaultQueueConfig("report")}, opts...)
	require.NoError(t, err)
	return m
}

func assertCode(t *testing.T, err error, code *errx.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, code.Code), "want %s, got %v", code.Code, err)
}

func TestNewManager_Validation(t *testing.T) {
	valid := []jobx.QueueConfig{jobx.DefaultQueueConfig("email")}

	_, err := jobx.NewManager(nil, valid)
	assertCode(t, err, jobx.ErrInvalidQueue)

	_, err = jobx.NewManager(jobxmemory.New(), nil)
	assertCode(t, err, jobx.ErrInvalidQueue)

	_, err = jobx.NewManager(jobxmemory.New(), append(valid, jobx.DefaultQueueConfig("email")))
	assertCode(t, err, jobx.ErrInvalidQueue)

	bad := jobx.DefaultQueueConfig("file")
	bad.Concurrency = 0
	_, err = jobx.NewManager(jobxmemory.New(), []jobx.QueueConfig{bad})
	assertCode(t, err, jobx.ErrInvalidQueue)

	bad = jobx.DefaultQueueConfig("file")
	bad.DefaultBackoff = jobx.Backoff{Type: "linear"}
	_, err = jobx.NewManager(jobxmemory.New(), []jobx.QueueConfig{bad})
	assertCode(t, err, jobx.ErrInvalidBackoff)

	_, err = jobx.NewManager(jobxmemory.New(), valid, jobx.WithCleanup("every day", 10))
	assertCode(t, err, jobx.ErrInvalidSchedule)
}

func TestManager_UnknownQueue(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, jobxmemory.New())

	_, err := m.Enqueue(ctx, "sms", "send", nil)
	assertCode(t, err, jobx.ErrUnknownQueue)

	_, err = m.GetQueueStats(ctx, "sms")
	assertCode(t, err, jobx.ErrUnknownQueue)

	assertCode(t, m.PauseQueue(ctx, "sms"), jobx.ErrUnknownQueue)
	assertCode(t, m.RegisterHandler("sms", "send", func(context.Context, *jobx.Job) error { return nil }), jobx.ErrUnknownQueue)
	assertCode(t, m.RegisterHandler("email", "", nil), jobx.ErrInvalidJob)
}

func TestEnqueue_AppliesQueueDefaults(t *testing.T) {
	ctx := context.Background()
	clock := jobxtest.NewClock(jobxtest.Epoch)
	m := newManager(t, jobxmemory.New(jobxmemory.WithClock(clock.Now)), jobx.WithClock(clock.Now))

	id, err := m.Enqueue(ctx, "email", "send-email", map[string]string{"to": "a@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := m.GetJob(ctx, "email", id)
	require.NoError(t, err)
	assert.Equal(t, "email", job.Queue)
	assert.Equal(t, jobx.StateWaiting, job.State)
	assert.Equal(t, jobx.PriorityNormal, job.Priority)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, jobx.ExponentialBackoff(2*time.Second), job.Backoff)
	assert.Equal(t, 0, job.AttemptsMade)
	assert.Equal(t, clock.Now(), job.CreatedAt)
	assert.Equal(t, clock.Now(), job.AvailableAt)

	var payload map[string]string
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, "a@example.com", payload["to"])
}

func TestEnqueue_Options(t *testing.T) {
	ctx := context.Background()
	clock := jobxtest.NewClock(jobxtest.Epoch)
	m := newManager(t, jobxmemory.New(jobxmemory.WithClock(clock.Now)), jobx.WithClock(clock.Now))

	id, err := m.Enqueue(ctx, "email", "send-email", json.RawMessage(`{"x":1}`),
		jobx.WithJobID("custom"),
		jobx.WithPriority(jobx.PriorityHigh),
		jobx.WithDelay(time.Minute),
		jobx.WithMaxAttempts(7),
		jobx.WithBackoff(jobx.FixedBackoff(time.Second)),
		jobx.WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, "custom", id)

	job, err := m.GetJob(ctx, "email", id)
	require.NoError(t, err)
	assert.Equal(t, jobx.StateDelayed, job.State)
	assert.Equal(t, jobx.PriorityHigh, job.Priority)
	assert.Equal(t, 7, job.MaxAttempts)
	assert.Equal(t, jobx.FixedBackoff(time.Second), job.Backoff)
	assert.Equal(t, 5*time.Second, job.Timeout)
	assert.Equal(t, clock.Now().Add(time.Minute), job.AvailableAt)
	assert.JSONEq(t, `{"x":1}`, string(job.Payload))

	_, err = m.Enqueue(ctx, "email", "send-email", nil, jobx.WithJobID("custom"))
	assert.True(t, jobx.IsDuplicate(err))
}

func TestEnqueue_Validation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, jobxmemory.New())

	tests := []struct {
		name    string
		jobName string
		payload any
		opts    []jobx.EnqueueOption
		code    *errx.ErrorCode
	}{
		{"empty name", "", nil, nil, jobx.ErrInvalidJob},
		{"negative attempts", "x", nil, []jobx.EnqueueOption{jobx.WithMaxAttempts(-1)}, jobx.ErrInvalidJob},
		{"negative delay", "x", nil, []jobx.EnqueueOption{jobx.WithDelay(-time.Second)}, jobx.ErrInvalidJob},
		{"negative timeout", "x", nil, []jobx.EnqueueOption{jobx.WithTimeout(-time.Second)}, jobx.ErrInvalidJob},
		{"invalid raw payload", "x", []byte("{not json"), nil, jobx.ErrInvalidPayload},
		{"unmarshalable payload", "x", make(chan int), nil, jobx.ErrInvalidPayload},
		{"invalid backoff", "x", nil, []jobx.EnqueueOption{jobx.WithBackoff(jobx.Backoff{Type: "linear"})}, jobx.ErrInvalidBackoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Enqueue(ctx, "email", tt.jobName, tt.payload, tt.opts...)
			assertCode(t, err, tt.code)
			assert.True(t, errx.IsType(err, errx.TypeValidation))
		})
	}

	stats, err := m.GetQueueStats(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, jobx.Stats{}, stats)
}

func TestEnqueueAt(t *testing.T) {
	ctx := context.Background()
	clock := jobxtest.NewClock(jobxtest.Epoch)
	m := newManager(t, jobxmemory.New(jobxmemory.WithClock(clock.Now)), jobx.WithClock(clock.Now))

	at := clock.Now().Add(time.Hour)
	id, err := m.EnqueueAt(ctx, "report", "generate-report", nil, at)
	require.NoError(t, err)

	job, err := m.GetJob(ctx, "report", id)
	require.NoError(t, err)
	assert.Equal(t, jobx.StateDelayed, job.State)
	assert.Equal(t, at, job.AvailableAt)

	_, err = m.EnqueueAt(ctx, "report", "generate-report", nil, clock.Now())
	assertCode(t, err, jobx.ErrInvalidSchedule)
}

func TestListJobs_Validation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, jobxmemory.New())

	_, err := m.ListJobs(ctx, "email", []jobx.State{"sleeping"}, 0, -1)
	assertCode(t, err, jobx.ErrInvalidJob)

	_, err = m.ListJobs(ctx, "email", nil, -1, 10)
	assertCode(t, err, jobx.ErrInvalidJob)

	_, err = m.ListJobs(ctx, "email", nil, 5, 2)
	assertCode(t, err, jobx.ErrInvalidJob)

	enqueueN(t, m, "email", 3)
	jobs, err := m.ListJobs(ctx, "email", nil, 0, -1)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestCleanupJobs(t *testing.T) {
	ctx := context.Background()
	clock := jobxtest.NewClock(jobxtest.Epoch)
	store := jobxmemory.New(jobxmemory.WithClock(clock.Now))
	m := newManager(t, store, jobx.WithClock(clock.Now))

	_, err := m.CleanupJobs(ctx, "email", time.Hour, 10, jobx.StateWaiting)
	assertCode(t, err, jobx.ErrInvalidState)

	_, err = m.CleanupJobs(ctx, "email", time.Hour, 0, jobx.StateCompleted)
	assertCode(t, err, jobx.ErrInvalidJob)

	for range 3 {
		_, err := m.Enqueue(ctx, "email", "send-email", nil)
		require.NoError(t, err)
		job, err := store.LeasePop(ctx, "email", lease)
		require.NoError(t, err)
		require.NoError(t, store.Complete(ctx, job, -1))
		clock.Advance(time.Hour)
	}

	// Finished at T, T+1h, T+2h; now is T+3h.
	removed, err := m.CleanupJobs(ctx, "email", 90*time.Minute, 10, jobx.StateCompleted)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := m.GetQueueStats(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestEmptyQueue(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, jobxmemory.New())

	enqueueN(t, m, "email", 2)
	_, err := m.Enqueue(ctx, "email", "later", nil, jobx.WithDelay(time.Hour))
	require.NoError(t, err)

	removed, err := m.EmptyQueue(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	stats, err := m.GetQueueStats(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, jobx.Stats{}, stats)
}

func TestRetryJob(t *testing.T) {
	ctx := context.Background()
	store := jobxmemory.New()
	m := newManager(t, store)

	id, err := m.Enqueue(ctx, "email", "send-email", nil)
	require.NoError(t, err)
	assertCode(t, m.RetryJob(ctx, "email", id), jobx.ErrInvalidState)

	job, err := store.LeasePop(ctx, "email", lease)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job, jobx.FailOutcome{AttemptsMade: 3, LastError: "boom", Keep: -1}))

	require.NoError(t, m.RetryJob(ctx, "email", id))

	got, err := m.GetJob(ctx, "email", id)
	require.NoError(t, err)
	assert.Equal(t, jobx.StateWaiting, got.State)
	assert.Equal(t, 0, got.AttemptsMade)
	assert.Equal(t, "boom", got.LastError)

	assert.True(t, jobx.IsNotFound(m.RetryJob(ctx, "email", "missing")))
}

func TestManager_QueuesKeepConfigOrder(t *testing.T) {
	m := newManager(t, jobxmemory.New())

	queues := m.Queues()
	require.Len(t, queues, 2)
	assert.Equal(t, "email", queues[0].Name())
	assert.Equal(t, "report", queues[1].Name())
	assert.Equal(t, 3, queues[0].Config().DefaultMaxAttempts)
}
