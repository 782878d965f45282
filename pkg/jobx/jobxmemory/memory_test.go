package jobxmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreConformance(t *testing.T) {
	jobxtest.RunStoreSuite(t, func(t *testing.T, now func() time.Time) jobx.Store {
		return jobxmemory.New(jobxmemory.WithClock(now))
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := jobxmemory.New()

	j := &jobx.Job{ID: "1", Queue: "data", Name: "process-data", Payload: []byte(`{"a":1}`), MaxAttempts: 1}
	require.NoError(t, s.Push(ctx, j))
	j.Payload[2] = 'b'

	got, err := s.Get(ctx, "data", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Payload))

	got.Priority = 99
	again, err := s.Get(ctx, "data", "1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Priority)
}

func TestStore_QueuesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := jobxmemory.New()

	require.NoError(t, s.Push(ctx, &jobx.Job{ID: "1", Queue: "email", Name: "send-email"}))
	require.NoError(t, s.Push(ctx, &jobx.Job{ID: "1", Queue: "report", Name: "generate-report"}))
	require.NoError(t, s.Pause(ctx, "email"))

	j, err := s.LeasePop(ctx, "email", time.Second)
	require.NoError(t, err)
	assert.Nil(t, j)

	j, err = s.LeasePop(ctx, "report", time.Second)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, "report", j.Queue)
}
