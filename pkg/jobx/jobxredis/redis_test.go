package jobxredis_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxtest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestStoreConformance(t *testing.T) {
	jobxtest.RunStoreSuite(t, func(t *testing.T, now func() time.Time) jobx.Store {
		_, rdb := newClient(t)
		return jobxredis.New(rdb, jobxredis.WithClock(now))
	})
}

func TestStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	clock := jobxtest.NewClock(jobxtest.Epoch)
	s := jobxredis.New(rdb, jobxredis.WithKeyPrefix("app"), jobxredis.WithClock(clock.Now))

	job := &jobx.Job{
		ID:          "j1",
		Queue:       "email",
		Name:        "send-email",
		Payload:     []byte(`{"to":"a@b.c"}`),
		Priority:    jobx.PriorityHigh,
		MaxAttempts: 3,
		Backoff:     jobx.ExponentialBackoff(2 * time.Second),
		AvailableAt: clock.Now(),
		CreatedAt:   clock.Now(),
	}
	require.NoError(t, s.Push(ctx, job))

	assert.True(t, mr.Exists("app:{email}:job:j1"))
	assert.Equal(t, "send-email", mr.HGet("app:{email}:job:j1", "name"))
	assert.Equal(t, "waiting", mr.HGet("app:{email}:job:j1", "state"))
	assert.Equal(t, "2000", mr.HGet("app:{email}:job:j1", "backoffDelay"))
	assert.Equal(t, `{"to":"a@b.c"}`, mr.HGet("app:{email}:job:j1", "payload"))

	members, err := mr.ZMembers("app:{email}:waiting")
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000000000001:j1"}, members)

	require.NoError(t, s.Pause(ctx, "email"))
	assert.True(t, mr.Exists("app:{email}:paused"))
	require.NoError(t, s.Resume(ctx, "email"))
	assert.False(t, mr.Exists("app:{email}:paused"))

	leased, err := s.LeasePop(ctx, "email", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, jobx.ExponentialBackoff(2*time.Second), leased.Backoff)

	score, err := mr.ZScore("app:{email}:active", "j1")
	require.NoError(t, err)
	assert.Equal(t, float64(jobxtest.Epoch.Add(30*time.Second).UnixMilli()), score)
}

func TestStore_UnavailableIsTransient(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	s := jobxredis.New(rdb)
	mr.Close()

	_, err := s.LeasePop(ctx, "email", time.Second)
	require.Error(t, err)
	assert.True(t, jobx.IsTransient(err))

	_, err = s.Stats(ctx, "email")
	assert.True(t, jobx.IsTransient(err))
}

func TestStore_CorruptHashIsNotTransient(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	s := jobxredis.New(rdb)

	mr.HSet("jobx:{email}:job:bad", "id", "bad", "priority", "not-a-number")

	_, err := s.Get(ctx, "email", "bad")
	require.Error(t, err)
	assert.False(t, jobx.IsTransient(err))
}
