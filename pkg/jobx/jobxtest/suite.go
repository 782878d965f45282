package jobxtest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/errx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Epoch is the start time of every suite clock.
var Epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

const (
	queue = "email"
	lease = 30 * time.Second
)

// Factory builds a fresh, empty store that reads time from now.
type Factory func(t *testing.T, now func() time.Time) jobx.Store

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *Clock
	store jobx.Store
}

// RunStoreSuite checks the store contract: atomic leasing, ordering,
// lease ownership, reclaim, retention and the admin operations.
func RunStoreSuite(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(h *harness)
	}{
		{"PushAndGet", testPushAndGet},
		{"PushDelayed", testPushDelayed},
		{"DuplicateID", testDuplicateID},
		{"PriorityThenFIFO", testPriorityThenFIFO},
		{"NoDoubleLease", testNoDoubleLease},
		{"CompleteRequiresLease", testCompleteRequiresLease},
		{"FailRetrySchedulesDelayed", testFailRetry},
		{"FailTerminal", testFailTerminal},
		{"RenewLease", testRenewLease},
		{"ReclaimIdempotent", testReclaimIdempotent},
		{"MaxStalledCount", testMaxStalled},
		{"KeepCount", testKeepCount},
		{"SweepRetention", testSweepRetention},
		{"RequeueOnlyFailed", testRequeue},
		{"PauseBlocksLeasing", testPause},
		{"ListOrderAndRange", testList},
		{"EmptyQueue", testEmpty},
		{"RemoveActiveJob", testRemoveActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(Epoch)
			tt.fn(&harness{
				t:     t,
				ctx:   context.Background(),
				clock: clock,
				store: factory(t, clock.Now),
			})
		})
	}
}

func (h *harness) job(name string, priority int) *jobx.Job {
	return &jobx.Job{
		ID:          uuid.New().String(),
		Queue:       queue,
		Name:        name,
		Payload:     json.RawMessage(`{"to":"user@example.com","n":1}`),
		Priority:    priority,
		MaxAttempts: 3,
		Backoff:     jobx.FixedBackoff(time.Second),
		AvailableAt: h.clock.Now(),
		CreatedAt:   h.clock.Now(),
	}
}

func (h *harness) push(name string, priority int) *jobx.Job {
	h.t.Helper()
	j := h.job(name, priority)
	require.NoError(h.t, h.store.Push(h.ctx, j))
	return j
}

func (h *harness) lease() *jobx.Job {
	h.t.Helper()
	j, err := h.store.LeasePop(h.ctx, queue, lease)
	require.NoError(h.t, err)
	require.NotNil(h.t, j, "expected a job to be leased")
	return j
}

func (h *harness) noLease() {
	h.t.Helper()
	j, err := h.store.LeasePop(h.ctx, queue, lease)
	require.NoError(h.t, err)
	require.Nil(h.t, j, "expected no eligible job")
}

func (h *harness) get(id string) *jobx.Job {
	h.t.Helper()
	j, err := h.store.Get(h.ctx, queue, id)
	require.NoError(h.t, err)
	return j
}

func (h *harness) stats() jobx.Stats {
	h.t.Helper()
	st, err := h.store.Stats(h.ctx, queue)
	require.NoError(h.t, err)
	return st
}

func testPushAndGet(h *harness) {
	in := h.push("send-email", jobx.PriorityHigh)
	assert.Equal(h.t, jobx.StateWaiting, in.State)

	got := h.get(in.ID)
	assert.Equal(h.t, in.ID, got.ID)
	assert.Equal(h.t, queue, got.Queue)
	assert.Equal(h.t, "send-email", got.Name)
	assert.JSONEq(h.t, string(in.Payload), string(got.Payload))
	assert.Equal(h.t, jobx.PriorityHigh, got.Priority)
	assert.Equal(h.t, 3, got.MaxAttempts)
	assert.Equal(h.t, jobx.FixedBackoff(time.Second), got.Backoff)
	assert.Equal(h.t, jobx.StateWaiting, got.State)
	assert.Equal(h.t, 0, got.AttemptsMade)
	assert.True(h.t, got.CreatedAt.Equal(Epoch))

	_, err := h.store.Get(h.ctx, queue, "missing")
	assert.True(h.t, jobx.IsNotFound(err))
}

func testPushDelayed(h *harness) {
	j := h.job("send-email", jobx.PriorityNormal)
	j.AvailableAt = h.clock.Now().Add(5 * time.Second)
	require.NoError(h.t, h.store.Push(h.ctx, j))
	assert.Equal(h.t, jobx.StateDelayed, j.State)
	assert.Equal(h.t, int64(1), h.stats().Delayed)

	h.noLease()

	h.clock.Advance(5 * time.Second)
	got := h.lease()
	assert.Equal(h.t, j.ID, got.ID)
	assert.Equal(h.t, jobx.StateActive, got.State)
}

func testDuplicateID(h *harness) {
	j := h.push("send-email", jobx.PriorityNormal)

	dup := h.job("send-email", jobx.PriorityNormal)
	dup.ID = j.ID
	err := h.store.Push(h.ctx, dup)
	require.Error(h.t, err)
	assert.True(h.t, jobx.IsDuplicate(err))
	assert.Equal(h.t, int64(1), h.stats().Waiting)
}

func testPriorityThenFIFO(h *harness) {
	a := h.push("a", 10)
	b := h.push("b", 100)
	c := h.push("c", 10)
	d := h.push("d", 100)

	var order []string
	for range 4 {
		order = append(order, h.lease().ID)
	}
	assert.Equal(h.t, []string{b.ID, d.ID, a.ID, c.ID}, order)
	h.noLease()
}

func testNoDoubleLease(h *harness) {
	const jobs, workers = 40, 8
	for range jobs {
		h.push("send-email", jobx.PriorityNormal)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := h.store.LeasePop(h.ctx, queue, lease)
				if err != nil || j == nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(h.t, seen, jobs)
	for id, n := range seen {
		assert.Equal(h.t, 1, n, "job %s leased %d times", id, n)
	}
	assert.Equal(h.t, int64(jobs), h.stats().Active)
}

func testCompleteRequiresLease(h *harness) {
	h.push("send-email", jobx.PriorityNormal)
	leased := h.lease()
	require.NotEmpty(h.t, leased.LeaseToken)
	assert.True(h.t, leased.LeaseExpiresAt.Equal(Epoch.Add(lease)))

	stale := *leased
	stale.LeaseToken = "not-the-holder"
	err := h.store.Complete(h.ctx, &stale, -1)
	assert.True(h.t, jobx.IsLeaseLost(err))

	h.clock.Advance(time.Second)
	require.NoError(h.t, h.store.Complete(h.ctx, leased, -1))

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateCompleted, got.State)
	assert.True(h.t, got.FinishedAt.Equal(Epoch.Add(time.Second)))
	assert.Equal(h.t, 0, got.AttemptsMade)

	err = h.store.Complete(h.ctx, leased, -1)
	assert.True(h.t, jobx.IsLeaseLost(err), "a lease can be used only once")
}

func testFailRetry(h *harness) {
	h.push("send-email", jobx.PriorityNormal)
	leased := h.lease()

	retryAt := h.clock.Now().Add(2 * time.Second)
	require.NoError(h.t, h.store.Fail(h.ctx, leased, jobx.FailOutcome{
		Retry:        true,
		AttemptsMade: 1,
		AvailableAt:  retryAt,
		LastError:    "smtp unavailable",
	}))

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateDelayed, got.State)
	assert.Equal(h.t, 1, got.AttemptsMade)
	assert.Equal(h.t, "smtp unavailable", got.LastError)
	assert.True(h.t, got.AvailableAt.Equal(retryAt))

	h.noLease()
	h.clock.Advance(2 * time.Second)
	again := h.lease()
	assert.Equal(h.t, leased.ID, again.ID)
	assert.NotEqual(h.t, leased.LeaseToken, again.LeaseToken)
	assert.Equal(h.t, 1, again.AttemptsMade)
}

func testFailTerminal(h *harness) {
	h.push("send-email", jobx.PriorityNormal)
	leased := h.lease()

	require.NoError(h.t, h.store.Fail(h.ctx, leased, jobx.FailOutcome{
		AttemptsMade: 3,
		LastError:    "boom",
		Keep:         -1,
	}))

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateFailed, got.State)
	assert.Equal(h.t, 3, got.AttemptsMade)
	assert.Equal(h.t, "boom", got.LastError)
	assert.False(h.t, got.FinishedAt.IsZero())
	assert.Equal(h.t, int64(1), h.stats().Failed)
}

func testRenewLease(h *harness) {
	h.push("process-file", jobx.PriorityNormal)
	leased := h.lease()

	h.clock.Advance(20 * time.Second)
	require.NoError(h.t, h.store.RenewLease(h.ctx, leased, lease, 40))
	h.clock.Advance(20 * time.Second)

	res, err := h.store.ReclaimExpiredLeases(h.ctx, queue, 0, -1)
	require.NoError(h.t, err)
	assert.Equal(h.t, jobx.ReclaimResult{}, res)

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateActive, got.State)
	assert.Equal(h.t, 40, got.Progress)
	assert.True(h.t, got.LeaseExpiresAt.Equal(Epoch.Add(20*time.Second+lease)))

	require.NoError(h.t, h.store.RenewLease(h.ctx, leased, lease, -1))
	assert.Equal(h.t, 40, h.get(leased.ID).Progress)

	stale := *leased
	stale.LeaseToken = "other"
	assert.True(h.t, jobx.IsLeaseLost(h.store.RenewLease(h.ctx, &stale, lease, 50)))
}

func testReclaimIdempotent(h *harness) {
	h.push("send-email", jobx.PriorityNormal)
	leased := h.lease()

	res, err := h.store.ReclaimExpiredLeases(h.ctx, queue, 0, -1)
	require.NoError(h.t, err)
	assert.Equal(h.t, 0, res.Requeued, "unexpired lease must not be reclaimed")

	h.clock.Advance(lease + time.Second)

	results := make([]jobx.ReclaimResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := h.store.ReclaimExpiredLeases(h.ctx, queue, 0, -1)
			assert.NoError(h.t, err)
			results[i] = r
		}()
	}
	wg.Wait()
	assert.Equal(h.t, 1, results[0].Requeued+results[1].Requeued)

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateWaiting, got.State)
	assert.Equal(h.t, 0, got.AttemptsMade, "reclaim does not consume an attempt")
	assert.Equal(h.t, 1, got.StalledCount)

	assert.True(h.t, jobx.IsLeaseLost(h.store.Complete(h.ctx, leased, -1)))
}

func testMaxStalled(h *harness) {
	h.push("generate-report", jobx.PriorityNormal)

	h.lease()
	h.clock.Advance(lease + time.Second)
	res, err := h.store.ReclaimExpiredLeases(h.ctx, queue, 1, -1)
	require.NoError(h.t, err)
	assert.Equal(h.t, jobx.ReclaimResult{Requeued: 1}, res)

	leased := h.lease()
	h.clock.Advance(lease + time.Second)
	res, err = h.store.ReclaimExpiredLeases(h.ctx, queue, 1, -1)
	require.NoError(h.t, err)
	assert.Equal(h.t, jobx.ReclaimResult{Failed: 1}, res)

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateFailed, got.State)
	assert.Equal(h.t, 2, got.StalledCount)
	assert.Equal(h.t, 0, got.AttemptsMade)
	assert.Equal(h.t, jobx.ErrStalledLimit.Message, got.LastError)

	// keepFailed=0 removes a job failed by the stalled limit immediately.
	h.push("generate-report", jobx.PriorityNormal)
	h.lease()
	h.clock.Advance(lease + time.Second)
	_, err = h.store.ReclaimExpiredLeases(h.ctx, queue, 1, 0)
	require.NoError(h.t, err)

	dropped := h.lease()
	h.clock.Advance(lease + time.Second)
	res, err = h.store.ReclaimExpiredLeases(h.ctx, queue, 1, 0)
	require.NoError(h.t, err)
	assert.Equal(h.t, jobx.ReclaimResult{Failed: 1}, res)

	_, err = h.store.Get(h.ctx, queue, dropped.ID)
	assert.True(h.t, jobx.IsNotFound(err))
	_, err = h.store.Get(h.ctx, queue, leased.ID)
	assert.True(h.t, jobx.IsNotFound(err), "trim keeps zero failed jobs")
	assert.Equal(h.t, int64(0), h.stats().Failed)
}

func testKeepCount(h *harness) {
	ids := make([]string, 0, 3)
	for range 3 {
		h.push("send-email", jobx.PriorityNormal)
		leased := h.lease()
		h.clock.Advance(time.Second)
		require.NoError(h.t, h.store.Complete(h.ctx, leased, 2))
		ids = append(ids, leased.ID)
	}

	assert.Equal(h.t, int64(2), h.stats().Completed)
	_, err := h.store.Get(h.ctx, queue, ids[0])
	assert.True(h.t, jobx.IsNotFound(err), "oldest completed job is trimmed")
	h.get(ids[1])
	h.get(ids[2])

	h.push("send-email", jobx.PriorityNormal)
	leased := h.lease()
	require.NoError(h.t, h.store.Fail(h.ctx, leased, jobx.FailOutcome{AttemptsMade: 1, LastError: "x", Keep: 0}))
	_, err = h.store.Get(h.ctx, queue, leased.ID)
	assert.True(h.t, jobx.IsNotFound(err), "keep=0 removes the job immediately")
	assert.Equal(h.t, int64(0), h.stats().Failed)
}

func testSweepRetention(h *harness) {
	h.push("send-email", jobx.PriorityNormal)
	old := h.lease()
	require.NoError(h.t, h.store.Complete(h.ctx, old, -1))

	h.clock.Advance(10 * 24 * time.Hour)
	h.push("send-email", jobx.PriorityNormal)
	young := h.lease()
	require.NoError(h.t, h.store.Complete(h.ctx, young, -1))

	cutoff := h.clock.Now().Add(-7 * 24 * time.Hour)
	removed, err := h.store.Sweep(h.ctx, queue, jobx.StateCompleted, cutoff, 100)
	require.NoError(h.t, err)
	assert.Equal(h.t, 1, removed)

	_, err = h.store.Get(h.ctx, queue, old.ID)
	assert.True(h.t, jobx.IsNotFound(err))
	h.get(young.ID)

	removed, err = h.store.Sweep(h.ctx, queue, jobx.StateFailed, h.clock.Now(), 100)
	require.NoError(h.t, err)
	assert.Equal(h.t, 0, removed)

	_, err = h.store.Sweep(h.ctx, queue, jobx.StateWaiting, h.clock.Now(), 100)
	assert.True(h.t, errx.IsCode(err, jobx.ErrInvalidState.Code))
}

func testRequeue(h *harness) {
	waiting := h.push("send-email", jobx.PriorityNormal)
	err := h.store.Requeue(h.ctx, queue, waiting.ID)
	assert.True(h.t, errx.IsCode(err, jobx.ErrInvalidState.Code))

	leased := h.lease()
	require.NoError(h.t, h.store.Fail(h.ctx, leased, jobx.FailOutcome{AttemptsMade: 3, LastError: "boom", Keep: -1}))
	require.NoError(h.t, h.store.Requeue(h.ctx, queue, leased.ID))

	got := h.get(leased.ID)
	assert.Equal(h.t, jobx.StateWaiting, got.State)
	assert.Equal(h.t, 0, got.AttemptsMade)
	assert.Equal(h.t, "boom", got.LastError)

	again := h.lease()
	assert.Equal(h.t, leased.ID, again.ID)

	assert.True(h.t, jobx.IsNotFound(h.store.Requeue(h.ctx, queue, "missing")))
}

func testPause(h *harness) {
	require.NoError(h.t, h.store.Pause(h.ctx, queue))
	j := h.push("send-email", jobx.PriorityNormal)

	h.noLease()
	st := h.stats()
	assert.Equal(h.t, int64(1), st.Waiting)
	assert.Equal(h.t, int64(1), st.Paused)

	require.NoError(h.t, h.store.Resume(h.ctx, queue))
	assert.Equal(h.t, int64(0), h.stats().Paused)
	assert.Equal(h.t, j.ID, h.lease().ID)
}

func testList(h *harness) {
	low := h.push("low", jobx.PriorityLow)
	high := h.push("high", jobx.PriorityHigh)
	normal := h.push("normal", jobx.PriorityNormal)

	delayed := h.job("later", jobx.PriorityNormal)
	delayed.AvailableAt = h.clock.Now().Add(time.Hour)
	require.NoError(h.t, h.store.Push(h.ctx, delayed))

	jobs, err := h.store.List(h.ctx, queue, []jobx.State{jobx.StateWaiting}, 0, -1)
	require.NoError(h.t, err)
	assert.Equal(h.t, []string{high.ID, normal.ID, low.ID}, ids(jobs))

	jobs, err = h.store.List(h.ctx, queue, []jobx.State{jobx.StateWaiting}, 1, 1)
	require.NoError(h.t, err)
	assert.Equal(h.t, []string{normal.ID}, ids(jobs))

	jobs, err = h.store.List(h.ctx, queue, []jobx.State{jobx.StateWaiting, jobx.StateDelayed}, 0, 0)
	require.NoError(h.t, err)
	assert.Equal(h.t, []string{high.ID, delayed.ID}, ids(jobs))

	for range 2 {
		leased := h.lease()
		h.clock.Advance(time.Second)
		require.NoError(h.t, h.store.Complete(h.ctx, leased, -1))
	}
	jobs, err = h.store.List(h.ctx, queue, []jobx.State{jobx.StateCompleted}, 0, -1)
	require.NoError(h.t, err)
	assert.Equal(h.t, []string{normal.ID, high.ID}, ids(jobs), "terminal states are listed newest first")

	jobs, err = h.store.List(h.ctx, queue, []jobx.State{jobx.StateFailed}, 0, -1)
	require.NoError(h.t, err)
	assert.Empty(h.t, jobs)
}

func testEmpty(h *harness) {
	h.push("a", jobx.PriorityNormal)
	h.push("b", jobx.PriorityNormal)
	d := h.job("c", jobx.PriorityNormal)
	d.AvailableAt = h.clock.Now().Add(time.Minute)
	require.NoError(h.t, h.store.Push(h.ctx, d))
	h.push("d", jobx.PriorityNormal)
	active := h.lease()

	removed, err := h.store.Empty(h.ctx, queue)
	require.NoError(h.t, err)
	assert.Equal(h.t, 3, removed)

	st := h.stats()
	assert.Equal(h.t, jobx.Stats{Active: 1}, st)
	assert.Equal(h.t, jobx.StateActive, h.get(active.ID).State)
}

func testRemoveActive(h *harness) {
	h.push("send-email", jobx.PriorityNormal)
	leased := h.lease()

	require.NoError(h.t, h.store.Remove(h.ctx, queue, leased.ID))
	assert.True(h.t, jobx.IsNotFound(h.store.Remove(h.ctx, queue, leased.ID)))
	assert.True(h.t, jobx.IsLeaseLost(h.store.Complete(h.ctx, leased, -1)))
	assert.Equal(h.t, jobx.Stats{}, h.stats())
}

func ids(jobs []*jobx.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
