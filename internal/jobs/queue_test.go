package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T, cfg QueueConfig) (*Queue, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(client, cfg, nil)
	q.now = clock.now
	return q, mr, clock
}

func TestTruncateError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{name: "short message", msg: "short error", want: "short error"},
		{name: "exactly 500 characters", msg: strings.Repeat("a", 500), want: strings.Repeat("a", 500)},
		{name: "501 characters truncated to 500", msg: strings.Repeat("a", 501), want: strings.Repeat("a", 500)},
		{name: "long message truncated", msg: strings.Repeat("b", 1000), want: strings.Repeat("b", 500)},
		{name: "empty string", msg: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateError(tt.msg)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 500)
		})
	}
}

func TestDefaultQueueConfig(t *testing.T) {
	config := DefaultQueueConfig("medgraph:test")

	assert.Equal(t, "medgraph:test", config.Name)
	assert.Equal(t, 0, config.MaxAttempts) // unlimited by default
	assert.Equal(t, 60*time.Second, config.BaseRetryDelay)
	assert.Equal(t, time.Hour, config.MaxRetryDelay)
	assert.Equal(t, 10, config.BatchSize)
	assert.Equal(t, 24*time.Hour, config.ResultTTL)
}

func TestNewQueue_Defaults(t *testing.T) {
	q := NewQueue(nil, QueueConfig{}, nil)

	assert.Equal(t, "jobs", q.Name())
	assert.Equal(t, 60*time.Second, q.config.BaseRetryDelay)
	assert.Equal(t, time.Hour, q.config.MaxRetryDelay)
	assert.Equal(t, 10, q.config.BatchSize)
	assert.Equal(t, 24*time.Hour, q.config.ResultTTL)
}

func TestRetryDelay(t *testing.T) {
	q := NewQueue(nil, QueueConfig{BaseRetryDelay: time.Minute, MaxRetryDelay: time.Hour}, nil)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 4 * time.Minute},
		{attempt: 3, want: 9 * time.Minute},
		{attempt: 7, want: 49 * time.Minute},
		{attempt: 8, want: time.Hour},
		{attempt: 100, want: time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, q.retryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newTestQueue(t, DefaultQueueConfig("test"))

	first, err := q.Enqueue(ctx, "graph.relate", map[string]string{"edge": "treats"})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "graph.relate", map[string]string{"edge": "causes"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, clock.t, first.CreatedAt)

	stored, err := q.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	jobs, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	// FIFO
	assert.Equal(t, first.ID, jobs[0].ID)
	assert.Equal(t, second.ID, jobs[1].ID)

	var payload map[string]string
	require.NoError(t, jobs[0].Decode(&payload))
	assert.Equal(t, "treats", payload["edge"])

	for _, job := range jobs {
		assert.Equal(t, StatusProcessing, job.Status)
		require.NotNil(t, job.StartedAt)
	}

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(2), stats.Processing)

	again, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueue_DequeueRespectsBatchSize(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, DefaultQueueConfig("test"))

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, "noop", i)
		require.NoError(t, err)
	}

	jobs, err := q.Dequeue(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(3), stats.Processing)
}

func TestQueue_DequeueDropsOrphanedIDs(t *testing.T) {
	ctx := context.Background()
	q, mr, _ := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := mr.Lpush("test:pending", "ghost")
	require.NoError(t, err)

	jobs, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestQueue_GetMissing(t *testing.T) {
	q, _, _ := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	q, mr, _ := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, q.MarkCompleted(ctx, jobs[0], map[string]int{"rows": 1}))

	stored, err := q.Get(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.JSONEq(t, `{"rows":1}`, string(stored.Result))
	assert.NotNil(t, stored.CompletedAt)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(1), stats.Completed)

	// the document expires after ResultTTL
	mr.FastForward(25 * time.Hour)
	_, err = q.Get(ctx, jobs[0].ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_MarkFailed_SchedulesRetry(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newTestQueue(t, QueueConfig{Name: "test", MaxAttempts: 3, BaseRetryDelay: time.Minute})

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	job := jobs[0]

	retrying, err := q.MarkFailed(ctx, job, "connection refused")
	require.NoError(t, err)
	assert.True(t, retrying)
	assert.Equal(t, 1, job.AttemptCount)

	stored, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, "connection refused", stored.LastError)
	require.NotNil(t, stored.ScheduledAt)
	assert.Equal(t, clock.t.Add(time.Minute), *stored.ScheduledAt)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
	assert.Equal(t, int64(0), stats.Processing)

	// not due yet
	n, err := q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.advance(time.Minute)
	n, err = q.PromoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	jobs, err = q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Equal(t, 1, jobs[0].AttemptCount)
	assert.Nil(t, jobs[0].ScheduledAt)
}

func TestQueue_MarkFailed_MaxAttempts(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, QueueConfig{Name: "test", MaxAttempts: 1})

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)

	retrying, err := q.MarkFailed(ctx, jobs[0], "boom")
	require.NoError(t, err)
	assert.False(t, retrying)

	stored, err := q.Get(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Equal(t, "boom", stored.LastError)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Delayed)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestQueue_MarkDead(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, q.MarkDead(ctx, jobs[0], strings.Repeat("x", 600)))

	stored, err := q.Get(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Len(t, stored.LastError, 500)
}

func TestQueue_RecoverStaleJobs(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	n, err := q.RecoverStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.advance(11 * time.Minute)
	n, err = q.RecoverStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := q.Get(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.StartedAt)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Contains(t, stored.LastError, "stale threshold")

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestQueue_RecoverStaleJobs_CountsAsAttempt(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newTestQueue(t, QueueConfig{Name: "test", MaxAttempts: 2})

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)

	for i, want := range []JobStatus{StatusPending, StatusFailed} {
		jobs, err := q.Dequeue(ctx, 1)
		require.NoError(t, err)
		require.Len(t, jobs, 1, "round %d", i)

		clock.advance(11 * time.Minute)
		n, err := q.RecoverStaleJobs(ctx, 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stored, err := q.Get(ctx, jobs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status, "round %d", i)
		assert.Equal(t, i+1, stored.AttemptCount)
	}

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestQueue_RecoverStaleJobs_SkipsFinishedJobs(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)

	clock.advance(11 * time.Minute)
	require.NoError(t, q.MarkCompleted(ctx, jobs[0], "ok"))

	n, err := q.RecoverStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := q.Get(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
}

func TestQueue_Dequeue_DropsJobFinishedAfterRecovery(t *testing.T) {
	ctx := context.Background()
	q, _, clock := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)
	slow, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)

	clock.advance(11 * time.Minute)
	n, err := q.RecoverStaleJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// the original worker finishes after its job was requeued
	require.NoError(t, q.MarkCompleted(ctx, slow[0], "ok"))

	jobs, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	stored, err := q.Get(ctx, slow[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(0), stats.Processing)
}

func TestRefreshDepthGauges(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, DefaultQueueConfig("test"))

	_, err := q.Enqueue(ctx, "noop", nil)
	require.NoError(t, err)

	stats, err := RefreshDepthGauges(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
}
