// Package jobs provides a Redis-backed task queue and a polling worker pool.
//
// Layout under the queue name N:
//   - N:pending     LIST of job ids ready to run (LPUSH / RPOP, FIFO)
//   - N:processing  ZSET of claimed job ids scored by claim time (ms)
//   - N:delayed     ZSET of job ids waiting for a retry, scored by due time (ms)
//   - N:job:<id>    JSON document of the job
//   - N:stats:*     completed / failed counters
//
// Semantics:
//   - Atomic claim of a batch (Lua), so concurrent workers never share a job
//   - Exponential backoff for retries (base * attempt^2, capped)
//   - Stale job recovery for jobs whose worker died mid-flight, counted as an attempt
//   - Finished jobs keep their result for ResultTTL
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobStatus represents the state of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ErrJobNotFound is returned when a job document does not exist (or expired).
var ErrJobNotFound = errors.New("job not found")

// Job is the stored form of a task.
type Job struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       JobStatus       `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Decode unmarshals the payload into dest.
func (j *Job) Decode(dest any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	return json.Unmarshal(j.Payload, dest)
}

// QueueConfig contains configuration for a job queue
type QueueConfig struct {
	// Name is the Redis key prefix (e.g. "medgraph:tasks")
	Name string
	// MaxAttempts is the maximum number of attempts (0 = unlimited)
	MaxAttempts int
	// BaseRetryDelay is the base delay for retries (default: 60s)
	BaseRetryDelay time.Duration
	// MaxRetryDelay caps the retry delay (default: 1h)
	MaxRetryDelay time.Duration
	// BatchSize is the default number of jobs to dequeue at once (default: 10)
	BatchSize int
	// ResultTTL is how long finished jobs stay readable (default: 24h)
	ResultTTL time.Duration
}

// DefaultQueueConfig returns a QueueConfig with sensible defaults
func DefaultQueueConfig(name string) QueueConfig {
	return QueueConfig{
		Name:           name,
		MaxAttempts:    0, // unlimited
		BaseRetryDelay: 60 * time.Second,
		MaxRetryDelay:  time.Hour,
		BatchSize:      10,
		ResultTTL:      24 * time.Hour,
	}
}

var (
	// KEYS: pending, processing  ARGV: count, now_ms
	claimScript = redis.NewScript(`
local ids = {}
for i = 1, tonumber(ARGV[1]) do
  local id = redis.call('RPOP', KEYS[1])
  if not id then break end
  redis.call('ZADD', KEYS[2], ARGV[2], id)
  table.insert(ids, id)
end
return ids
`)

	// KEYS: source zset, pending  ARGV: max score
	moveDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return ids
`)
)

// Queue provides job queue operations on Redis.
type Queue struct {
	client *redis.Client
	config QueueConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewQueue creates a new job queue with the given configuration
func NewQueue(client *redis.Client, config QueueConfig, log *slog.Logger) *Queue {
	if config.Name == "" {
		config.Name = "jobs"
	}
	if config.BaseRetryDelay == 0 {
		config.BaseRetryDelay = 60 * time.Second
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.ResultTTL == 0 {
		config.ResultTTL = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}

	return &Queue{
		client: client,
		config: config,
		log:    log.With(slog.String("queue", config.Name)),
		now:    time.Now,
	}
}

// Name returns the queue key prefix.
func (q *Queue) Name() string { return q.config.Name }

// Ping checks broker connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) pendingKey() string    { return q.config.Name + ":pending" }
func (q *Queue) processingKey() string { return q.config.Name + ":processing" }
func (q *Queue) delayedKey() string    { return q.config.Name + ":delayed" }
func (q *Queue) jobKey(id string) string {
	return q.config.Name + ":job:" + id
}
func (q *Queue) statKey(s JobStatus) string { return q.config.Name + ":stats:" + string(s) }

// Enqueue stores a new pending job of the given kind.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	job := &Job{
		ID:        id.String(),
		Kind:      kind,
		Payload:   raw,
		Status:    StatusPending,
		CreatedAt: q.now().UTC(),
	}
	doc, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.jobKey(job.ID), doc, 0)
		pipe.LPush(ctx, q.pendingKey(), job.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue failed: %w", err)
	}

	q.log.Debug("job enqueued", slog.String("job_id", job.ID), slog.String("kind", kind))
	return job, nil
}

// Dequeue atomically claims up to batchSize jobs and marks them processing.
// Ids whose document has vanished are dropped from the processing set.
func (q *Queue) Dequeue(ctx context.Context, batchSize int) ([]*Job, error) {
	if batchSize <= 0 {
		batchSize = q.config.BatchSize
	}

	now := q.now()
	ids, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.processingKey()},
		batchSize, now.UnixMilli(),
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dequeue failed: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			q.log.Warn("dropping claimed job without document", slog.String("job_id", id))
			q.client.ZRem(ctx, q.processingKey(), id)
			continue
		}
		if err != nil {
			return jobs, err
		}
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			// finished by a slow worker after stale recovery requeued it
			q.log.Debug("dropping finished job", slog.String("job_id", id), slog.String("status", string(job.Status)))
			q.client.ZRem(ctx, q.processingKey(), id)
			continue
		}

		started := now.UTC()
		job.Status = StatusProcessing
		job.StartedAt = &started
		job.ScheduledAt = nil
		if err := q.save(ctx, q.client, job, 0); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Get loads a job document.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) save(ctx context.Context, c redis.Cmdable, job *Job, ttl time.Duration) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := c.Set(ctx, q.jobKey(job.ID), doc, ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// MarkCompleted stores the result and retires the job.
func (q *Queue) MarkCompleted(ctx context.Context, job *Job, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result of job %s: %w", job.ID, err)
	}

	done := q.now().UTC()
	job.Status = StatusCompleted
	job.Result = raw
	job.LastError = ""
	job.CompletedAt = &done

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := q.save(ctx, pipe, job, q.config.ResultTTL); err != nil {
			return err
		}
		pipe.ZRem(ctx, q.processingKey(), job.ID)
		pipe.Incr(ctx, q.statKey(StatusCompleted))
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark completed failed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The job is rescheduled with
// exponential backoff unless MaxAttempts is reached, in which case it is
// permanently failed. It reports whether a retry was scheduled.
func (q *Queue) MarkFailed(ctx context.Context, job *Job, errMsg string) (bool, error) {
	attempt := job.AttemptCount + 1

	if q.config.MaxAttempts > 0 && attempt >= q.config.MaxAttempts {
		if err := q.fail(ctx, job, attempt, errMsg); err != nil {
			return false, err
		}
		q.log.Warn("job permanently failed after max attempts",
			slog.String("job_id", job.ID),
			slog.Int("attempts", attempt),
			slog.String("error", errMsg))
		return false, nil
	}

	delay := q.retryDelay(attempt)
	due := q.now().Add(delay)
	dueUTC := due.UTC()

	job.Status = StatusPending
	job.AttemptCount = attempt
	job.LastError = truncateError(errMsg)
	job.StartedAt = nil
	job.ScheduledAt = &dueUTC

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := q.save(ctx, pipe, job, 0); err != nil {
			return err
		}
		pipe.ZRem(ctx, q.processingKey(), job.ID)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark failed (retry) failed: %w", err)
	}

	q.log.Debug("job scheduled for retry",
		slog.String("job_id", job.ID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
	return true, nil
}

// MarkDead permanently fails a job regardless of remaining attempts.
func (q *Queue) MarkDead(ctx context.Context, job *Job, errMsg string) error {
	return q.fail(ctx, job, job.AttemptCount+1, errMsg)
}

func (q *Queue) fail(ctx context.Context, job *Job, attempt int, errMsg string) error {
	done := q.now().UTC()
	job.Status = StatusFailed
	job.AttemptCount = attempt
	job.LastError = truncateError(errMsg)
	job.CompletedAt = &done

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := q.save(ctx, pipe, job, q.config.ResultTTL); err != nil {
			return err
		}
		pipe.ZRem(ctx, q.processingKey(), job.ID)
		pipe.Incr(ctx, q.statKey(StatusFailed))
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark failed (permanent) failed: %w", err)
	}
	return nil
}

// retryDelay is base * attempt^2, capped at MaxRetryDelay.
func (q *Queue) retryDelay(attempt int) time.Duration {
	delay := math.Min(
		float64(q.config.MaxRetryDelay),
		float64(q.config.BaseRetryDelay)*float64(attempt)*float64(attempt),
	)
	return time.Duration(delay)
}

// PromoteDue moves delayed jobs whose retry time has come back to pending.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	ids, err := moveDueScript.Run(ctx, q.client,
		[]string{q.delayedKey(), q.pendingKey()},
		q.now().UnixMilli(),
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("promote delayed jobs failed: %w", err)
	}
	return len(ids), nil
}

// RecoverStaleJobs requeues jobs that have been processing for longer than
// threshold. This happens when a worker dies while jobs are in flight.
// Recovery counts as an attempt, so a job that keeps killing its worker is
// failed once MaxAttempts is reached. Returns the number of jobs recovered.
func (q *Queue) RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	cutoff := q.now().Add(-threshold).UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs failed: %w", err)
	}

	recovered, failed := 0, 0
	for _, id := range ids {
		status, err := q.recoverStale(ctx, id, cutoff)
		if errors.Is(err, redis.TxFailedErr) {
			// the worker finished or failed it meanwhile
			continue
		}
		if err != nil {
			return recovered + failed, err
		}
		switch status {
		case StatusPending:
			recovered++
		case StatusFailed:
			failed++
		}
	}

	if recovered+failed > 0 {
		q.log.Warn("recovered stale jobs",
			slog.Int("requeued", recovered),
			slog.Int("failed", failed),
			slog.Duration("threshold", threshold))
	}
	return recovered + failed, nil
}

// recoverStale moves one stale job out of processing. The job document is
// watched, so a concurrent MarkCompleted or MarkFailed aborts the move with
// redis.TxFailedErr. It returns the job's new status, or "" when the job
// no longer needed recovery.
func (q *Queue) recoverStale(ctx context.Context, id string, cutoff int64) (JobStatus, error) {
	var status JobStatus
	err := q.client.Watch(ctx, func(tx *redis.Tx) error {
		score, err := tx.ZScore(ctx, q.processingKey(), id).Result()
		if errors.Is(err, redis.Nil) || (err == nil && int64(score) > cutoff) {
			return nil
		}
		if err != nil {
			return err
		}

		data, err := tx.Get(ctx, q.jobKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return tx.ZRem(ctx, q.processingKey(), id).Err()
		}
		if err != nil {
			return err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if job.Status != StatusProcessing {
			return tx.ZRem(ctx, q.processingKey(), id).Err()
		}

		attempt := job.AttemptCount + 1
		job.AttemptCount = attempt
		job.LastError = truncateError(fmt.Sprintf("worker did not finish within the stale threshold (attempt %d)", attempt))
		job.StartedAt = nil

		exhausted := q.config.MaxAttempts > 0 && attempt >= q.config.MaxAttempts
		ttl := time.Duration(0)
		if exhausted {
			done := q.now().UTC()
			job.Status = StatusFailed
			job.CompletedAt = &done
			ttl = q.config.ResultTTL
		} else {
			job.Status = StatusPending
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := q.save(ctx, pipe, &job, ttl); err != nil {
				return err
			}
			pipe.ZRem(ctx, q.processingKey(), id)
			if exhausted {
				pipe.Incr(ctx, q.statKey(StatusFailed))
			} else {
				pipe.LPush(ctx, q.pendingKey(), id)
			}
			return nil
		})
		if err == nil {
			status = job.Status
		}
		return err
	}, q.jobKey(id))
	return status, err
}

// Stats represents queue statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Delayed    int64 `json:"delayed"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	var (
		pending, delayed, processing *redis.IntCmd
		completed, failed            *redis.StringCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, q.pendingKey())
		delayed = pipe.ZCard(ctx, q.delayedKey())
		processing = pipe.ZCard(ctx, q.processingKey())
		completed = pipe.Get(ctx, q.statKey(StatusCompleted))
		failed = pipe.Get(ctx, q.statKey(StatusFailed))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get stats failed: %w", err)
	}

	stats := &Stats{
		Pending:    pending.Val(),
		Delayed:    delayed.Val(),
		Processing: processing.Val(),
	}
	stats.Completed, _ = completed.Int64()
	stats.Failed, _ = failed.Int64()
	return stats, nil
}

// truncateError truncates an error message to 500 characters
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
