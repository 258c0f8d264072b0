package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/logger"
)

// Task names.
const (
	TaskStaleJobRecovery = "stale_job_recovery"
	TaskQueueMetrics     = "queue_metrics"
)

// StaleJobRecoveryTask requeues tasks whose worker died mid-flight
type StaleJobRecoveryTask struct {
	queue     *jobs.Queue
	threshold time.Duration
	log       *slog.Logger
}

// NewStaleJobRecoveryTask creates a new stale job recovery task
func NewStaleJobRecoveryTask(queue *jobs.Queue, threshold time.Duration, log *slog.Logger) *StaleJobRecoveryTask {
	return &StaleJobRecoveryTask{
		queue:     queue,
		threshold: threshold,
		log:       log.With(logger.Scope("scheduler.stale_jobs")),
	}
}

// Run executes the stale job recovery
func (t *StaleJobRecoveryTask) Run(ctx context.Context) error {
	n, err := t.queue.RecoverStaleJobs(ctx, t.threshold)
	if err != nil {
		return err
	}
	if n > 0 {
		t.log.Info("requeued stale tasks",
			slog.Int("count", n),
			slog.Duration("threshold", t.threshold))
	}
	return nil
}

// QueueMetricsTask publishes queue depth to the jobs_queue_depth gauge
type QueueMetricsTask struct {
	queue *jobs.Queue
	log   *slog.Logger
}

// NewQueueMetricsTask creates a new queue metrics task
func NewQueueMetricsTask(queue *jobs.Queue, log *slog.Logger) *QueueMetricsTask {
	return &QueueMetricsTask{
		queue: queue,
		log:   log.With(logger.Scope("scheduler.queue_metrics")),
	}
}

// Run refreshes the gauges
func (t *QueueMetricsTask) Run(ctx context.Context) error {
	stats, err := jobs.RefreshDepthGauges(ctx, t.queue)
	if err != nil {
		return err
	}
	t.log.Debug("queue depth",
		slog.Int64("pending", stats.Pending),
		slog.Int64("delayed", stats.Delayed),
		slog.Int64("processing", stats.Processing))
	return nil
}
