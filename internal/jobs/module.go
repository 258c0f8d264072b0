package jobs

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/pkg/logger"
	"github.com/medgraph/medgraph/pkg/syshealth"
	"github.com/medgraph/medgraph/pkg/telemetry"
)

// Module provides the task queue (on the Redis queue database) and the worker.
//
// Domain modules register their handlers with Worker.Handle from an fx.Invoke;
// invokes run before lifecycle hooks, so every handler is in place when the
// worker starts polling.
var Module = fx.Module("jobs",
	fx.Provide(
		NewRedisQueue,
		NewTaskWorker,
	),
	fx.Invoke(RegisterFailureReporting),
	fx.Invoke(RegisterWorkerLifecycle),
)

// NewRedisQueue connects to the queue database and builds the task queue.
func NewRedisQueue(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Queue, error) {
	log = log.With(logger.Scope("jobs"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.Dial(ctx, cfg.Redis, cfg.Redis.QueueDB)
	if err != nil {
		return nil, err
	}

	wc := cfg.Worker
	q := NewQueue(client, QueueConfig{
		Name:           wc.Queue,
		MaxAttempts:    wc.MaxAttempts,
		BaseRetryDelay: wc.BaseRetryDelay,
		MaxRetryDelay:  wc.MaxRetryDelay,
		BatchSize:      wc.BatchSize,
		ResultTTL:      wc.ResultTTL,
	}, log)

	log.Info("task queue connected",
		slog.String("queue", wc.Queue),
		slog.Int("db", cfg.Redis.QueueDB),
		slog.Int("max_attempts", wc.MaxAttempts))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing task queue connection")
			return client.Close()
		},
	})
	return q, nil
}

type workerParams struct {
	fx.In
	Cfg     *config.Config
	Queue   *Queue
	Log     *slog.Logger
	Monitor syshealth.Monitor `optional:"true"`
}

// NewTaskWorker builds the worker from configuration. It does not start it.
// With WORKER_ADAPTIVE_CONCURRENCY and a host monitor, batch concurrency
// follows host health between WORKER_MIN_CONCURRENCY and WORKER_CONCURRENCY.
func NewTaskWorker(p workerParams) *Worker {
	wc := p.Cfg.Worker
	w := NewWorker(WorkerConfig{
		Name:                "tasks",
		PollInterval:        wc.PollInterval,
		BatchSize:           wc.BatchSize,
		Concurrency:         wc.Concurrency,
		StaleThreshold:      wc.StaleThreshold,
		RecoverStaleOnStart: true,
	}, p.Queue, p.Log)

	if wc.AdaptiveConcurrency && p.Monitor != nil {
		w.SetLimiter(syshealth.NewConcurrencyScaler(p.Monitor, w.Name(), true, wc.MinConcurrency, wc.Concurrency))
	}
	return w
}

type reportingParams struct {
	fx.In
	Worker   *Worker
	Reporter *telemetry.Reporter `optional:"true"`
}

// RegisterFailureReporting sends permanently failed jobs to the error tracker.
func RegisterFailureReporting(p reportingParams) {
	if p.Reporter == nil || !p.Reporter.Enabled() {
		return
	}
	p.Worker.OnPermanentFailure(func(ctx context.Context, job *Job, err error) {
		p.Reporter.Capture(ctx, err, map[string]string{
			"job.id":   job.ID,
			"job.kind": job.Kind,
			"queue":    p.Worker.queue.Name(),
		})
	})
}

// RegisterWorkerLifecycle starts and stops the worker with the app when
// WORKER_ENABLED is set.
func RegisterWorkerLifecycle(lc fx.Lifecycle, cfg *config.Config, w *Worker, log *slog.Logger) {
	if !cfg.Worker.Enabled {
		log.Info("task worker disabled (WORKER_ENABLED=false)", logger.Scope("jobs"))
		return
	}
	lc.Append(fx.Hook{
		OnStart: w.Start,
		OnStop:  w.Stop,
	})
}
