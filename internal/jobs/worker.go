package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medgraph/medgraph/pkg/logger"
	"github.com/medgraph/medgraph/pkg/tracing"
)

// HandlerFunc executes one job and returns a JSON-encodable result.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

// FailureFunc is called when a job fails for good (no retry left).
type FailureFunc func(ctx context.Context, job *Job, err error)

// ConcurrencyLimiter decides how many jobs of a batch may run at once,
// given the configured concurrency.
type ConcurrencyLimiter interface {
	GetConcurrency(static int) int
}

// permanentError marks a handler failure that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// WorkerConfig contains configuration for a background worker
type WorkerConfig struct {
	// Name is a descriptive name for the worker (for logging)
	Name string
	// PollInterval is how often to poll for new jobs (default: 5s)
	PollInterval time.Duration
	// BatchSize is the number of jobs to dequeue per poll (default: 10)
	BatchSize int
	// Concurrency bounds how many jobs of a batch run at once (default: 4)
	Concurrency int
	// StaleThreshold is how long a job can be processing before it is
	// considered stale and recovered (default: 10m)
	StaleThreshold time.Duration
	// RecoverStaleOnStart determines if stale jobs should be recovered on startup
	RecoverStaleOnStart bool
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults
func DefaultWorkerConfig(name string) WorkerConfig {
	return WorkerConfig{
		Name:                name,
		PollInterval:        5 * time.Second,
		BatchSize:           10,
		Concurrency:         4,
		StaleThreshold:      10 * time.Minute,
		RecoverStaleOnStart: true,
	}
}

// Worker polls a Queue and dispatches jobs to handlers by kind.
// - Polling-based with configurable interval
// - Bounded concurrency within a batch
// - Graceful shutdown waiting for the current batch
// - Stale job recovery on startup
// - Metrics tracking
type Worker struct {
	config    WorkerConfig
	log       *slog.Logger
	queue     *Queue
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
	mu        sync.Mutex
	wg        sync.WaitGroup

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc
	onFailure  []FailureFunc
	limiter    ConcurrencyLimiter

	// Metrics
	processedCount int64
	successCount   int64
	failureCount   int64
	metricsMu      sync.RWMutex
}

// NewWorker creates a new background worker
func NewWorker(config WorkerConfig, queue *Queue, log *slog.Logger) *Worker {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.StaleThreshold == 0 {
		config.StaleThreshold = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		config:    config,
		log:       log.With(logger.Scope("worker"), slog.String("worker", config.Name)),
		queue:     queue,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		handlers:  make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for a job kind, replacing any previous one.
func (w *Worker) Handle(kind string, h HandlerFunc) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.handlers[kind] = h
}

// OnPermanentFailure registers a callback for jobs that will not be retried.
func (w *Worker) OnPermanentFailure(fn FailureFunc) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.onFailure = append(w.onFailure, fn)
}

// SetLimiter makes batch concurrency adaptive. Without a limiter the worker
// uses WorkerConfig.Concurrency.
func (w *Worker) SetLimiter(l ConcurrencyLimiter) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.limiter = l
}

func (w *Worker) concurrency() int {
	w.handlersMu.RLock()
	l := w.limiter
	w.handlersMu.RUnlock()
	if l == nil {
		return w.config.Concurrency
	}
	if n := l.GetConcurrency(w.config.Concurrency); n > 0 {
		return n
	}
	return 1
}

// Kinds returns the registered job kinds.
func (w *Worker) Kinds() []string {
	w.handlersMu.RLock()
	defer w.handlersMu.RUnlock()
	kinds := make([]string, 0, len(w.handlers))
	for k := range w.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	w.mu.Unlock()

	if w.config.RecoverStaleOnStart {
		if _, err := w.queue.RecoverStaleJobs(ctx, w.config.StaleThreshold); err != nil {
			w.log.Warn("stale job recovery failed", logger.Error(err))
		}
	}

	w.log.Info("worker starting",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", w.config.BatchSize),
		slog.Int("concurrency", w.config.Concurrency),
		slog.Any("kinds", w.Kinds()))

	w.wg.Add(1)
	// the loop outlives the start context
	go w.run(context.WithoutCancel(ctx))

	return nil
}

// Stop gracefully stops the worker, waiting for current batch to complete
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.log.Debug("waiting for worker to stop...")

	select {
	case <-w.stoppedCh:
		w.log.Info("worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("worker stop timeout, forcing shutdown")
	}

	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.log.Warn("process batch failed", logger.Error(err))
			}
		}
	}
}

// ProcessBatch promotes due retries, claims one batch and runs it to
// completion. It returns the number of jobs claimed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	select {
	case <-w.stopCh:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if _, err := w.queue.PromoteDue(ctx); err != nil {
		w.log.Warn("promote delayed jobs failed", logger.Error(err))
	}

	jobs, err := w.queue.Dequeue(ctx, w.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency())
	for _, job := range jobs {
		g.Go(func() error {
			w.processJob(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return len(jobs), nil
}

func (w *Worker) processJob(ctx context.Context, job *Job) {
	ctx, span := tracing.Start(ctx, "jobs.process",
		tracing.AttrTaskID.String(job.ID),
		tracing.AttrTaskKind.String(job.Kind),
	)
	defer span.End()

	log := w.log.With(slog.String("job_id", job.ID), slog.String("kind", job.Kind))
	start := time.Now()

	w.handlersMu.RLock()
	handler, ok := w.handlers[job.Kind]
	w.handlersMu.RUnlock()

	var (
		result any
		err    error
	)
	if !ok {
		err = Permanent(fmt.Errorf("no handler registered for kind %q", job.Kind))
	} else {
		result, err = w.invoke(ctx, handler, job)
	}
	jobDuration.WithLabelValues(w.queue.Name(), job.Kind).Observe(time.Since(start).Seconds())

	if err == nil {
		if markErr := w.queue.MarkCompleted(ctx, job, result); markErr != nil {
			log.Error("failed to mark job completed", logger.Error(markErr))
		}
		w.IncrementSuccess()
		jobsProcessed.WithLabelValues(w.queue.Name(), job.Kind, "completed").Inc()
		log.Debug("job completed", slog.Duration("duration", time.Since(start)))
		return
	}

	tracing.Fail(span, err)
	w.IncrementFailure()

	retrying := false
	var markErr error
	if IsPermanent(err) {
		markErr = w.queue.MarkDead(ctx, job, err.Error())
	} else {
		retrying, markErr = w.queue.MarkFailed(ctx, job, err.Error())
	}
	if markErr != nil {
		log.Error("failed to record job failure", logger.Error(markErr))
	}

	if retrying {
		jobsProcessed.WithLabelValues(w.queue.Name(), job.Kind, "retry").Inc()
		log.Warn("job failed, retry scheduled", slog.Int("attempt", job.AttemptCount), logger.Error(err))
		return
	}

	jobsProcessed.WithLabelValues(w.queue.Name(), job.Kind, "failed").Inc()
	log.Error("job failed", slog.Int("attempts", job.AttemptCount), logger.Error(err))

	w.handlersMu.RLock()
	callbacks := w.onFailure
	w.handlersMu.RUnlock()
	for _, fn := range callbacks {
		fn(ctx, job, err)
	}
}

// invoke runs the handler, turning a panic into a permanent failure.
func (w *Worker) invoke(ctx context.Context, h HandlerFunc, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result, err = nil, Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, job)
}

// Metrics returns current worker metrics
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()

	return WorkerMetrics{
		Processed: w.processedCount,
		Succeeded: w.successCount,
		Failed:    w.failureCount,
	}
}

// IncrementSuccess increments both processed and success counters
func (w *Worker) IncrementSuccess() {
	w.metricsMu.Lock()
	w.processedCount++
	w.successCount++
	w.metricsMu.Unlock()
}

// IncrementFailure increments both processed and failure counters
func (w *Worker) IncrementFailure() {
	w.metricsMu.Lock()
	w.processedCount++
	w.failureCount++
	w.metricsMu.Unlock()
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.config.Name }

// WorkerMetrics contains worker metrics
type WorkerMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
