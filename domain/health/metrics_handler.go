package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medgraph/medgraph/domain/scheduler"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/apperror"
)

// MetricsHandler serves task queue and scheduler metrics as JSON.
// Every dependency is optional; a missing one yields 503 on its endpoint.
type MetricsHandler struct {
	queue     *jobs.Queue
	worker    *jobs.Worker
	scheduler *scheduler.Scheduler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(queue *jobs.Queue, worker *jobs.Worker, sched *scheduler.Scheduler) *MetricsHandler {
	return &MetricsHandler{
		queue:     queue,
		worker:    worker,
		scheduler: sched,
	}
}

// JobMetricsResponse is the body of /api/metrics/jobs.
type JobMetricsResponse struct {
	Queue     string        `json:"queue"`
	Stats     *jobs.Stats   `json:"stats"`
	Worker    *WorkerStatus `json:"worker,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// WorkerStatus describes the in-process worker.
type WorkerStatus struct {
	Name    string             `json:"name"`
	Running bool               `json:"running"`
	Kinds   []string           `json:"kinds"`
	Metrics jobs.WorkerMetrics `json:"metrics"`
}

// JobMetrics returns task queue depth and worker counters
func (h *MetricsHandler) JobMetrics(c echo.Context) error {
	if h.queue == nil {
		return apperror.ErrUnavailable.WithMessage("task queue is not configured")
	}

	stats, err := jobs.RefreshDepthGauges(c.Request().Context(), h.queue)
	if err != nil {
		return apperror.ErrUnavailable.WithMessage("task queue unreachable").WithInternal(err)
	}

	resp := JobMetricsResponse{
		Queue:     h.queue.Name(),
		Stats:     stats,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.worker != nil {
		resp.Worker = &WorkerStatus{
			Name:    h.worker.Name(),
			Running: h.worker.IsRunning(),
			Kinds:   h.worker.Kinds(),
			Metrics: h.worker.Metrics(),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// SchedulerMetrics returns the scheduled tasks and their last runs
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	if h.scheduler == nil {
		return apperror.ErrUnavailable.WithMessage("scheduler is not configured")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"running":   h.scheduler.IsRunning(),
		"tasks":     h.scheduler.GetTaskInfo(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
