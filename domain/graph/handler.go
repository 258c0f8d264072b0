package graph

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/apperror"
	"github.com/medgraph/medgraph/pkg/sse"
	"github.com/medgraph/medgraph/pkg/surql"
)

// maxBatchEdges bounds POST /api/graph/relate/batch.
const maxBatchEdges = 500

// maxWatch bounds a task event stream.
const maxWatch = 10 * time.Minute

// Handler handles HTTP requests for graph operations.
type Handler struct {
	svc           *Service
	watchInterval time.Duration
}

// NewHandler creates a new graph handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, watchInterval: 500 * time.Millisecond}
}

// Relate creates an edge, or queues it when the body sets "async".
// POST /api/graph/relate
func (h *Handler) Relate(c echo.Context) error {
	var req RelateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if err := requireFields(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if req.Async {
		job, err := h.svc.Submit(ctx, req.toSurql())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusAccepted, taskResponse(job))
	}

	result, err := h.svc.Relate(ctx, req.toSurql())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, RelateResponse{Result: result})
}

// RelateBatch creates many edges concurrently and reports each outcome.
// POST /api/graph/relate/batch
func (h *Handler) RelateBatch(c echo.Context) error {
	var req BatchRelateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if len(req.Edges) == 0 {
		return apperror.ErrBadRequest.WithMessage("edges is required")
	}
	if len(req.Edges) > maxBatchEdges {
		return apperror.ErrBadRequest.WithMessage("too many edges in one batch")
	}

	reqs := make([]surql.RelateRequest, len(req.Edges))
	for i, e := range req.Edges {
		reqs[i] = e.toSurql()
	}

	outcomes := h.svc.RelateBatch(c.Request().Context(), reqs)

	resp := BatchRelateResponse{Items: make([]BatchRelateItem, len(outcomes))}
	for i, out := range outcomes {
		item := BatchRelateItem{Index: i}
		if out.Err != nil {
			item.Error = apperror.FromError(out.Err).Body()
			resp.Failed++
		} else {
			item.Result = out.Result
			resp.Succeeded++
		}
		resp.Items[i] = item
	}

	status := http.StatusCreated
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, resp)
}

// Relations lists records reached from a start record.
// GET /api/graph/relations?start=person:1&edge=treats&end=medication&direction=out
func (h *Handler) Relations(c echo.Context) error {
	l, err := parseLookup(c)
	if err != nil {
		return err
	}
	l.EndTable = c.QueryParam("end")

	result, cached, err := h.svc.Relations(c.Request().Context(), l)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LookupResponse{
		Start:     l.Start,
		EdgeTable: l.EdgeTable,
		Direction: string(l.Direction),
		Result:    result,
		Cached:    cached,
	})
}

// Edges lists edge records attached to a start record.
// GET /api/graph/edges?start=person:1&edge=treats&direction=in
func (h *Handler) Edges(c echo.Context) error {
	l, err := parseLookup(c)
	if err != nil {
		return err
	}

	result, err := h.svc.Edges(c.Request().Context(), l)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LookupResponse{
		Start:     l.Start,
		EdgeTable: l.EdgeTable,
		Direction: string(l.Direction),
		Result:    result,
	})
}

// GetTask returns the status of a queued relate.
// GET /api/graph/tasks/:id
func (h *Handler) GetTask(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return apperror.ErrBadRequest.WithMessage("task id is required")
	}

	job, err := h.svc.Task(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, taskResponse(job))
}

// WatchTask streams task status changes as Server-Sent Events: a "status"
// event per change, then "done" once the task completed or failed. An
// "error" event ends the stream if the task can no longer be read.
// GET /api/graph/tasks/:id/events
func (h *Handler) WatchTask(c echo.Context) error {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request().Context(), maxWatch)
	defer cancel()

	// a missing task is still a plain 404
	job, err := h.svc.Task(ctx, id)
	if err != nil {
		return err
	}

	// streams outlive SERVER_WRITE_TIMEOUT
	_ = http.NewResponseController(c.Response().Writer).SetWriteDeadline(time.Time{})

	w := sse.NewWriter(c.Response())
	defer w.Close()
	w.Start()

	ticker := time.NewTicker(h.watchInterval)
	defer ticker.Stop()

	var last jobs.JobStatus
	for {
		if job.Status != last {
			if err := w.Event("status", taskResponse(job)); err != nil {
				return nil
			}
			last = job.Status
		}
		if job.Status == jobs.StatusCompleted || job.Status == jobs.StatusFailed {
			_ = w.Event("done", taskResponse(job))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if job, err = h.svc.Task(ctx, id); err != nil {
			_ = w.Event("error", apperror.FromError(err).Body())
			return nil
		}
	}
}

func requireFields(req RelateRequest) error {
	if req.Source == "" {
		return apperror.ErrBadRequest.WithMessage("source is required")
	}
	if req.EdgeTable == "" {
		return apperror.ErrBadRequest.WithMessage("edge_table is required")
	}
	if req.Destination == "" {
		return apperror.ErrBadRequest.WithMessage("destination is required")
	}
	return nil
}

func parseLookup(c echo.Context) (Lookup, error) {
	l := Lookup{
		Start:     c.QueryParam("start"),
		EdgeTable: c.QueryParam("edge"),
	}
	if l.Start == "" {
		return l, apperror.ErrBadRequest.WithMessage("start is required")
	}
	if l.EdgeTable == "" {
		return l, apperror.ErrBadRequest.WithMessage("edge is required")
	}
	dir, err := surql.ParseDirection(c.QueryParam("direction"))
	if err != nil {
		return l, err
	}
	l.Direction = dir
	return l, nil
}
