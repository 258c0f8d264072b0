package knowledge

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medgraph/medgraph/domain/graph"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/apperror"
	"github.com/medgraph/medgraph/pkg/surql"
)

// TaskSeed is the job kind that seeds the knowledge graph.
const TaskSeed = "knowledge.seed"

// RelationReader is the part of graph.Service the handler needs.
type RelationReader interface {
	Relations(ctx context.Context, l graph.Lookup) (any, bool, error)
}

// TaskQueue is the part of jobs.Queue the handler needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, kind string, payload any) (*jobs.Job, error)
}

// Handler serves knowledge graph lookups.
type Handler struct {
	relations RelationReader
	queue     TaskQueue
}

// NewHandler creates a knowledge handler. queue may be nil, in which case
// seeding over HTTP is unavailable.
func NewHandler(relations RelationReader, queue TaskQueue) *Handler {
	return &Handler{relations: relations, queue: queue}
}

// NeighboursResponse lists the records linked to a node.
type NeighboursResponse struct {
	Node      string `json:"node"`
	Edge      string `json:"edge"`
	Direction string `json:"direction"`
	Result    any    `json:"result"`
}

func (h *Handler) neighbours(c echo.Context, node, edge, end string, dir surql.Direction) error {
	result, _, err := h.relations.Relations(c.Request().Context(), graph.Lookup{
		Start:     node,
		EdgeTable: edge,
		EndTable:  end,
		Direction: dir,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NeighboursResponse{
		Node:      node,
		Edge:      edge,
		Direction: string(dir),
		Result:    result,
	})
}

// Symptoms lists the symptoms of a diagnosis.
// GET /api/knowledge/diagnoses/:key/symptoms
func (h *Handler) Symptoms(c echo.Context) error {
	return h.neighbours(c, TableDiagnosis+":"+c.Param("key"), EdgeHasSymptom, TableSymptom, surql.Out)
}

// Diagnoses lists the diagnoses that present a symptom.
// GET /api/knowledge/symptoms/:key/diagnoses
func (h *Handler) Diagnoses(c echo.Context) error {
	return h.neighbours(c, TableSymptom+":"+c.Param("key"), EdgeHasSymptom, TableDiagnosis, surql.In)
}

// Treatments lists the medications that treat a diagnosis.
// GET /api/knowledge/diagnoses/:key/treatments
func (h *Handler) Treatments(c echo.Context) error {
	return h.neighbours(c, TableDiagnosis+":"+c.Param("key"), EdgeTreats, TableMedication, surql.In)
}

// Contraindications lists medications a medication must not be combined with.
// ?direction=in lists the medications that name it instead.
// GET /api/knowledge/medications/:key/contraindications
func (h *Handler) Contraindications(c echo.Context) error {
	dir, err := surql.ParseDirection(c.QueryParam("direction"))
	if err != nil {
		return err
	}
	return h.neighbours(c, TableMedication+":"+c.Param("key"), EdgeContraindicatedFor, TableMedication, dir)
}

// Seed queues a seeding run for the worker.
// POST /api/knowledge/seed
func (h *Handler) Seed(c echo.Context) error {
	if h.queue == nil {
		return apperror.ErrUnavailable.WithMessage("background tasks are not available")
	}
	job, err := h.queue.Enqueue(c.Request().Context(), TaskSeed, nil)
	if err != nil {
		return apperror.ErrUnavailable.WithMessage("could not queue task").WithInternal(err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"task_id": job.ID,
		"status":  job.Status,
	})
}

// RegisterRoutes registers knowledge routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/knowledge")

	g.GET("/diagnoses/:key/symptoms", h.Symptoms)
	g.GET("/diagnoses/:key/treatments", h.Treatments)
	g.GET("/symptoms/:key/diagnoses", h.Diagnoses)
	g.GET("/medications/:key/contraindications", h.Contraindications)
	g.POST("/seed", h.Seed)
}
