package graph

import (
	"encoding/json"
	"time"

	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/surql"
)

// RelateRequest is the body of POST /api/graph/relate.
type RelateRequest struct {
	Source      string         `json:"source"`
	EdgeTable   string         `json:"edge_table"`
	Destination string         `json:"destination"`
	Payload     map[string]any `json:"payload,omitempty"`
	// Async queues the relate for the worker instead of running it inline.
	Async bool `json:"async,omitempty"`
}

func (r RelateRequest) toSurql() surql.RelateRequest {
	return surql.RelateRequest{
		Source:      r.Source,
		EdgeTable:   r.EdgeTable,
		Destination: r.Destination,
		Payload:     r.Payload,
	}
}

// RelateResponse carries the store's raw reply.
type RelateResponse struct {
	Result any `json:"result"`
}

// BatchRelateRequest is the body of POST /api/graph/relate/batch.
type BatchRelateRequest struct {
	Edges []RelateRequest `json:"edges"`
}

// BatchRelateItem is the outcome of one edge of a batch, in request order.
type BatchRelateItem struct {
	Index  int            `json:"index"`
	Result any            `json:"result,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// BatchRelateResponse lists per-edge outcomes.
type BatchRelateResponse struct {
	Items     []BatchRelateItem `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// TaskResponse describes a queued relate task.
type TaskResponse struct {
	TaskID      string          `json:"task_id"`
	Status      jobs.JobStatus  `json:"status"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func taskResponse(job *jobs.Job) *TaskResponse {
	return &TaskResponse{
		TaskID:      job.ID,
		Status:      job.Status,
		Attempts:    job.AttemptCount,
		Error:       job.LastError,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// LookupResponse wraps a relations or edges query result.
type LookupResponse struct {
	Start     string `json:"start"`
	EdgeTable string `json:"edge_table"`
	Direction string `json:"direction"`
	Result    any    `json:"result"`
	Cached    bool   `json:"cached"`
}
