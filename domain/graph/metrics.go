package graph

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medgraph/medgraph/pkg/surql"
)

var (
	relateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_relate_total",
		Help: "Relate operations by edge table, execution mode and outcome",
	}, []string{"edge_table", "mode", "outcome"})

	relateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graph_relate_duration_seconds",
		Help:    "Relate latency including validation and store round trip",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_cache_lookups_total",
		Help: "Relation lookups served from cache (hit) or store (miss)",
	}, []string{"result"})
)

const (
	modeSync  = "sync"
	modeBatch = "batch"
	modeTask  = "task"
)

func observeRelate(edgeTable, mode string, start time.Time, err error) {
	outcome := outcomeLabel(err)
	// unvalidated names must not become label values
	if outcome == "invalid" {
		edgeTable = "-"
	}
	relateTotal.WithLabelValues(edgeTable, mode, outcome).Inc()
	relateDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, surql.ErrInvalidReference), errors.Is(err, surql.ErrInvalidPayload):
		return "invalid"
	case surql.IsStoreError(err):
		return "store_error"
	default:
		return "error"
	}
}
