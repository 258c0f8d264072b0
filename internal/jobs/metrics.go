package jobs

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Jobs processed by queue, kind and outcome (completed, retry, failed)",
	}, []string{"queue", "kind", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobs_duration_seconds",
		Help:    "Job handler latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue", "kind"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jobs_queue_depth",
		Help: "Jobs per queue and state at the last refresh",
	}, []string{"queue", "state"})
)

// RefreshDepthGauges reads queue statistics into the jobs_queue_depth gauge.
func RefreshDepthGauges(ctx context.Context, q *Queue) (*Stats, error) {
	stats, err := q.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	queueDepth.WithLabelValues(q.Name(), string(StatusPending)).Set(float64(stats.Pending))
	queueDepth.WithLabelValues(q.Name(), "delayed").Set(float64(stats.Delayed))
	queueDepth.WithLabelValues(q.Name(), string(StatusProcessing)).Set(float64(stats.Processing))
	return stats, nil
}
