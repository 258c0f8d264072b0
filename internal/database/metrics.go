package database

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surrealdb_queries_total",
		Help: "SurrealDB submissions by database, statement kind and outcome",
	}, []string{"db", "op", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "surrealdb_query_duration_seconds",
		Help:    "SurrealDB submission latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"db", "op"})
)
