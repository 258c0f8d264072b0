package syshealth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_health_score",
		Help: "Overall host health score (0-100)",
	})

	ioWaitPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_io_wait_percent",
		Help: "Host I/O wait percentage",
	})

	cpuLoadAvg = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_cpu_load_avg",
		Help: "Host CPU load average",
	}, []string{"period"})

	memoryUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_utilization_percent",
		Help: "Host memory utilization percentage",
	})

	workerConcurrency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_current_concurrency",
		Help: "Concurrency currently allowed for a task worker",
	}, []string{"worker"})

	workerAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_concurrency_adjustments_total",
		Help: "Concurrency adjustments by direction and health zone",
	}, []string{"worker", "direction", "zone"})
)
