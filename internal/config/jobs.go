package config

import "time"

// WorkerConfig holds background task worker settings
type WorkerConfig struct {
	Enabled bool `env:"WORKER_ENABLED" envDefault:"true"`
	// Queue is the Redis key prefix of the task queue
	Queue        string        `env:"WORKER_QUEUE" envDefault:"medgraph:tasks"`
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	Concurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	// AdaptiveConcurrency scales concurrency down under host pressure,
	// never below MinConcurrency
	AdaptiveConcurrency bool `env:"WORKER_ADAPTIVE_CONCURRENCY" envDefault:"false"`
	MinConcurrency      int  `env:"WORKER_MIN_CONCURRENCY" envDefault:"1"`
	// MaxAttempts of 1 means a failed task is never retried
	MaxAttempts    int           `env:"WORKER_MAX_ATTEMPTS" envDefault:"1"`
	BaseRetryDelay time.Duration `env:"WORKER_BASE_RETRY_DELAY" envDefault:"60s"`
	MaxRetryDelay  time.Duration `env:"WORKER_MAX_RETRY_DELAY" envDefault:"1h"`
	ResultTTL      time.Duration `env:"WORKER_RESULT_TTL" envDefault:"24h"`
	StaleThreshold time.Duration `env:"WORKER_STALE_THRESHOLD" envDefault:"10m"`
}

// SchedulerConfig holds cron settings for queue maintenance
type SchedulerConfig struct {
	Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`
	// MetricsSchedule refreshes the queue depth gauges
	MetricsSchedule string `env:"QUEUE_METRICS_SCHEDULE" envDefault:"@every 15s"`
	// StaleSchedule requeues tasks whose worker died mid-flight
	StaleSchedule string `env:"STALE_JOB_SCHEDULE" envDefault:"@every 1m"`
}
