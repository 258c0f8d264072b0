// Package main runs the task worker without the HTTP API.
//
// It consumes the Redis task queue (graph.relate, knowledge.seed) and runs
// the queue maintenance schedule. Instances can be scaled horizontally since
// tasks are claimed atomically.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/medgraph/medgraph/domain/graph"
	"github.com/medgraph/medgraph/domain/knowledge"
	"github.com/medgraph/medgraph/domain/scheduler"
	"github.com/medgraph/medgraph/domain/tracing"
	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/database"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/logger"
	"github.com/medgraph/medgraph/pkg/syshealth"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		logger.Module,
		config.Module,
		tracing.Module,
		database.Module,
		cache.Module,
		jobs.Module,
		syshealth.Module,

		graph.Module,
		knowledge.Module,
		scheduler.Module,

		// this binary always runs the worker, whatever WORKER_ENABLED says
		fx.Decorate(func(cfg *config.Config) *config.Config {
			cfg.Worker.Enabled = true
			return cfg
		}),
	).Run()
}
