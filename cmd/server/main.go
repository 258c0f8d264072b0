// Package main provides the entry point for the medgraph API server.
//
// The server exposes the graph relate API, knowledge graph lookups, health
// and metrics. With WORKER_ENABLED it also runs the task worker in-process;
// cmd/worker runs the same worker standalone.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/medgraph/medgraph/domain/graph"
	"github.com/medgraph/medgraph/domain/health"
	"github.com/medgraph/medgraph/domain/knowledge"
	"github.com/medgraph/medgraph/domain/scheduler"
	"github.com/medgraph/medgraph/domain/tracing"
	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/database"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/internal/server"
	"github.com/medgraph/medgraph/pkg/logger"
	"github.com/medgraph/medgraph/pkg/syshealth"
)

func main() {
	// Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		tracing.Module,
		database.Module,
		cache.Module,
		jobs.Module,
		syshealth.Module,
		server.Module,
		tracing.HTTPModule,

		// Domain modules
		graph.Module,
		graph.HTTPModule,
		knowledge.Module,
		knowledge.HTTPModule,
		health.Module,

		// Scheduler module (queue maintenance)
		scheduler.Module,
	).Run()
}
