// Seeds the medical knowledge graph (symptoms, diagnoses, medications and
// the edges between them) into SURREALDB_GRAPH_DB.
//
// Usage:
//
//	go run ./cmd/seed-graph [-timeout 1m]
//
// Nodes are upserted, so re-running keeps one node per key. Edges are
// related again on every run. Cached relation lookups of the seeded edge
// tables are dropped when REDIS_CACHE_DB is reachable.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/medgraph/medgraph/domain/graph"
	"github.com/medgraph/medgraph/domain/knowledge"
	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/database"
	"github.com/medgraph/medgraph/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", time.Minute, "overall seeding timeout")
	flag.Parse()

	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	log := logger.NewLogger()
	if err := run(*timeout, log); err != nil {
		log.Error("seeding failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(timeout time.Duration, log *slog.Logger) error {
	cfg, err := config.NewConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.Connect(ctx, cfg.SurrealDB, cfg.SurrealDB.GraphDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(context.Background()) }()

	builder, err := graph.NewStatementBuilder(cfg, log)
	if err != nil {
		return err
	}

	session := database.NewSession(cfg.SurrealDB.GraphDatabase, database.DriverQuery(db), cfg.SurrealDB.QueryTimeout, log)
	ctrl := graph.NewController(session, builder)
	seeder := knowledge.NewSeeder(ctrl, log)

	// running servers may have cached lookups of the seeded edge tables
	if c, err := cache.Connect(ctx, cfg.Redis, log); err != nil {
		log.Warn("relations cache unavailable, cached lookups expire by TTL", logger.Error(err))
	} else {
		defer func() { _ = c.Close() }()
		seeder.SetInvalidator(graph.NewService(ctrl, nil, c, nil, graph.ServiceOptions{CacheTTL: cfg.Graph.CacheTTL}, log))
	}

	report, err := seeder.Seed(ctx)
	if err != nil {
		return err
	}

	log.Info("knowledge graph seeded",
		slog.String("database", cfg.SurrealDB.GraphDatabase),
		slog.Int("nodes", report.Nodes),
		slog.Int("edges", report.Edges),
		slog.Duration("duration", report.Duration))
	return nil
}
