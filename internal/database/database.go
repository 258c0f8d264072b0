package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/surrealdb/surrealdb.go"
	"go.uber.org/fx"

	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/pkg/logger"
)

var Module = fx.Module("database",
	fx.Provide(NewSessions),
)

// Sessions holds one session per logical database in the namespace.
type Sessions struct {
	// Records is the patient records database (SURREALDB_DATABASE).
	Records *Session
	// Graph is the medical knowledge graph database (SURREALDB_GRAPH_DB).
	Graph *Session
}

// NewSessions opens both databases and closes them on app stop.
func NewSessions(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Sessions, error) {
	log = log.With(logger.Scope("database"))
	sc := cfg.SurrealDB

	ctx, cancel := context.WithTimeout(context.Background(), sc.ConnectTimeout)
	defer cancel()

	records, err := Connect(ctx, sc, sc.Database)
	if err != nil {
		return nil, err
	}
	graph, err := Connect(ctx, sc, sc.GraphDatabase)
	if err != nil {
		_ = records.Close(ctx)
		return nil, err
	}

	log.Info("surrealdb connected",
		slog.String("url", sc.URL()),
		slog.String("namespace", sc.Namespace),
		slog.String("database", sc.Database),
		slog.String("graph_database", sc.GraphDatabase),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing surrealdb connections")
			gErr := graph.Close(ctx)
			rErr := records.Close(ctx)
			if gErr != nil {
				return gErr
			}
			return rErr
		},
	})

	return &Sessions{
		Records: NewSession(sc.Database, DriverQuery(records), sc.QueryTimeout, log),
		Graph:   NewSession(sc.GraphDatabase, DriverQuery(graph), sc.QueryTimeout, log),
	}, nil
}

// Connect dials the endpoint, signs in and selects namespace/database.
func Connect(ctx context.Context, sc config.SurrealDBConfig, database string) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, sc.URL())
	if err != nil {
		return nil, fmt.Errorf("connect surrealdb %s: %w", sc.URL(), err)
	}

	if sc.User != "" {
		if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: sc.User, Password: sc.Password}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("sign in to surrealdb as %s: %w", sc.User, err)
		}
	}

	if err := db.Use(ctx, sc.Namespace, database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", sc.Namespace, database, err)
	}
	return db, nil
}

// DriverQuery adapts a connected client to QueryFunc. A single statement
// yields its result directly; multi-statement submissions yield a slice of
// per-statement results. Any statement with a non-OK status fails the call.
func DriverQuery(db *surrealdb.DB) QueryFunc {
	return func(ctx context.Context, sql string, vars map[string]any) (any, error) {
		results, err := surrealdb.Query[any](ctx, db, sql, vars)
		if err != nil {
			return nil, err
		}
		if results == nil {
			return nil, nil
		}

		out := make([]any, 0, len(*results))
		for i, r := range *results {
			if r.Status != "OK" {
				return nil, fmt.Errorf("statement %d returned %s: %v", i, r.Status, r.Result)
			}
			out = append(out, r.Result)
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return out, nil
	}
}
