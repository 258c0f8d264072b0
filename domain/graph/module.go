package graph

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/database"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/surql"
)

// Module provides the graph controllers and service, and registers the
// relate task with the worker.
var Module = fx.Module("graph",
	fx.Provide(NewStatementBuilder),
	fx.Provide(provideControllers),
	fx.Provide(provideService),
	fx.Invoke(RegisterTasks),
)

// HTTPModule exposes the graph service over HTTP.
var HTTPModule = fx.Module("graph-http",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// NewStatementBuilder builds the statement builder from GRAPH_EDGE_ID_STRATEGY
// and GRAPH_PAYLOAD_MODE.
func NewStatementBuilder(cfg *config.Config, log *slog.Logger) (*surql.Builder, error) {
	ids, err := surql.ParseEdgeIDStrategy(cfg.Graph.EdgeIDStrategy)
	if err != nil {
		return nil, fmt.Errorf("GRAPH_EDGE_ID_STRATEGY: %w", err)
	}
	mode, err := surql.ParseValueMode(cfg.Graph.PayloadMode)
	if err != nil {
		return nil, fmt.Errorf("GRAPH_PAYLOAD_MODE: %w", err)
	}
	log.Info("graph statements configured",
		slog.String("edge_ids", cfg.Graph.EdgeIDStrategy),
		slog.String("payload_mode", mode.String()))
	return surql.NewBuilder(surql.WithEdgeIDs(ids), surql.WithValueMode(mode)), nil
}

type controllersResult struct {
	fx.Out
	Controller *Controller
	Async      *AsyncController
}

// both controllers share the knowledge graph session
func provideControllers(sessions *database.Sessions, b *surql.Builder) controllersResult {
	return controllersResult{
		Controller: NewController(sessions.Graph, b),
		Async:      NewAsyncController(sessions.Graph, b),
	}
}

type serviceParams struct {
	fx.In
	Controller *Controller
	Async      *AsyncController
	Cache      *cache.Cache `optional:"true"`
	Queue      *jobs.Queue  `optional:"true"`
	Config     *config.Config
	Log        *slog.Logger
}

func provideService(p serviceParams) *Service {
	return NewService(p.Controller, p.Async, p.Cache, p.Queue, ServiceOptions{
		CacheTTL:         p.Config.Graph.CacheTTL,
		BatchConcurrency: p.Config.Graph.BatchConcurrency,
	}, p.Log)
}

// RegisterTasks binds the relate task kind to the worker.
func RegisterTasks(w *jobs.Worker, svc *Service) {
	w.Handle(TaskRelate, svc.HandleRelateTask)
}
