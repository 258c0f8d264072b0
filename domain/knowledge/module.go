package knowledge

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/medgraph/medgraph/domain/graph"
	"github.com/medgraph/medgraph/internal/jobs"
)

// Module provides the seeder and registers the seed task with the worker.
var Module = fx.Module("knowledge",
	fx.Provide(provideSeeder),
	fx.Invoke(RegisterTasks),
)

// HTTPModule exposes knowledge lookups over HTTP.
var HTTPModule = fx.Module("knowledge-http",
	fx.Provide(provideHandler),
	fx.Invoke(RegisterRoutes),
)

// the seeder writes through the controller, so the service's lookup cache is
// invalidated separately
func provideSeeder(ctrl *graph.Controller, svc *graph.Service, log *slog.Logger) *Seeder {
	s := NewSeeder(ctrl, log)
	s.SetInvalidator(svc)
	return s
}

type handlerParams struct {
	fx.In
	Service *graph.Service
	Queue   *jobs.Queue `optional:"true"`
}

func provideHandler(p handlerParams) *Handler {
	// a nil *jobs.Queue must stay a nil interface
	if p.Queue == nil {
		return NewHandler(p.Service, nil)
	}
	return NewHandler(p.Service, p.Queue)
}

// RegisterTasks binds the seed task kind to the worker.
func RegisterTasks(w *jobs.Worker, s *Seeder) {
	w.Handle(TaskSeed, func(ctx context.Context, _ *jobs.Job) (any, error) {
		return s.Seed(ctx)
	})
}
