package health

import (
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/medgraph/medgraph/domain/scheduler"
	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/database"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/syshealth"
)

// Module serves health, readiness and metrics endpoints. It needs the echo
// server, so only the API binary includes it.
var Module = fx.Module("health",
	fx.Provide(
		provideHandler,
		provideMetricsHandler,
	),
	fx.Invoke(RegisterRoutes),
)

type handlerParams struct {
	fx.In
	Cfg      *config.Config
	Sessions *database.Sessions `optional:"true"`
	Cache    *cache.Cache       `optional:"true"`
	Queue    *jobs.Queue        `optional:"true"`
	Monitor  syshealth.Monitor  `optional:"true"`
}

func provideHandler(p handlerParams) *Handler {
	var deps []Dependency
	if p.Sessions != nil {
		deps = append(deps,
			Dependency{Name: "surrealdb.records", Pinger: p.Sessions.Records, Critical: true},
			Dependency{Name: "surrealdb.graph", Pinger: p.Sessions.Graph, Critical: true},
		)
	}
	if p.Queue != nil {
		deps = append(deps, Dependency{Name: "redis.queue", Pinger: p.Queue, Critical: true})
	}
	if p.Cache != nil {
		deps = append(deps, Dependency{Name: "redis.cache", Pinger: p.Cache})
	}
	if p.Cfg.MCPURL != "" {
		deps = append(deps, Dependency{
			Name:   "mcp",
			Pinger: HTTPProbe{URL: p.Cfg.MCPURL, Client: &http.Client{Timeout: 3 * time.Second}},
		})
	}
	return NewHandler(p.Cfg, p.Monitor, deps...)
}

type metricsParams struct {
	fx.In
	Queue     *jobs.Queue          `optional:"true"`
	Worker    *jobs.Worker         `optional:"true"`
	Scheduler *scheduler.Scheduler `optional:"true"`
}

func provideMetricsHandler(p metricsParams) *MetricsHandler {
	return NewMetricsHandler(p.Queue, p.Worker, p.Scheduler)
}
