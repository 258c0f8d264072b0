package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/jobs"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Queue     *jobs.Queue
	Log       *slog.Logger
	Cfg       *config.Config
}

// RegisterTasks registers all scheduled tasks. An invalid schedule fails startup.
func RegisterTasks(p TaskParams) error {
	sc := p.Cfg.Scheduler
	if !sc.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	stale := NewStaleJobRecoveryTask(p.Queue, p.Cfg.Worker.StaleThreshold, p.Log)
	if err := p.Scheduler.AddTask(TaskStaleJobRecovery, sc.StaleSchedule, stale.Run); err != nil {
		return err
	}

	depth := NewQueueMetricsTask(p.Queue, p.Log)
	if err := p.Scheduler.AddTask(TaskQueueMetrics, sc.MetricsSchedule, depth.Run); err != nil {
		return err
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if !cfg.Scheduler.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
