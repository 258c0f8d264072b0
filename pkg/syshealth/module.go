package syshealth

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

// Module provides a host health Monitor that runs for the app's lifetime.
var Module = fx.Module("syshealth",
	fx.Provide(NewLifecycleMonitor),
)

// NewLifecycleMonitor creates a Monitor with DefaultConfig and ties its
// collection loop to the fx lifecycle.
func NewLifecycleMonitor(lc fx.Lifecycle, log *slog.Logger) Monitor {
	m := NewMonitor(DefaultConfig(), log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.Start() },
		OnStop:  func(context.Context) error { return m.Stop() },
	})
	return m
}
