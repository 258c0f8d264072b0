// Package telemetry reports server-side errors to Sentry.
//
// A Reporter owns its own Sentry client and hub instead of the package-level
// globals, so tests and multiple binaries can create independent reporters.
// A Reporter built without a DSN is disabled and every method is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
)

// Options configures a Reporter.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	// BeforeSend can inspect or drop events; mainly for tests.
	BeforeSend func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event
}

// Reporter forwards errors to Sentry.
type Reporter struct {
	hub *sentry.Hub
	log *slog.Logger
}

// NewReporter creates a Reporter. An empty DSN yields a disabled reporter.
func NewReporter(opts Options, log *slog.Logger) (*Reporter, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.DSN == "" {
		log.Warn("error reporting disabled (SENTRY_DSN not set)")
		return &Reporter{log: log}, nil
	}

	sampleRate := opts.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       sampleRate,
		AttachStacktrace: true,
		BeforeSend:       opts.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry client: %w", err)
	}

	log.Info("error reporting enabled", slog.String("environment", opts.Environment))
	return &Reporter{
		hub: sentry.NewHub(client, sentry.NewScope()),
		log: log,
	}, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Capture sends err with the given tags. It returns the event id, or "" when
// nothing was sent.
func (r *Reporter) Capture(ctx context.Context, err error, tags map[string]string) string {
	if !r.Enabled() || err == nil {
		return ""
	}

	hub := r.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if ctx != nil {
			scope.SetContext("request", sentry.Context{"has_deadline": hasDeadline(ctx)})
		}
	})

	id := hub.CaptureException(err)
	if id == nil {
		return ""
	}
	return string(*id)
}

// CaptureHTTP reports an error raised while serving an echo request.
// Its signature matches apperror.ReportFunc.
func (r *Reporter) CaptureHTTP(c echo.Context, err error) {
	if !r.Enabled() {
		return
	}
	req := c.Request()
	r.Capture(req.Context(), err, map[string]string{
		"http.method": req.Method,
		"http.route":  c.Path(),
		"request_id":  c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

// Flush waits for buffered events to be delivered.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}

func hasDeadline(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
}
