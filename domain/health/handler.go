package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/internal/version"
	"github.com/medgraph/medgraph/pkg/syshealth"
)

const checkTimeout = 5 * time.Second

// Check statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a backing service probed by /health. Failing critical
// dependencies make the service unhealthy and not ready; other failures only
// degrade it.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Critical bool
}

// Handler handles health check requests
type Handler struct {
	cfg     *config.Config
	deps    []Dependency
	monitor syshealth.Monitor
	startAt time.Time
}

// NewHandler creates a new health handler. monitor may be nil.
func NewHandler(cfg *config.Config, monitor syshealth.Monitor, deps ...Dependency) *Handler {
	return &Handler{
		cfg:     cfg,
		deps:    deps,
		monitor: monitor,
		startAt: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency,omitempty"`
	Message  string `json:"message,omitempty"`
}

// probe runs every dependency check concurrently.
func (h *Handler) probe(ctx context.Context, criticalOnly bool) (map[string]Check, string) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]Check, len(h.deps))
		g      errgroup.Group
	)
	for _, d := range h.deps {
		if criticalOnly && !d.Critical {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			err := d.Pinger.Ping(ctx)
			c := Check{
				Status:   StatusHealthy,
				Critical: d.Critical,
				Latency:  time.Since(start).Round(time.Microsecond).String(),
			}
			if err != nil {
				c.Status = StatusUnhealthy
				c.Message = err.Error()
			}
			mu.Lock()
			checks[d.Name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, c := range checks {
		if c.Status == StatusHealthy {
			continue
		}
		if c.Critical {
			overall = StatusUnhealthy
			break
		}
		overall = StatusDegraded
	}
	return checks, overall
}

// Health returns the overall service health.
// 200 when healthy or degraded, 503 when a critical dependency is down.
func (h *Handler) Health(c echo.Context) error {
	checks, overall := h.probe(c.Request().Context(), false)

	response := HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, response)
}

// Healthz returns a simple health check (for k8s liveness probe)
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe). Only critical
// dependencies are checked.
func (h *Handler) Ready(c echo.Context) error {
	checks, overall := h.probe(c.Request().Context(), true)
	if overall == StatusUnhealthy {
		failed := make([]string, 0, len(checks))
		for name, ch := range checks {
			if ch.Status != StatusHealthy {
				failed = append(failed, name)
			}
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"failed": failed,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns runtime, host and connection details. Not served in production.
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"version":     version.Info(),
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"num_cpu":     runtime.NumCPU(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
		"surrealdb": map[string]any{
			"url":            h.cfg.SurrealDB.URL(),
			"namespace":      h.cfg.SurrealDB.Namespace,
			"database":       h.cfg.SurrealDB.Database,
			"graph_database": h.cfg.SurrealDB.GraphDatabase,
		},
		"redis": map[string]any{
			"addr":     h.cfg.Redis.Addr(),
			"cache_db": h.cfg.Redis.CacheDB,
			"queue_db": h.cfg.Redis.QueueDB,
		},
	}
	if h.monitor != nil {
		resp["host"] = h.monitor.GetHealth()
	}

	return c.JSON(http.StatusOK, resp)
}
