package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/medgraph/medgraph/pkg/logger"
)

var taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scheduler_task_runs_total",
	Help: "Scheduled task runs by task and outcome (ok, error, panic)",
}, []string{"task", "outcome"})

// TaskFunc is the function signature for scheduled tasks
type TaskFunc func(ctx context.Context) error

// taskTimeout bounds a single run of a scheduled task.
const taskTimeout = 5 * time.Minute

type entry struct {
	id       cron.EntryID
	schedule string
	task     TaskFunc

	lastRun      time.Time
	lastDuration time.Duration
	lastError    string
	runs         int64
}

// Scheduler runs maintenance tasks on cron schedules (robfig/cron).
// A task whose previous run is still in progress is skipped, not queued.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	tasks   map[string]*entry
	mu      sync.RWMutex
	running bool
}

// NewScheduler creates a new scheduler
func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:   log.With(logger.Scope("scheduler")),
		tasks: make(map[string]*entry),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("tasks", len(s.tasks)))

	return nil
}

// Stop gracefully stops the scheduler, waiting for running tasks until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timeout")
	}

	s.running = false
	return nil
}

// AddTask schedules task under name, replacing any task of the same name.
// schedule is a cron expression with optional seconds ("0 */5 * * * *",
// "*/5 * * * *") or a descriptor ("@every 1m", "@hourly").
func (s *Scheduler) AddTask(name, schedule string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		s.cron.Remove(old.id)
		delete(s.tasks, name)
	}

	e := &entry{schedule: schedule, task: task}
	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.runTask(name, e, task)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, schedule, err)
	}
	e.id = id
	s.tasks[name] = e

	s.log.Info("added scheduled task",
		slog.String("name", name),
		slog.String("schedule", schedule))
	return nil
}

// RemoveTask removes a scheduled task
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.tasks[name]; ok {
		s.cron.Remove(e.id)
		delete(s.tasks, name)
		s.log.Info("removed task", slog.String("name", name))
	}
}

// RunNow executes a registered task synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}

	return s.runTask(name, e, e.task)
}

// runTask executes a task, recording its outcome. Panics are recovered and
// reported as errors.
func (s *Scheduler) runTask(name string, e *entry, task TaskFunc) error {
	start := time.Now()
	s.log.Debug("running scheduled task", slog.String("name", name))

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	outcome := "ok"
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				outcome = "panic"
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("scheduled task panicked",
					slog.String("name", name),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		return task(ctx)
	}()
	if err != nil && outcome == "ok" {
		outcome = "error"
	}
	taskRuns.WithLabelValues(name, outcome).Inc()

	s.mu.Lock()
	e.lastRun = start
	e.lastDuration = time.Since(start)
	e.runs++
	e.lastError = ""
	if err != nil {
		e.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("scheduled task failed",
			slog.String("name", name),
			logger.Error(err),
			slog.Duration("duration", time.Since(start)))
		return err
	}

	s.log.Debug("scheduled task completed",
		slog.String("name", name),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// ListTasks returns the names of all scheduled tasks, sorted
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskInfo represents information about a scheduled task
type TaskInfo struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	Runs         int64         `json:"runs"`
}

// GetTaskInfo returns information about all scheduled tasks, sorted by name
func (s *Scheduler) GetTaskInfo() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]TaskInfo, 0, len(s.tasks))
	for name, e := range s.tasks {
		ce := s.cron.Entry(e.id)
		info = append(info, TaskInfo{
			Name:         name,
			Schedule:     e.schedule,
			NextRun:      ce.Next,
			LastRun:      e.lastRun,
			LastDuration: e.lastDuration,
			LastError:    e.lastError,
			Runs:         e.runs,
		})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Name < info[j].Name })
	return info
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
