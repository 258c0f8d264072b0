package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/apperror"
	"github.com/medgraph/medgraph/pkg/logger"
	"github.com/medgraph/medgraph/pkg/surql"
	"github.com/medgraph/medgraph/pkg/tracing"
)

// TaskRelate is the job kind of a queued relate.
const TaskRelate = "graph.relate"

// ServiceOptions tunes the Service.
type ServiceOptions struct {
	// CacheTTL for relation lookups; 0 disables caching.
	CacheTTL time.Duration
	// BatchConcurrency bounds concurrent submissions in RelateBatch.
	BatchConcurrency int
}

// Service handles graph operations for the HTTP layer and the worker.
type Service struct {
	graph *Controller
	async *AsyncController
	cache *cache.Cache
	queue *jobs.Queue
	opts  ServiceOptions
	log   *slog.Logger
}

// NewService creates a graph service. cache and queue may be nil: lookups are
// then never cached and background submission is unavailable.
func NewService(graph *Controller, async *AsyncController, c *cache.Cache, q *jobs.Queue, opts ServiceOptions, log *slog.Logger) *Service {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		graph: graph,
		async: async,
		cache: c,
		queue: q,
		opts:  opts,
		log:   log.With(logger.Scope("graph.svc")),
	}
}

// Relate creates one edge and returns the store's reply.
func (s *Service) Relate(ctx context.Context, req surql.RelateRequest) (any, error) {
	return s.relate(ctx, req, modeSync)
}

func (s *Service) relate(ctx context.Context, req surql.RelateRequest, mode string) (any, error) {
	ctx, span := tracing.Start(ctx, "graph.relate",
		tracing.AttrEdgeTable.String(req.EdgeTable),
		tracing.AttrSource.String(req.Source),
		tracing.AttrTarget.String(req.Destination),
	)
	defer span.End()

	start := time.Now()
	result, err := s.graph.Relate(ctx, req.Source, req.EdgeTable, req.Destination, req.Payload)
	observeRelate(req.EdgeTable, mode, start, err)
	if err != nil {
		tracing.Fail(span, err)
		s.logFailure("relate failed", req, err)
		return nil, err
	}

	s.invalidate(ctx, req.EdgeTable)
	s.log.Debug("edge created",
		slog.String("edge_table", req.EdgeTable),
		slog.String("source", req.Source),
		slog.String("destination", req.Destination),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// RelateBatch creates every edge concurrently. Outcomes are in request
// order; failures do not abort the rest of the batch.
func (s *Service) RelateBatch(ctx context.Context, reqs []surql.RelateRequest) []surql.Outcome {
	ctx, span := tracing.Start(ctx, "graph.relate_batch")
	defer span.End()

	start := time.Now()
	outcomes := s.async.RelateAll(ctx, reqs, s.opts.BatchConcurrency)

	touched := make(map[string]bool)
	failed := 0
	for i, out := range outcomes {
		observeRelate(reqs[i].EdgeTable, modeBatch, start, out.Err)
		if out.Err != nil {
			failed++
			s.logFailure("batch relate item failed", reqs[i], out.Err)
			continue
		}
		touched[reqs[i].EdgeTable] = true
	}
	for table := range touched {
		s.invalidate(ctx, table)
	}

	s.log.Info("batch relate finished",
		slog.Int("edges", len(reqs)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return outcomes
}

// Lookup identifies a relations or edges read.
type Lookup struct {
	Start     string
	EdgeTable string
	// EndTable applies to relations only; surql.AnyTable matches all.
	EndTable  string
	Direction surql.Direction
}

func (l Lookup) cacheKey(kind string) string {
	return fmt.Sprintf("graph:%s:%s:%s:%s:%s", kind, l.Direction, l.Start, l.EdgeTable, l.EndTable)
}

// Relations returns the records reached from Start. Results are cached per
// lookup until an edge of the same table is created or the TTL expires.
// The second return value reports a cache hit.
func (s *Service) Relations(ctx context.Context, l Lookup) (any, bool, error) {
	if l.EndTable == "" {
		l.EndTable = surql.AnyTable
	}
	ctx, span := tracing.Start(ctx, "graph.relations",
		tracing.AttrEdgeTable.String(l.EdgeTable),
		tracing.AttrSource.String(l.Start),
	)
	defer span.End()

	key := l.cacheKey("relations")
	if s.cachingEnabled() {
		var cached any
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.Warn("relations cache read failed", logger.Error(err))
		}
		if hit {
			cacheLookups.WithLabelValues("hit").Inc()
			return cached, true, nil
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}

	result, err := s.graph.Relations(ctx, l.Start, l.EdgeTable, l.EndTable, l.Direction)
	if err != nil {
		tracing.Fail(span, err)
		return nil, false, err
	}

	if s.cachingEnabled() {
		if err := s.cache.SetJSON(ctx, key, result, s.opts.CacheTTL, edgeTag(l.EdgeTable)); err != nil {
			s.log.Warn("relations cache write failed", logger.Error(err))
		}
	}
	return result, false, nil
}

// Edges returns the edge records attached to Start. Not cached.
func (s *Service) Edges(ctx context.Context, l Lookup) (any, error) {
	ctx, span := tracing.Start(ctx, "graph.edges",
		tracing.AttrEdgeTable.String(l.EdgeTable),
		tracing.AttrSource.String(l.Start),
	)
	defer span.End()

	result, err := s.graph.Edges(ctx, l.Start, l.EdgeTable, l.Direction)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return result, nil
}

// Submit validates req and queues it for the worker.
func (s *Service) Submit(ctx context.Context, req surql.RelateRequest) (*jobs.Job, error) {
	if s.queue == nil {
		return nil, apperror.ErrUnavailable.WithMessage("background tasks are not available")
	}
	if err := validate(req); err != nil {
		observeRelate(req.EdgeTable, modeTask, time.Now(), err)
		return nil, err
	}

	job, err := s.queue.Enqueue(ctx, TaskRelate, req)
	if err != nil {
		return nil, apperror.ErrUnavailable.WithMessage("could not queue task").WithInternal(err)
	}
	s.log.Info("relate task queued",
		slog.String("task_id", job.ID),
		slog.String("edge_table", req.EdgeTable))
	return job, nil
}

// Task returns a queued relate task.
func (s *Service) Task(ctx context.Context, id string) (*jobs.Job, error) {
	if s.queue == nil {
		return nil, apperror.ErrUnavailable.WithMessage("background tasks are not available")
	}
	job, err := s.queue.Get(ctx, id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		return nil, apperror.ErrTaskNotFound.WithMessage(fmt.Sprintf("task '%s' not found", id))
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// HandleRelateTask executes a queued relate. Invalid requests are failed
// without retry; store errors follow the queue's retry policy.
func (s *Service) HandleRelateTask(ctx context.Context, job *jobs.Job) (any, error) {
	var req surql.RelateRequest
	if err := job.Decode(&req); err != nil {
		return nil, jobs.Permanent(fmt.Errorf("decode relate task: %w", err))
	}

	result, err := s.relate(ctx, req, modeTask)
	if err != nil {
		if errors.Is(err, surql.ErrInvalidReference) || errors.Is(err, surql.ErrInvalidPayload) {
			return nil, jobs.Permanent(err)
		}
		return nil, err
	}
	return result, nil
}

// validate checks a request the same way the controller does, without
// submitting anything.
func validate(req surql.RelateRequest) error {
	_, err := surql.NewBuilder().Relate(req)
	return err
}

// InvalidateEdges drops cached lookups of the given edge tables. Writers that
// bypass the service, like the knowledge seeder, call it after writing edges.
func (s *Service) InvalidateEdges(ctx context.Context, edgeTables ...string) {
	for _, t := range edgeTables {
		s.invalidate(ctx, t)
	}
}

func (s *Service) cachingEnabled() bool {
	return s.cache != nil && s.opts.CacheTTL > 0
}

func (s *Service) invalidate(ctx context.Context, edgeTable string) {
	if s.cache == nil {
		return
	}
	n, err := s.cache.InvalidateTag(ctx, edgeTag(edgeTable))
	if err != nil {
		s.log.Warn("relations cache invalidation failed",
			slog.String("edge_table", edgeTable),
			logger.Error(err))
		return
	}
	if n > 0 {
		s.log.Debug("relations cache invalidated",
			slog.String("edge_table", edgeTable),
			slog.Int64("keys", n))
	}
}

func (s *Service) logFailure(msg string, req surql.RelateRequest, err error) {
	attrs := []any{
		slog.String("edge_table", req.EdgeTable),
		slog.String("source", req.Source),
		slog.String("destination", req.Destination),
		logger.Error(err),
	}
	var storeErr *surql.StoreError
	if errors.As(err, &storeErr) {
		s.log.Error(msg, append(attrs, logger.Query(storeErr.Statement))...)
		return
	}
	s.log.Warn(msg, attrs...)
}

func edgeTag(edgeTable string) string {
	return "edge:" + edgeTable
}
