package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/medgraph/medgraph/internal/cache"
	"github.com/medgraph/medgraph/internal/jobs"
	"github.com/medgraph/medgraph/pkg/apperror"
	"github.com/medgraph/medgraph/pkg/surql"
)

type ServiceSuite struct {
	suite.Suite
	mr      *miniredis.Miniredis
	client  *redis.Client
	session *recordingSession
	queue   *jobs.Queue
	svc     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.session = &recordingSession{result: []any{map[string]any{"id": "HAS_SYMPTOM:1"}}}
	s.queue = jobs.NewQueue(s.client, jobs.QueueConfig{Name: "test:tasks", MaxAttempts: 1}, nil)

	s.svc = NewService(
		NewController(s.session, nil),
		NewAsyncController(s.session, nil),
		cache.New(s.client, "test:cache", nil),
		s.queue,
		ServiceOptions{CacheTTL: time.Minute, BatchConcurrency: 2},
		nil,
	)
}

func (s *ServiceSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *ServiceSuite) relateReq() surql.RelateRequest {
	return surql.RelateRequest{Source: "symptom:fatigue", EdgeTable: "HAS_SYMPTOM", Destination: "diagnosis:flu"}
}

func (s *ServiceSuite) TestRelate() {
	res, err := s.svc.Relate(context.Background(), s.relateReq())
	s.Require().NoError(err)
	s.Equal(s.session.result, res)
	s.Len(s.session.recorded(), 1)
}

func (s *ServiceSuite) TestRelate_ErrorReturnedUnchanged() {
	storeErr := &surql.StoreError{Op: "relate", Statement: "RELATE ...", Err: errors.New("refused")}
	s.session.err = storeErr

	_, err := s.svc.Relate(context.Background(), s.relateReq())
	s.Same(storeErr, err)
}

func (s *ServiceSuite) TestRelations_CachedUntilRelate() {
	ctx := context.Background()
	lookup := Lookup{Start: "diagnosis:flu", EdgeTable: "HAS_SYMPTOM", Direction: surql.In}

	_, cached, err := s.svc.Relations(ctx, lookup)
	s.Require().NoError(err)
	s.False(cached)

	_, cached, err = s.svc.Relations(ctx, lookup)
	s.Require().NoError(err)
	s.True(cached)
	s.Len(s.session.recorded(), 1, "second lookup is served from cache")

	_, err = s.svc.Relate(ctx, s.relateReq())
	s.Require().NoError(err)

	_, cached, err = s.svc.Relations(ctx, lookup)
	s.Require().NoError(err)
	s.False(cached, "relate invalidates lookups of the same edge table")
	s.Len(s.session.recorded(), 3)
}

func (s *ServiceSuite) TestRelations_DefaultsToAnyTable() {
	_, _, err := s.svc.Relations(context.Background(), Lookup{Start: "diagnosis:flu", EdgeTable: "HAS_SYMPTOM", Direction: surql.In})
	s.Require().NoError(err)
	s.Equal("SELECT <-HAS_SYMPTOM<-? FROM diagnosis:flu", s.session.recorded()[0].sql)
}

func (s *ServiceSuite) TestRelations_ErrorsAreNotCached() {
	s.session.err = &surql.StoreError{Op: "select", Err: errors.New("down")}
	lookup := Lookup{Start: "diagnosis:flu", EdgeTable: "HAS_SYMPTOM", Direction: surql.Out}

	_, _, err := s.svc.Relations(context.Background(), lookup)
	s.Error(err)

	s.session.err = nil
	_, cached, err := s.svc.Relations(context.Background(), lookup)
	s.Require().NoError(err)
	s.False(cached)
}

func (s *ServiceSuite) TestEdges() {
	_, err := s.svc.Edges(context.Background(), Lookup{Start: "medication:warfarin", EdgeTable: "CONTRAINDICATED_FOR", Direction: surql.Out})
	s.Require().NoError(err)
	s.Equal("SELECT ->CONTRAINDICATED_FOR.* FROM medication:warfarin", s.session.recorded()[0].sql)
}

func (s *ServiceSuite) TestRelateBatch() {
	reqs := []surql.RelateRequest{
		s.relateReq(),
		{Source: "nope", EdgeTable: "TREATS", Destination: "diagnosis:flu"},
	}

	outcomes := s.svc.RelateBatch(context.Background(), reqs)
	s.Require().Len(outcomes, 2)
	s.NoError(outcomes[0].Err)
	s.ErrorIs(outcomes[1].Err, surql.ErrInvalidReference)
	s.Len(s.session.recorded(), 1)
}

func (s *ServiceSuite) TestSubmitAndRunTask() {
	ctx := context.Background()
	req := s.relateReq()
	req.Payload = map[string]any{"weight": "high"}

	job, err := s.svc.Submit(ctx, req)
	s.Require().NoError(err)
	s.Equal(TaskRelate, job.Kind)
	s.Empty(s.session.recorded(), "submission does not touch the store")

	w := jobs.NewWorker(jobs.DefaultWorkerConfig("test"), s.queue, nil)
	w.Handle(TaskRelate, s.svc.HandleRelateTask)

	n, err := w.ProcessBatch(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	calls := s.session.recorded()
	s.Require().Len(calls, 1)
	s.Equal("RELATE symptom:fatigue -> HAS_SYMPTOM:ulid() -> diagnosis:flu SET weight = $v0", calls[0].sql)

	task, err := s.svc.Task(ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(jobs.StatusCompleted, task.Status)
	s.JSONEq(`[{"id":"HAS_SYMPTOM:1"}]`, string(task.Result))
}

func (s *ServiceSuite) TestSubmit_RejectsInvalidRequest() {
	_, err := s.svc.Submit(context.Background(), surql.RelateRequest{Source: "x", EdgeTable: "e", Destination: "b:2"})
	s.ErrorIs(err, surql.ErrInvalidReference)

	stats, err := s.queue.GetStats(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(0), stats.Pending)
}

func (s *ServiceSuite) TestTask_NotFound() {
	_, err := s.svc.Task(context.Background(), "missing")

	var appErr *apperror.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal("task_not_found", appErr.Code)
}

func (s *ServiceSuite) TestHandleRelateTask_StoreFailureIsRetryable() {
	s.session.err = &surql.StoreError{Op: "relate", Err: errors.New("refused")}
	payload, err := json.Marshal(s.relateReq())
	s.Require().NoError(err)

	_, err = s.svc.HandleRelateTask(context.Background(), &jobs.Job{ID: "1", Kind: TaskRelate, Payload: payload})
	s.Error(err)
	s.False(jobs.IsPermanent(err))
}

func (s *ServiceSuite) TestHandleRelateTask_InvalidIsPermanent() {
	payload, err := json.Marshal(surql.RelateRequest{Source: "bad", EdgeTable: "e", Destination: "b:2"})
	s.Require().NoError(err)

	_, err = s.svc.HandleRelateTask(context.Background(), &jobs.Job{ID: "1", Kind: TaskRelate, Payload: payload})
	s.True(jobs.IsPermanent(err))
	s.ErrorIs(err, surql.ErrInvalidReference)

	_, err = s.svc.HandleRelateTask(context.Background(), &jobs.Job{ID: "2", Kind: TaskRelate})
	s.True(jobs.IsPermanent(err))
}

func TestService_WithoutQueue(t *testing.T) {
	svc := NewService(NewController(&recordingSession{}, nil), NewAsyncController(&recordingSession{}, nil), nil, nil, ServiceOptions{}, nil)

	_, err := svc.Submit(context.Background(), surql.RelateRequest{Source: "a:1", EdgeTable: "e", Destination: "b:2"})
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "service_unavailable", appErr.Code)

	_, err = svc.Task(context.Background(), "x")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "service_unavailable", appErr.Code)
}

func TestService_WithoutCache(t *testing.T) {
	session := &recordingSession{}
	svc := NewService(NewController(session, nil), NewAsyncController(session, nil), nil, nil, ServiceOptions{CacheTTL: time.Minute}, nil)
	lookup := Lookup{Start: "a:1", EdgeTable: "e", Direction: surql.Out}

	for i := 0; i < 2; i++ {
		_, cached, err := svc.Relations(context.Background(), lookup)
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Len(t, session.recorded(), 2)
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "ok", outcomeLabel(nil))
	assert.Equal(t, "invalid", outcomeLabel(&surql.InvalidReferenceError{Role: "source"}))
	assert.Equal(t, "invalid", outcomeLabel(&surql.InvalidPayloadError{Key: "k"}))
	assert.Equal(t, "store_error", outcomeLabel(&surql.StoreError{Op: "relate", Err: errors.New("x")}))
	assert.Equal(t, "error", outcomeLabel(errors.New("x")))
}
