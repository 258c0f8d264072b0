package database

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/medgraph/medgraph/pkg/logger"
	"github.com/medgraph/medgraph/pkg/surql"
	"github.com/medgraph/medgraph/pkg/tracing"
)

// slowQueryThreshold marks queries that are logged at warn level
const slowQueryThreshold = 3 * time.Second

// QueryFunc executes one SurrealQL submission against a connected database.
type QueryFunc func(ctx context.Context, sql string, vars map[string]any) (any, error)

// Session is the store adapter handed to graph controllers. It adds tracing,
// metrics, a per-query timeout and query logging around a QueryFunc, and wraps
// every driver failure in *surql.StoreError.
//
// A Session is safe for concurrent use when its QueryFunc is.
type Session struct {
	name    string
	query   QueryFunc
	timeout time.Duration
	log     *slog.Logger
}

// NewSession wraps query under the given database name.
// A zero timeout leaves the caller's deadline untouched.
func NewSession(name string, query QueryFunc, timeout time.Duration, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		name:    name,
		query:   query,
		timeout: timeout,
		log:     log.With(logger.Scope("surrealdb"), slog.String("db", name)),
	}
}

// Name returns the logical database this session is bound to.
func (s *Session) Name() string { return s.name }

// Query submits sql once and returns the driver result.
func (s *Session) Query(ctx context.Context, sql string, vars map[string]any) (any, error) {
	op := statementOp(sql)

	ctx, span := tracing.Start(ctx, "surrealdb.query",
		tracing.AttrDBOp.String(op),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.query(ctx, sql, vars)
	duration := time.Since(start)

	queryDuration.WithLabelValues(s.name, op).Observe(duration.Seconds())

	if err != nil {
		queriesTotal.WithLabelValues(s.name, op, "error").Inc()
		storeErr := &surql.StoreError{Op: op, Statement: sql, Err: err}
		tracing.Fail(span, storeErr)
		s.log.Error("query error",
			logger.Query(sql),
			slog.Duration("duration", duration),
			logger.Error(err),
		)
		return nil, storeErr
	}
	queriesTotal.WithLabelValues(s.name, op, "ok").Inc()

	if duration > slowQueryThreshold {
		s.log.Warn("slow query",
			logger.Query(sql),
			slog.Duration("duration", duration),
		)
	} else {
		s.log.Debug("query",
			logger.Query(sql),
			slog.Duration("duration", duration),
		)
	}
	return res, nil
}

// QueryAsync submits sql on its own goroutine.
func (s *Session) QueryAsync(ctx context.Context, sql string, vars map[string]any) <-chan surql.Outcome {
	return surql.AsyncFrom(s).QueryAsync(ctx, sql, vars)
}

// Ping round-trips a trivial statement.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Query(ctx, "RETURN true", nil)
	return err
}

// statementOp returns the lower-cased leading keyword, e.g. "relate".
func statementOp(sql string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	word = strings.ToLower(word)
	switch word {
	case "relate", "select", "upsert", "create", "update", "delete", "return", "info", "define", "remove":
		return word
	case "":
		return "empty"
	}
	return "other"
}
