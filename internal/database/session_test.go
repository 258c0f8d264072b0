package database

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medgraph/medgraph/pkg/surql"
)

type call struct {
	sql  string
	vars map[string]any
}

func recorder(result any, err error) (QueryFunc, *[]call) {
	calls := &[]call{}
	return func(_ context.Context, sql string, vars map[string]any) (any, error) {
		*calls = append(*calls, call{sql: sql, vars: vars})
		return result, err
	}, calls
}

func TestSession_QueryPassesThrough(t *testing.T) {
	want := []any{map[string]any{"id": "HAS_SYMPTOM:01J"}}
	q, calls := recorder(want, nil)
	s := NewSession("graph", q, 0, slog.Default())

	vars := map[string]any{"v0": "note"}
	got, err := s.Query(context.Background(), "RELATE a:1 -> e:ulid() -> b:2 SET note = $v0", vars)

	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, *calls, 1)
	assert.Equal(t, "RELATE a:1 -> e:ulid() -> b:2 SET note = $v0", (*calls)[0].sql)
	assert.Equal(t, vars, (*calls)[0].vars)
}

func TestSession_WrapsDriverErrors(t *testing.T) {
	cause := errors.New("websocket: close 1006")
	q, calls := recorder(nil, cause)
	s := NewSession("graph", q, 0, slog.Default())

	_, err := s.Query(context.Background(), "RELATE a:1 -> e:ulid() -> b:2", nil)

	var storeErr *surql.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "relate", storeErr.Op)
	assert.Equal(t, "RELATE a:1 -> e:ulid() -> b:2", storeErr.Statement)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, *calls, 1, "driver errors must not be retried")
}

func TestSession_Timeout(t *testing.T) {
	q := func(ctx context.Context, _ string, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := NewSession("graph", q, 20*time.Millisecond, slog.Default())

	_, err := s.Query(context.Background(), "SELECT * FROM person", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, surql.IsStoreError(err))
}

func TestSession_QueryAsync(t *testing.T) {
	q, calls := recorder("ok", nil)
	s := NewSession("graph", q, 0, slog.Default())

	res, err := surql.Await(context.Background(), s.QueryAsync(context.Background(), "RETURN true", nil))

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Len(t, *calls, 1)
}

func TestSession_Ping(t *testing.T) {
	q, calls := recorder(true, nil)
	s := NewSession("records", q, 0, nil)

	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "RETURN true", (*calls)[0].sql)
	assert.Equal(t, "records", s.Name())
}

func TestStatementOp(t *testing.T) {
	tests := map[string]string{
		"RELATE a:1 -> e:ulid() -> b:2":  "relate",
		"  select ->e->b FROM a:1":       "select",
		"UPSERT symptom:fatigue SET x=1": "upsert",
		"RETURN true":                    "return",
		"BEGIN TRANSACTION":              "other",
		"":                               "empty",
	}
	for sql, want := range tests {
		assert.Equal(t, want, statementOp(sql), sql)
	}
}
