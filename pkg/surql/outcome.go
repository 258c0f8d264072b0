package surql

import "context"

// Outcome is the eventual result of an asynchronous submission.
type Outcome struct {
	Result any
	Err    error
}

// Resolved returns a buffered channel that already holds the outcome.
func Resolved(result any, err error) <-chan Outcome {
	ch := make(chan Outcome, 1)
	ch <- Outcome{Result: result, Err: err}
	close(ch)
	return ch
}

// Await blocks until the outcome arrives or ctx is done.
func Await(ctx context.Context, ch <-chan Outcome) (any, error) {
	select {
	case out, ok := <-ch:
		if !ok {
			return nil, context.Canceled
		}
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Querier submits one statement and blocks for its result.
type Querier interface {
	Query(ctx context.Context, sql string, vars map[string]any) (any, error)
}

// AsyncQuerier wraps a Querier so every submission runs on its own goroutine.
type AsyncQuerier struct {
	q Querier
}

// AsyncFrom adapts a blocking session to the asynchronous interface.
func AsyncFrom(q Querier) *AsyncQuerier {
	return &AsyncQuerier{q: q}
}

// QueryAsync submits the statement and returns immediately.
func (a *AsyncQuerier) QueryAsync(ctx context.Context, sql string, vars map[string]any) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := a.q.Query(ctx, sql, vars)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}
