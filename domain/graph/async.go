package graph

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/medgraph/medgraph/pkg/surql"
)

// AsyncController is the non-blocking counterpart of Controller. Every
// method returns immediately; the outcome arrives on the returned channel.
// Validation failures are delivered the same way, without a submission.
type AsyncController struct {
	session AsyncSession
	builder *surql.Builder
}

// NewAsyncController returns an AsyncController bound to session.
func NewAsyncController(session AsyncSession, builder *surql.Builder) *AsyncController {
	if builder == nil {
		builder = surql.NewBuilder()
	}
	return &AsyncController{session: session, builder: builder}
}

// Relate submits the same statement Controller.Relate would.
func (c *AsyncController) Relate(ctx context.Context, source, edgeTable, destination string, payload map[string]any) <-chan surql.Outcome {
	stmt, err := c.builder.Relate(surql.RelateRequest{
		Source:      source,
		EdgeTable:   edgeTable,
		Destination: destination,
		Payload:     payload,
	})
	return c.submit(ctx, stmt, err)
}

// Relations is the asynchronous form of Controller.Relations.
func (c *AsyncController) Relations(ctx context.Context, start, edgeTable, endTable string, dir surql.Direction) <-chan surql.Outcome {
	stmt, err := c.builder.Relations(start, edgeTable, endTable, dir)
	return c.submit(ctx, stmt, err)
}

// Edges is the asynchronous form of Controller.Edges.
func (c *AsyncController) Edges(ctx context.Context, start, edgeTable string, dir surql.Direction) <-chan surql.Outcome {
	stmt, err := c.builder.Edges(start, edgeTable, dir)
	return c.submit(ctx, stmt, err)
}

func (c *AsyncController) submit(ctx context.Context, stmt surql.Statement, err error) <-chan surql.Outcome {
	if err != nil {
		return surql.Resolved(nil, err)
	}
	return c.session.QueryAsync(ctx, stmt.Text, stmt.Vars)
}

// RelateAll submits every request, at most limit at a time (limit <= 0 means
// unbounded), and waits for all of them. Outcomes are in request order; one
// failure does not stop the others.
func (c *AsyncController) RelateAll(ctx context.Context, reqs []surql.RelateRequest, limit int) []surql.Outcome {
	out := make([]surql.Outcome, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			res, err := surql.Await(ctx, c.Relate(ctx, req.Source, req.EdgeTable, req.Destination, req.Payload))
			out[i] = surql.Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
