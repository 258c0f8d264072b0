// Package graph creates and reads edges of the medical knowledge graph.
//
// The Controller and AsyncController are thin data-access objects: they
// validate references, build one SurrealQL statement and submit it exactly
// once through an injected session. They never log, retry or interpret the
// store's reply. The Service adds logging, tracing, metrics, caching and
// background submission on top and backs the HTTP handlers.
package graph

import (
	"context"

	"github.com/medgraph/medgraph/pkg/surql"
)

// Session submits one statement and blocks until the store replies.
// *database.Session implements it.
type Session interface {
	Query(ctx context.Context, sql string, vars map[string]any) (any, error)
}

// AsyncSession submits one statement and returns before the store replies.
type AsyncSession interface {
	QueryAsync(ctx context.Context, sql string, vars map[string]any) <-chan surql.Outcome
}

// Controller issues graph statements through a blocking session.
type Controller struct {
	session Session
	builder *surql.Builder
}

// NewController returns a Controller bound to session. A nil builder means
// store-generated ULID edge ids and bound payload values.
func NewController(session Session, builder *surql.Builder) *Controller {
	if builder == nil {
		builder = surql.NewBuilder()
	}
	return &Controller{session: session, builder: builder}
}

// Relate creates an edge of edgeTable from source to destination, e.g.
//
//	RELATE person:123 -> order:ulid() -> product:456 SET qty = $v0
//
// Invalid references or payload keys fail before the session is touched.
// The store's raw result and error are returned unchanged.
func (c *Controller) Relate(ctx context.Context, source, edgeTable, destination string, payload map[string]any) (any, error) {
	stmt, err := c.builder.Relate(surql.RelateRequest{
		Source:      source,
		EdgeTable:   edgeTable,
		Destination: destination,
		Payload:     payload,
	})
	if err != nil {
		return nil, err
	}
	return c.session.Query(ctx, stmt.Text, stmt.Vars)
}

// Relations returns the records reached from start over edgeTable.
// endTable may be surql.AnyTable.
func (c *Controller) Relations(ctx context.Context, start, edgeTable, endTable string, dir surql.Direction) (any, error) {
	stmt, err := c.builder.Relations(start, edgeTable, endTable, dir)
	if err != nil {
		return nil, err
	}
	return c.session.Query(ctx, stmt.Text, stmt.Vars)
}

// Edges returns the edge records of edgeTable attached to start.
func (c *Controller) Edges(ctx context.Context, start, edgeTable string, dir surql.Direction) (any, error) {
	stmt, err := c.builder.Edges(start, edgeTable, dir)
	if err != nil {
		return nil, err
	}
	return c.session.Query(ctx, stmt.Text, stmt.Vars)
}

// Upsert writes a node record. Used to seed graph nodes before relating them.
func (c *Controller) Upsert(ctx context.Context, record string, fields map[string]any) (any, error) {
	stmt, err := c.builder.Upsert(record, fields)
	if err != nil {
		return nil, err
	}
	return c.session.Query(ctx, stmt.Text, stmt.Vars)
}
