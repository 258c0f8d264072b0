// Package tracing is the single entry point domain code uses to open spans.
//
// Without a registered TracerProvider the global no-op provider is used, so
// calls are inert in tests and in local runs without an OTLP endpoint.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "medgraph"

// Attribute keys shared across packages.
const (
	AttrEdgeTable = attribute.Key("medgraph.graph.edge_table")
	AttrSource    = attribute.Key("medgraph.graph.source")
	AttrTarget    = attribute.Key("medgraph.graph.destination")
	AttrTaskID    = attribute.Key("medgraph.task.id")
	AttrTaskKind  = attribute.Key("medgraph.task.kind")
	AttrDBOp      = attribute.Key("db.operation.name")
)

// Start creates a span as a child of the span in ctx. The caller must end it.
//
//	ctx, span := tracing.Start(ctx, "graph.relate",
//	    tracing.AttrEdgeTable.String(edge),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it as errored. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
