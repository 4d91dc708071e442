package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "neuronfeed"

// StartStreamSpan starts a span covering one streaming connection.
func StartStreamSpan(ctx context.Context, stream, connID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stream."+stream,
		trace.WithAttributes(
			attribute.String("stream.name", stream),
			attribute.String("stream.conn_id", connID),
		),
	)
}

// StartBindSpan starts a span for subscribing one connection to its producers.
func StartBindSpan(ctx context.Context, producers int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "bind",
		trace.WithAttributes(attribute.Int("bind.producers", producers)),
	)
}

// StartCatalogSpan starts a span for a model catalog operation.
func StartCatalogSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "catalog."+op,
		trace.WithAttributes(attribute.String("catalog.op", op)),
	)
}

// OutcomeAttr labels a stream span with how the connection ended.
func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("stream.outcome", outcome)
}
