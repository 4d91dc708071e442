package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "neuronfeed"

// Metrics holds all neuronfeed metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	StreamsOpened       metric.Int64Counter
	StreamsSuperseded   metric.Int64Counter
	Placeholders        metric.Int64Counter
	FramesForwarded     metric.Int64Counter
	ForwardFailures     metric.Int64Counter
	SubscriptionsActive metric.Int64UpDownCounter
	StreamDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetricsFrom(otel.Meter(meterName))
}

func newMetricsFrom(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.StreamsOpened, err = meter.Int64Counter("neuronfeed.streams.opened",
		metric.WithDescription("Number of streaming connections opened"))
	if err != nil {
		return nil, err
	}

	m.StreamsSuperseded, err = meter.Int64Counter("neuronfeed.streams.superseded",
		metric.WithDescription("Number of prediction streams ended by a newer generation"))
	if err != nil {
		return nil, err
	}

	m.Placeholders, err = meter.Int64Counter("neuronfeed.streams.placeholders",
		metric.WithDescription("Number of placeholder frames sent instead of a live stream"))
	if err != nil {
		return nil, err
	}

	m.FramesForwarded, err = meter.Int64Counter("neuronfeed.frames.forwarded",
		metric.WithDescription("Number of frames written to clients"))
	if err != nil {
		return nil, err
	}

	m.ForwardFailures, err = meter.Int64Counter("neuronfeed.frames.failed",
		metric.WithDescription("Number of frames that could not be encoded or written"))
	if err != nil {
		return nil, err
	}

	m.SubscriptionsActive, err = meter.Int64UpDownCounter("neuronfeed.subscriptions.active",
		metric.WithDescription("Producer subscriptions currently held by open connections"))
	if err != nil {
		return nil, err
	}

	m.StreamDuration, err = meter.Float64Histogram("neuronfeed.stream.duration_seconds",
		metric.WithDescription("Streaming connection lifetime in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func streamAttr(stream string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("stream", stream))
}

// StreamOpened records a new connection on the named stream.
func (m *Metrics) StreamOpened(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.StreamsOpened.Add(ctx, 1, streamAttr(stream))
}

// StreamClosed records the lifetime of a finished connection and how it ended.
func (m *Metrics) StreamClosed(ctx context.Context, stream, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StreamDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stream", stream),
		attribute.String("outcome", outcome),
	))
}

// Superseded records a prediction stream ended by supersession.
func (m *Metrics) Superseded(ctx context.Context) {
	if m == nil {
		return
	}
	m.StreamsSuperseded.Add(ctx, 1)
}

// Placeholder records a placeholder response of the given kind.
func (m *Metrics) Placeholder(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Placeholders.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Forwarded records one frame written to a client.
func (m *Metrics) Forwarded(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.FramesForwarded.Add(ctx, 1, streamAttr(stream))
}

// ForwardFailed records one frame that could not be delivered.
func (m *Metrics) ForwardFailed(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.ForwardFailures.Add(ctx, 1, streamAttr(stream))
}

// SubscriptionsChanged adjusts the live subscription gauge by delta.
func (m *Metrics) SubscriptionsChanged(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.SubscriptionsActive.Add(ctx, delta)
}
