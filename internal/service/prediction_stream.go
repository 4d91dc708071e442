package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/port/producer"
	"github.com/satorinet/neuronfeed/internal/port/sink"
)

const streamPredictions = "predictions"

// PredictionStreamer serves the prediction update stream. Only the most
// recently opened connection forwards updates; older ones receive the
// superseded frame and end.
type PredictionStreamer struct {
	gens      *GenerationRegistry
	source    producer.Source
	binder    *Binder
	heartbeat time.Duration
	metrics   *cfotel.Metrics
}

// NewPredictionStreamer wires a streamer. A zero heartbeat disables keep-alives.
func NewPredictionStreamer(gens *GenerationRegistry, source producer.Source, binder *Binder, heartbeat time.Duration, metrics *cfotel.Metrics) *PredictionStreamer {
	return &PredictionStreamer{
		gens:      gens,
		source:    source,
		binder:    binder,
		heartbeat: heartbeat,
		metrics:   metrics,
	}
}

// Serve runs one connection until it is superseded, the client leaves or a
// write fails. Placeholder and supersession outcomes return a nil error.
func (s *PredictionStreamer) Serve(ctx context.Context, out sink.Sink) (Outcome, error) {
	start := time.Now()
	s.metrics.StreamOpened(ctx, streamPredictions)

	gen, genCtx := s.gens.Begin(ctx)
	defer s.gens.End(gen)

	outcome, err := s.serve(genCtx, gen, out)

	s.metrics.StreamClosed(ctx, streamPredictions, string(outcome), time.Since(start))
	slog.DebugContext(ctx, "prediction stream finished",
		"generation", uint64(gen.Token),
		"outcome", string(outcome),
	)
	return outcome, err
}

func (s *PredictionStreamer) serve(ctx context.Context, gen Generation, out sink.Sink) (Outcome, error) {
	producers, err := s.source.Producers(ctx)
	switch {
	case errors.Is(err, feed.ErrEngineNotReady):
		return s.placeholder(ctx, out, "demo", feed.DemoPlaceholder())
	case errors.Is(err, feed.ErrNoProducers):
		return s.placeholder(ctx, out, "empty", feed.EmptyPlaceholder())
	case err != nil:
		return OutcomeFailed, fmt.Errorf("list producers: %w", err)
	case len(producers) == 0:
		return s.placeholder(ctx, out, "empty", feed.EmptyPlaceholder())
	}

	ch := NewFanIn()
	defer ch.Close()

	binding, err := s.binder.Bind(ctx, producers, ch)
	if err != nil {
		return OutcomeFailed, err
	}
	defer binding.Release()

	return s.loop(ctx, gen, ch, out)
}

func (s *PredictionStreamer) loop(ctx context.Context, gen Generation, ch *FanIn, out sink.Sink) (Outcome, error) {
	stale := func(ctx context.Context) bool {
		return Superseded(ctx) || !s.gens.IsCurrent(gen.Token)
	}
	outcome, err := pump(ctx, ch, out, s.heartbeat, streamPredictions, s.metrics, stale)
	if outcome == OutcomeSuperseded {
		return s.supersede(ctx, out)
	}
	return outcome, err
}

// supersede writes the terminal frame. ctx is already cancelled at this
// point, so the write runs detached from it.
func (s *PredictionStreamer) supersede(ctx context.Context, out sink.Sink) (Outcome, error) {
	s.metrics.Superseded(ctx)
	if err := out.Send(context.WithoutCancel(ctx), feed.Superseded()); err != nil {
		slog.DebugContext(ctx, "superseded frame not delivered", "error", err)
	}
	return OutcomeSuperseded, nil
}

func (s *PredictionStreamer) placeholder(ctx context.Context, out sink.Sink, kind string, env feed.Envelope) (Outcome, error) {
	s.metrics.Placeholder(ctx, kind)
	if err := out.Send(ctx, env); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: placeholder: %w", feed.ErrForwarding, err)
	}
	return OutcomePlaceholder, nil
}
