package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/port/producer"
	"github.com/satorinet/neuronfeed/internal/port/sink"
)

const streamStatus = "status"

// StatusStreamer serves the engine status stream. Messages are buffered per
// connection and flushed on a fixed interval; the end sentinel stops the loop.
type StatusStreamer struct {
	status  producer.Emitter
	poll    time.Duration
	metrics *cfotel.Metrics
}

// NewStatusStreamer wires a streamer over the status producer.
func NewStatusStreamer(status producer.Emitter, poll time.Duration, metrics *cfotel.Metrics) *StatusStreamer {
	if poll <= 0 {
		poll = time.Second
	}
	return &StatusStreamer{status: status, poll: poll, metrics: metrics}
}

// statusBuffer collects producer messages between polls.
type statusBuffer struct {
	mu    sync.Mutex
	items []any
}

func (b *statusBuffer) add(v any) {
	b.mu.Lock()
	b.items = append(b.items, v)
	b.mu.Unlock()
}

func (b *statusBuffer) drain() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// Serve streams status messages until the sentinel arrives, the client leaves
// or a write fails. A write failure is logged and not retried.
func (s *StatusStreamer) Serve(ctx context.Context, out sink.Sink) (Outcome, error) {
	start := time.Now()
	s.metrics.StreamOpened(ctx, streamStatus)

	outcome, err := s.serve(ctx, out)
	if err != nil {
		slog.WarnContext(ctx, "status stream failed", "error", err)
	}

	s.metrics.StreamClosed(ctx, streamStatus, string(outcome), time.Since(start))
	return outcome, err
}

func (s *StatusStreamer) serve(ctx context.Context, out sink.Sink) (Outcome, error) {
	buf := &statusBuffer{}
	cancel, err := s.status.Subscribe(ctx, func(v any) {
		if !isNilValue(v) {
			buf.add(v)
		}
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("subscribe %s: %w", s.status.Name(), err)
	}
	defer cancel()

	if err := out.KeepAlive(ctx); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: open: %w", feed.ErrForwarding, err)
	}

	t := time.NewTicker(s.poll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return OutcomeClosed, nil
		case <-t.C:
		}

		for _, v := range buf.drain() {
			if feed.IsSentinel(v) {
				return OutcomeEnded, nil
			}
			env, err := feed.EncodeValue(v)
			if err != nil {
				s.metrics.ForwardFailed(ctx, streamStatus)
				return OutcomeFailed, fmt.Errorf("%w: %w", feed.ErrForwarding, err)
			}
			if err := out.Send(ctx, env); err != nil {
				s.metrics.ForwardFailed(ctx, streamStatus)
				return OutcomeFailed, fmt.Errorf("%w: %w", feed.ErrForwarding, err)
			}
			s.metrics.Forwarded(ctx, streamStatus)
		}
	}
}

// End injects the sentinel into the status producer. Every running status
// stream stops within one poll interval.
func (s *StatusStreamer) End(ctx context.Context) error {
	if err := s.status.Emit(ctx, feed.SentinelWorkingUpdatesEnd); err != nil {
		return fmt.Errorf("emit end sentinel: %w", err)
	}
	slog.InfoContext(ctx, "status streams ended")
	return nil
}
