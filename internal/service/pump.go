package service

import (
	"context"
	"fmt"
	"time"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/port/sink"
)

// pump forwards envelopes from ch to out in FIFO order until ctx ends or a
// write fails. stale, when set, is checked before every forward and when ctx
// ends; a stale connection stops with OutcomeSuperseded and nothing further
// is written.
func pump(ctx context.Context, ch *FanIn, out sink.Sink, heartbeat time.Duration,
	stream string, metrics *cfotel.Metrics, stale func(context.Context) bool,
) (Outcome, error) {
	var tick <-chan time.Time
	if heartbeat > 0 {
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		tick = t.C
	}
	isStale := func() bool { return stale != nil && stale(ctx) }

	for {
		if env, ok := ch.TryPop(); ok {
			if isStale() {
				return OutcomeSuperseded, nil
			}
			if ctx.Err() != nil {
				return OutcomeClosed, nil
			}
			if err := out.Send(ctx, env); err != nil {
				metrics.ForwardFailed(ctx, stream)
				return OutcomeFailed, fmt.Errorf("%w: %w", feed.ErrForwarding, err)
			}
			metrics.Forwarded(ctx, stream)
			continue
		}

		select {
		case <-ctx.Done():
			if isStale() {
				return OutcomeSuperseded, nil
			}
			return OutcomeClosed, nil
		case <-ch.Ready():
		case <-tick:
			if err := out.KeepAlive(ctx); err != nil {
				return OutcomeFailed, fmt.Errorf("%w: keepalive: %w", feed.ErrForwarding, err)
			}
		}
	}
}
