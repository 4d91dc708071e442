package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/port/producer"
)

// Binder attaches forwarding callbacks from producers to one connection's
// fan-in queue and tracks how many subscriptions are alive process-wide.
type Binder struct {
	active  atomic.Int64
	metrics *cfotel.Metrics
}

// NewBinder creates a Binder. metrics may be nil.
func NewBinder(metrics *cfotel.Metrics) *Binder {
	return &Binder{metrics: metrics}
}

// Active returns the number of subscriptions not yet released.
func (b *Binder) Active() int64 {
	return b.active.Load()
}

// Binding owns the subscriptions made for one connection.
type Binding struct {
	binder  *Binder
	cancels []func()
	once    sync.Once
}

// Bind subscribes one callback per producer. Each callback encodes non-nil
// values and pushes them onto ch. If any subscription fails, the ones already
// made are released before the error is returned.
func (b *Binder) Bind(ctx context.Context, producers []producer.Producer, ch *FanIn) (*Binding, error) {
	spanCtx, span := cfotel.StartBindSpan(ctx, len(producers))
	defer span.End()

	bd := &Binding{binder: b, cancels: make([]func(), 0, len(producers))}
	for _, p := range producers {
		cancel, err := p.Subscribe(ctx, b.forward(ctx, p.Name(), ch))
		if err != nil {
			span.RecordError(err)
			bd.Release()
			return nil, fmt.Errorf("subscribe %s: %w", p.Name(), err)
		}
		bd.cancels = append(bd.cancels, cancel)
		b.active.Add(1)
		b.metrics.SubscriptionsChanged(spanCtx, 1)
	}
	return bd, nil
}

func (b *Binder) forward(ctx context.Context, name string, ch *FanIn) producer.Callback {
	return func(v any) {
		if isNilValue(v) {
			return
		}
		env, err := feed.EncodeValue(v)
		if err != nil {
			slog.WarnContext(ctx, "skipping unencodable update", "producer", name, "error", err)
			return
		}
		ch.Push(env)
	}
}

// Len returns the number of subscriptions held.
func (bd *Binding) Len() int {
	return len(bd.cancels)
}

// Release cancels every subscription, newest first. Safe to call more than once.
func (bd *Binding) Release() {
	bd.once.Do(func() {
		for i := len(bd.cancels) - 1; i >= 0; i-- {
			bd.cancels[i]()
		}
		n := int64(len(bd.cancels))
		if n > 0 {
			bd.binder.active.Add(-n)
			bd.binder.metrics.SubscriptionsChanged(context.Background(), -n)
		}
	})
}

func isNilValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case feed.Update:
		return x == nil
	case []byte:
		return x == nil
	}
	return false
}
