package service

import (
	"context"
	"sync"

	"github.com/satorinet/neuronfeed/internal/domain/feed"
)

// FanIn is the per-connection queue that producer callbacks push into and
// the connection's responder drains. It is unbounded: Push never blocks and
// never drops while the queue is open.
type FanIn struct {
	mu     sync.Mutex
	items  []feed.Envelope
	head   int
	closed bool
	notify chan struct{}
}

// NewFanIn creates an empty, open queue.
func NewFanIn() *FanIn {
	return &FanIn{notify: make(chan struct{}, 1)}
}

// Push appends env. It returns false once the queue is closed.
func (f *FanIn) Push(env feed.Envelope) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.items = append(f.items, env)
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes the oldest envelope without blocking.
func (f *FanIn) TryPop() (feed.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.head == len(f.items) {
		return feed.Envelope{}, false
	}
	env := f.items[f.head]
	f.items[f.head] = feed.Envelope{}
	f.head++
	if f.head == len(f.items) {
		f.items = f.items[:0]
		f.head = 0
	}
	return env, true
}

// Ready is signalled after a Push. A signal may cover several pushes, so a
// receiver drains with TryPop until it reports empty.
func (f *FanIn) Ready() <-chan struct{} {
	return f.notify
}

// Pop blocks until an envelope is available or ctx is done.
func (f *FanIn) Pop(ctx context.Context) (feed.Envelope, error) {
	for {
		if env, ok := f.TryPop(); ok {
			return env, nil
		}
		select {
		case <-ctx.Done():
			return feed.Envelope{}, context.Cause(ctx)
		case <-f.notify:
		}
	}
}

// Len returns the number of queued envelopes.
func (f *FanIn) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) - f.head
}

// Close rejects further pushes and discards anything still queued.
func (f *FanIn) Close() {
	f.mu.Lock()
	f.closed = true
	f.items = nil
	f.head = 0
	f.mu.Unlock()
}
