package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncShared is the state every derived AsyncHandler points at.
type asyncShared struct {
	ch      chan asyncEntry
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Int64
}

type asyncEntry struct {
	handler slog.Handler
	rec     slog.Record
}

// AsyncHandler moves JSON encoding and the stdout write off the stream
// goroutines. Records are dropped, never blocked on, when the buffer is full.
type AsyncHandler struct {
	inner  slog.Handler
	shared *asyncShared
}

// NewAsyncHandler creates an AsyncHandler with the given buffer size and worker count.
func NewAsyncHandler(inner slog.Handler, bufSize, workers int) *AsyncHandler {
	s := &asyncShared{ch: make(chan asyncEntry, bufSize)}
	for range workers {
		s.wg.Add(1)
		go s.drain()
	}
	return &AsyncHandler{inner: inner, shared: s}
}

func (s *asyncShared) drain() {
	defer s.wg.Done()
	for e := range s.ch {
		_ = e.handler.Handle(context.Background(), e.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues a clone of the record together with the handler that owns
// its attribute chain. After Close it is a counted drop.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.shared.mu.RLock()
	defer h.shared.mu.RUnlock()
	if h.shared.closed {
		h.shared.dropped.Add(1)
		return nil
	}
	select {
	case h.shared.ch <- asyncEntry{handler: h.inner, rec: rec.Clone()}:
	default:
		h.shared.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler that shares the buffer and workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), shared: h.shared}
}

// WithGroup derives a handler that shares the buffer and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), shared: h.shared}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.shared.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain.
// Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.shared.once.Do(func() {
		h.shared.mu.Lock()
		h.shared.closed = true
		close(h.shared.ch)
		h.shared.mu.Unlock()
		h.shared.wg.Wait()
	})
}
