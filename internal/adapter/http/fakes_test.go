package http_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satorinet/neuronfeed/internal/domain"
	"github.com/satorinet/neuronfeed/internal/domain/model"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeQueue is an in-process messagequeue.Queue with NATS-style subject
// wildcards.
type fakeQueue struct {
	mu           sync.Mutex
	subs         map[int]fakeSub
	next         int
	published    map[string][][]byte
	disconnected bool
}

type fakeSub struct {
	pattern string
	handler messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{subs: make(map[int]fakeSub), published: make(map[string][][]byte)}
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	q.published[subject] = append(q.published[subject], data)
	var handlers []messagequeue.Handler
	for _, s := range q.subs {
		if matchSubject(s.pattern, subject) {
			handlers = append(handlers, s.handler)
		}
	}
	q.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, subject, data)
	}
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	id := q.next
	q.next++
	q.subs[id] = fakeSub{pattern: subject, handler: h}
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}, nil
}

func (q *fakeQueue) Drain() error { return nil }
func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) IsConnected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.disconnected
}

func (q *fakeQueue) subscribers(pattern string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.subs {
		if s.pattern == pattern {
			n++
		}
	}
	return n
}

func (q *fakeQueue) messages(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published[subject]
}

func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// fakeStore is an in-memory database.ModelStore.
type fakeStore struct {
	mu     sync.Mutex
	models map[string]model.Model
}

func newFakeStore() *fakeStore {
	return &fakeStore{models: make(map[string]model.Model)}
}

func (s *fakeStore) ListModels(context.Context) ([]model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Model{}
	for _, m := range s.models {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) GetModel(_ context.Context, id string) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *fakeStore) ReplaceModels(_ context.Context, models []model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.models {
		m.Active = false
		s.models[id] = m
	}
	for _, m := range models {
		m.Active = true
		s.models[m.ID] = m
	}
	return nil
}
