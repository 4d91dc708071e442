package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satorinet/neuronfeed/internal/domain"
	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/domain/model"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/port/producer"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- fakeProducer ---

type fakeProducer struct {
	name         string
	subscribeErr error

	mu   sync.Mutex
	subs map[int]producer.Callback
	next int
}

func newFakeProducer(name string) *fakeProducer {
	return &fakeProducer{name: name, subs: make(map[int]producer.Callback)}
}

func (p *fakeProducer) Name() string { return p.name }

func (p *fakeProducer) Subscribe(_ context.Context, cb producer.Callback) (func(), error) {
	if p.subscribeErr != nil {
		return nil, p.subscribeErr
	}
	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = cb
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}, nil
}

func (p *fakeProducer) Emit(_ context.Context, v any) error {
	p.mu.Lock()
	cbs := make([]producer.Callback, 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(v)
	}
	return nil
}

func (p *fakeProducer) live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// --- fakeSource ---

type fakeSource struct {
	producers []producer.Producer
	err       error
}

func (s *fakeSource) Producers(context.Context) ([]producer.Producer, error) {
	return s.producers, s.err
}

// --- fakeSink ---

type fakeSink struct {
	sendErr error

	mu         sync.Mutex
	frames     []string
	keepalives int
	sent       chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: make(chan string, 128)}
}

func (s *fakeSink) Send(_ context.Context, env feed.Envelope) error {
	s.mu.Lock()
	if err := s.sendErr; err != nil {
		s.mu.Unlock()
		return err
	}
	s.frames = append(s.frames, env.String())
	s.mu.Unlock()
	select {
	case s.sent <- env.String():
	default:
	}
	return nil
}

func (s *fakeSink) KeepAlive(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.keepalives++
	return nil
}

func (s *fakeSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *fakeSink) keepAliveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepalives
}

func (s *fakeSink) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-s.sent:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

// --- memQueue: in-process messagequeue.Queue with NATS subject matching ---

type memSub struct {
	pattern string
	handler messagequeue.Handler
}

type memQueue struct {
	mu         sync.Mutex
	subs       map[int]memSub
	next       int
	published  []string
	publishErr error
}

func newMemQueue() *memQueue {
	return &memQueue{subs: make(map[int]memSub)}
}

func (q *memQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	q.published = append(q.published, subject)
	var handlers []messagequeue.Handler
	for _, s := range q.subs {
		if subjectMatches(s.pattern, subject) {
			handlers = append(handlers, s.handler)
		}
	}
	q.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, subject, data)
	}
	return nil
}

func (q *memQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	id := q.next
	q.next++
	q.subs[id] = memSub{pattern: subject, handler: h}
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}, nil
}

func (q *memQueue) Drain() error      { return nil }
func (q *memQueue) Close() error      { return nil }
func (q *memQueue) IsConnected() bool { return true }

func (q *memQueue) subscriptions() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs)
}

func subjectMatches(pattern, subject string) bool {
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

// --- memStore ---

type memStore struct {
	mu         sync.Mutex
	models     map[string]model.Model
	replaced   int
	listErr    error
	replaceErr error
}

func newMemStore() *memStore {
	return &memStore{models: make(map[string]model.Model)}
}

func (s *memStore) ListModels(context.Context) ([]model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Model
	for _, m := range s.models {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) GetModel(_ context.Context, id string) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) ReplaceModels(_ context.Context, models []model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaced++
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

func (s *memStore) setListErr(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

// --- memCache ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

var errBoom = errors.New("boom")
