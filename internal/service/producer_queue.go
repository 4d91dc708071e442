package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/port/producer"
)

// Decoder turns one queue message into the value handed to subscribers.
type Decoder func(data []byte) (any, error)

// DecodeUpdate decodes a JSON object into a feed.Update.
func DecodeUpdate(data []byte) (any, error) {
	var u feed.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	return u, nil
}

// DecodeStatus returns status messages as text. A JSON string literal is
// unquoted; anything else is passed through verbatim.
func DecodeStatus(data []byte) (any, error) {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s, nil
		}
	}
	return string(data), nil
}

// QueueProducer exposes one message queue subject as a producer.
type QueueProducer struct {
	name    string
	subject string
	queue   messagequeue.Queue
	decode  Decoder
}

// NewQueueProducer creates a producer for subject. name is used in logs.
func NewQueueProducer(name, subject string, q messagequeue.Queue, decode Decoder) *QueueProducer {
	return &QueueProducer{name: name, subject: subject, queue: q, decode: decode}
}

// Name returns the producer name.
func (p *QueueProducer) Name() string { return p.name }

// Subject returns the subject the producer reads from.
func (p *QueueProducer) Subject() string { return p.subject }

// Subscribe delivers every message published after the call to cb. Messages
// that fail to decode are logged and skipped.
func (p *QueueProducer) Subscribe(ctx context.Context, cb producer.Callback) (func(), error) {
	cancel, err := p.queue.Subscribe(ctx, p.subject, func(msgCtx context.Context, _ string, data []byte) error {
		v, err := p.decode(data)
		if err != nil {
			slog.WarnContext(msgCtx, "dropping undecodable message", "producer", p.name, "error", err)
			return nil
		}
		cb(v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", p.subject, err)
	}
	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// Emit publishes v on the producer subject. Strings and byte slices are sent
// verbatim; other values as JSON.
func (p *QueueProducer) Emit(ctx context.Context, v any) error {
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", p.subject, err)
		}
		data = b
	}
	return p.queue.Publish(ctx, p.subject, data)
}
