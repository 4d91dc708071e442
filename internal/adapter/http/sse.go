package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/satorinet/neuronfeed/internal/domain/feed"
)

// SSESink writes event-stream frames to one HTTP response and flushes after
// every frame. It is used by a single goroutine.
type SSESink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	buf          []byte
}

// StartSSE writes the event-stream response headers and returns a sink.
func StartSSE(w http.ResponseWriter, writeTimeout time.Duration) (*SSESink, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSESink{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}
	if err := s.rc.Flush(); err != nil {
		return nil, fmt.Errorf("event stream: %w", err)
	}
	return s, nil
}

// Send implements sink.Sink.
func (s *SSESink) Send(_ context.Context, env feed.Envelope) error {
	s.buf = feed.AppendFrame(s.buf[:0], env)
	return s.write(func(w io.Writer) error {
		_, err := w.Write(s.buf)
		return err
	})
}

// KeepAlive implements sink.Sink with an event-stream comment.
func (s *SSESink) KeepAlive(_ context.Context) error {
	return s.write(func(w io.Writer) error {
		return feed.WriteComment(w, "keepalive")
	})
}

func (s *SSESink) write(frame func(io.Writer) error) error {
	if s.writeTimeout > 0 {
		err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := frame(s.w); err != nil {
		return err
	}
	return s.rc.Flush()
}
