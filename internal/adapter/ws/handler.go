// Package ws implements the WebSocket transport for the prediction stream.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/satorinet/neuronfeed/internal/domain/feed"
	"github.com/satorinet/neuronfeed/internal/port/sink"
	"github.com/satorinet/neuronfeed/internal/service"
)

// Streamer serves one connection over a sink.
type Streamer interface {
	Serve(ctx context.Context, out sink.Sink) (service.Outcome, error)
}

// Sink writes each envelope as one text message.
type Sink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewSink wraps an accepted connection. A zero writeTimeout leaves writes
// bounded only by the caller's context.
func NewSink(conn *websocket.Conn, writeTimeout time.Duration) *Sink {
	return &Sink{conn: conn, writeTimeout: writeTimeout}
}

// Send implements sink.Sink.
func (s *Sink) Send(ctx context.Context, env feed.Envelope) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, env.Data())
}

// KeepAlive implements sink.Sink with a protocol ping. The connection's read
// side must be running (CloseRead) so the pong is observed.
func (s *Sink) KeepAlive(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.conn.Ping(ctx)
}

func (s *Sink) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

// Handler upgrades requests and runs the prediction stream on them.
type Handler struct {
	streamer     Streamer
	writeTimeout time.Duration
	accept       *websocket.AcceptOptions
}

// NewHandler creates a Handler that accepts browser origins matching
// allowedOrigin ("*" accepts any origin).
func NewHandler(streamer Streamer, allowedOrigin string, writeTimeout time.Duration) *Handler {
	return &Handler{
		streamer:     streamer,
		writeTimeout: writeTimeout,
		accept:       acceptOptions(allowedOrigin),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}

	// Clients never send data; CloseRead answers pings and cancels ctx when
	// the peer goes away.
	ctx := conn.CloseRead(r.Context())
	slog.InfoContext(ctx, "websocket connected", "remote", r.RemoteAddr)

	outcome, err := h.streamer.Serve(ctx, NewSink(conn, h.writeTimeout))
	if err != nil {
		slog.WarnContext(ctx, "websocket stream failed", "outcome", string(outcome), "error", err)
	}

	status, reason := closeStatus(outcome)
	_ = conn.Close(status, reason)
	slog.InfoContext(ctx, "websocket disconnected", "outcome", string(outcome))
}

func closeStatus(outcome service.Outcome) (websocket.StatusCode, string) {
	switch outcome {
	case service.OutcomeFailed:
		return websocket.StatusInternalError, "stream failed"
	case service.OutcomeClosed:
		return websocket.StatusGoingAway, ""
	default:
		return websocket.StatusNormalClosure, string(outcome)
	}
}

func acceptOptions(allowedOrigin string) *websocket.AcceptOptions {
	if allowedOrigin == "" || allowedOrigin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	host := allowedOrigin
	if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
		host = u.Host
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{strings.ToLower(host)}}
}
