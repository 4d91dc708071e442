// Package sink defines the port for writing stream frames to one client.
package sink

import (
	"context"

	"github.com/satorinet/neuronfeed/internal/domain/feed"
)

// Sink delivers envelopes to a single connected client. Implementations
// flush every write so the client sees it immediately.
type Sink interface {
	// Send writes one envelope as a frame.
	Send(ctx context.Context, env feed.Envelope) error

	// KeepAlive writes a transport-level keep-alive that clients ignore.
	KeepAlive(ctx context.Context) error
}
