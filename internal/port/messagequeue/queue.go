// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages published on the given
	// subject after the call. The returned function cancels the subscription;
	// no handler invocation starts after it returns.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used between the engine, the synapse relay and neuronfeed.
const (
	// SubjectPredictions matches every per-model prediction subject
	// (models.{id}.prediction).
	SubjectPredictions = "models.*.prediction"

	SubjectWorking         = "neuron.working"   // engine startup / maintenance progress
	SubjectEngineLifecycle = "engine.lifecycle" // engine state + model set announcements

	SubjectSynapseInbound  = "synapse.inbound"  // peer messages relayed to the synergy engine
	SubjectSynapseOutbound = "synapse.outbound" // envelopes from the synergy engine for the relay
)

// StreamSubjects lists the subject patterns captured by the JetStream stream.
var StreamSubjects = []string{"models.>", "neuron.>", "engine.>", "synapse.>"}
