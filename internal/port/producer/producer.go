// Package producer defines the port for external event producers whose
// updates are forwarded to streaming clients.
package producer

import "context"

// Callback receives one value from a producer. A nil value means "no new
// value" and must be ignored by consumers.
type Callback func(value any)

// Producer is an external event source, such as one predictive model.
type Producer interface {
	// Name identifies the producer in logs and metrics.
	Name() string

	// Subscribe attaches cb and returns a cancel function that detaches it.
	// After cancel returns, cb is not invoked again. Cancel is safe to call
	// more than once.
	Subscribe(ctx context.Context, cb Callback) (cancel func(), err error)
}

// Emitter is a producer that also accepts injected values, such as the
// engine status producer receiving the end sentinel.
type Emitter interface {
	Producer

	// Emit delivers v to every current subscriber.
	Emit(ctx context.Context, v any) error
}

// Source lists the producers available to a new streaming connection.
type Source interface {
	// Producers returns the current producers. It returns
	// feed.ErrEngineNotReady before the engine has started and
	// feed.ErrNoProducers when the engine runs without any models.
	Producers(ctx context.Context) ([]Producer, error)
}
