// Package feed defines the live update envelope, its event-stream framing and
// the sentinel values shared by the streaming responders.
package feed

import (
	"bytes"
	"errors"
)

// SentinelWorkingUpdatesEnd terminates every status stream that observes it.
const SentinelWorkingUpdatesEnd = "working_updates_end"

// SupersededPayload is the body of the terminal frame sent to a connection
// whose generation is no longer current.
const SupersededPayload = "oldCall"

var (
	// ErrSuperseded is the cancellation cause of a generation replaced by a newer one.
	ErrSuperseded = errors.New("connection superseded by a newer generation")

	// ErrEngineNotReady indicates the backend engine has not announced itself yet.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrNoProducers indicates an initialized engine with no registered models.
	ErrNoProducers = errors.New("no producers registered")

	// ErrForwarding wraps codec and transport failures while writing a frame.
	ErrForwarding = errors.New("forwarding failed")
)

// Update is one structured event emitted by a producer: field names mapped
// to scalar or string values.
type Update map[string]any

// Envelope is one serialized update, ready to be framed for a client.
// The zero value is an empty data frame.
type Envelope struct {
	event string
	id    string
	data  []byte
}

// Event returns the optional event-stream event name.
func (e Envelope) Event() string { return e.event }

// ID returns the optional event-stream id.
func (e Envelope) ID() string { return e.id }

// Data returns a copy of the serialized payload.
func (e Envelope) Data() []byte { return bytes.Clone(e.data) }

// String returns the payload as text.
func (e Envelope) String() string { return string(e.data) }

// Len returns the payload size in bytes.
func (e Envelope) Len() int { return len(e.data) }

// WithEvent returns a copy of e carrying the given event name.
func (e Envelope) WithEvent(name string) Envelope {
	e.event = sanitizeField(name)
	return e
}

// WithID returns a copy of e carrying the given id.
func (e Envelope) WithID(id string) Envelope {
	e.id = sanitizeField(id)
	return e
}

// IsSentinel reports whether v is the status-stream termination value.
func IsSentinel(v any) bool {
	switch x := v.(type) {
	case string:
		return x == SentinelWorkingUpdatesEnd
	case []byte:
		return string(x) == SentinelWorkingUpdatesEnd
	}
	return false
}
