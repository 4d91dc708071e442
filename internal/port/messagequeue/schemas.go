package messagequeue

import "github.com/satorinet/neuronfeed/internal/domain/model"

// EngineLifecyclePayload is the schema for engine.lifecycle messages.
type EngineLifecyclePayload = model.Announcement

// SynapseInboundPayload is the schema for synapse.inbound messages.
type SynapseInboundPayload struct {
	RemoteIP string `json:"remote_ip"`
	Message  []byte `json:"message"`
}

// SynapseEnvelopePayload is the schema for synapse.outbound messages.
type SynapseEnvelopePayload struct {
	PeerIP      string `json:"peer_ip"`
	VesicleType string `json:"vesicle_type,omitempty"`
	Message     string `json:"message"`
}
