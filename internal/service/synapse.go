package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/port/producer"
	"github.com/satorinet/neuronfeed/internal/port/sink"
)

const streamSynapse = "synapse"

// PingStatus is the answer the peer relay gets from /synapse/ping.
type PingStatus string

const (
	PingFail  PingStatus = "fail"  // engine has not started
	PingReady PingStatus = "ready" // synergy engine is running
	PingOK    PingStatus = "ok"
)

// SynapseService bridges the local peer relay and the synergy engine.
type SynapseService struct {
	queue     messagequeue.Queue
	engine    *EngineService
	binder    *Binder
	heartbeat time.Duration
	metrics   *cfotel.Metrics
}

// NewSynapseService creates a SynapseService.
func NewSynapseService(q messagequeue.Queue, engine *EngineService, binder *Binder, heartbeat time.Duration, metrics *cfotel.Metrics) *SynapseService {
	return &SynapseService{queue: q, engine: engine, binder: binder, heartbeat: heartbeat, metrics: metrics}
}

// Ping reports whether the relay may start exchanging messages.
func (s *SynapseService) Ping() PingStatus {
	st := s.engine.Status()
	switch {
	case !st.Ready:
		return PingFail
	case st.Synergy:
		return PingReady
	default:
		return PingOK
	}
}

// Ports lists the peer channels the synergy engine currently holds open.
func (s *SynapseService) Ports() json.RawMessage {
	return s.engine.Channels()
}

// Relay forwards one inbound peer message to the synergy engine.
func (s *SynapseService) Relay(ctx context.Context, remoteIP string, message []byte) error {
	if remoteIP == "" || len(message) == 0 {
		return fmt.Errorf("relay: remote ip and message are required: %w", domain.ErrValidation)
	}
	data, err := json.Marshal(messagequeue.SynapseInboundPayload{RemoteIP: remoteIP, Message: message})
	if err != nil {
		return fmt.Errorf("encode inbound: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectSynapseInbound, data); err != nil {
		return fmt.Errorf("publish inbound: %w", err)
	}
	return nil
}

func decodeSynapseEnvelope(data []byte) (any, error) {
	var env messagequeue.SynapseEnvelopePayload
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode synapse envelope: %w", err)
	}
	return env, nil
}

// Stream forwards envelopes from the synergy engine to the relay until the
// client leaves.
func (s *SynapseService) Stream(ctx context.Context, out sink.Sink) (Outcome, error) {
	start := time.Now()
	s.metrics.StreamOpened(ctx, streamSynapse)

	ch := NewFanIn()
	defer ch.Close()

	outbound := NewQueueProducer(streamSynapse, messagequeue.SubjectSynapseOutbound, s.queue, decodeSynapseEnvelope)
	binding, err := s.binder.Bind(ctx, []producer.Producer{outbound}, ch)
	if err != nil {
		s.metrics.StreamClosed(ctx, streamSynapse, string(OutcomeFailed), time.Since(start))
		return OutcomeFailed, err
	}
	defer binding.Release()

	outcome, err := pump(ctx, ch, out, s.heartbeat, streamSynapse, s.metrics, nil)
	s.metrics.StreamClosed(ctx, streamSynapse, string(outcome), time.Since(start))
	return outcome, err
}
