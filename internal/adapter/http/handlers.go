package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	cfotel "github.com/satorinet/neuronfeed/internal/adapter/otel"
	"github.com/satorinet/neuronfeed/internal/domain"
	"github.com/satorinet/neuronfeed/internal/logger"
	"github.com/satorinet/neuronfeed/internal/port/messagequeue"
	"github.com/satorinet/neuronfeed/internal/port/sink"
	"github.com/satorinet/neuronfeed/internal/service"
)

// headerRemoteIP names the peer address header set by the synapse relay.
const headerRemoteIP = "remoteIp"

// Handlers holds the services behind the HTTP routes.
type Handlers struct {
	Predictions  *service.PredictionStreamer
	Status       *service.StatusStreamer
	Synapse      *service.SynapseService
	Engine       *service.EngineService
	Binder       *service.Binder
	Generations  *service.GenerationRegistry
	Queue        messagequeue.Queue
	WebSocket    http.Handler
	WriteTimeout time.Duration // per-frame write deadline on event streams
}

type serveFunc func(ctx context.Context, out sink.Sink) (service.Outcome, error)

// stream runs one event-stream connection until serve returns.
func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, name string, serve serveFunc) {
	ctx, span := cfotel.StartStreamSpan(r.Context(), name, logger.ConnID(r.Context()))
	defer span.End()

	out, err := StartSSE(w, h.WriteTimeout)
	if err != nil {
		slog.ErrorContext(ctx, "event stream unavailable", "stream", name, "error", err)
		return
	}

	outcome, err := serve(ctx, out)
	span.SetAttributes(cfotel.OutcomeAttr(string(outcome)))
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "stream ended with error", "stream", name, "outcome", string(outcome), "error", err)
		return
	}
	slog.DebugContext(ctx, "stream ended", "stream", name, "outcome", string(outcome))
}

// ModelUpdates handles GET /model-updates.
func (h *Handlers) ModelUpdates(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "predictions", h.Predictions.Serve)
}

// WorkingUpdates handles GET /working_updates.
func (h *Handlers) WorkingUpdates(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "status", h.Status.Serve)
}

// WorkingUpdatesEnd handles GET|POST /working_updates_end.
func (h *Handlers) WorkingUpdatesEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.Status.End(r.Context()); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// SynapsePing handles GET /synapse/ping.
func (h *Handlers) SynapsePing(w http.ResponseWriter, _ *http.Request) {
	status := h.Synapse.Ping()
	code := http.StatusOK
	if status == service.PingFail {
		code = http.StatusBadRequest
	}
	writeText(w, code, string(status))
}

// SynapsePorts handles GET /synapse/ports.
func (h *Handlers) SynapsePorts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Synapse.Ports())
}

// SynapseStream handles GET /synapse/stream.
func (h *Handlers) SynapseStream(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "synapse", h.Synapse.Stream)
}

// SynapseMessage handles POST /synapse/message.
func (h *Handlers) SynapseMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "fail")
			return
		}
		writeText(w, http.StatusBadRequest, "fail")
		return
	}

	if err := h.Synapse.Relay(r.Context(), r.Header.Get(headerRemoteIP), body); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeText(w, http.StatusBadRequest, "fail")
			return
		}
		slog.ErrorContext(r.Context(), "synapse relay failed", "error", err)
		writeText(w, http.StatusBadGateway, "fail")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

type healthResponse struct {
	Status string `json:"status"`
	NATS   bool   `json:"nats"`
	Engine string `json:"engine"`
}

// Health handles GET /health. It reports 503 while the queue is disconnected.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "ok",
		NATS:   h.Queue.IsConnected(),
		Engine: string(h.Engine.Status().State),
	}
	code := http.StatusOK
	if !resp.NATS {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type engineResponse struct {
	service.EngineStatus
	Subscriptions int64  `json:"subscriptions"`
	Generation    uint64 `json:"generation"`
}

// EngineStatus handles GET /api/v1/engine.
func (h *Handlers) EngineStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, engineResponse{
		EngineStatus:  h.Engine.Status(),
		Subscriptions: h.Binder.Active(),
		Generation:    uint64(h.Generations.Current()),
	})
}

// ListModels handles GET /api/v1/models.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.Engine.Models(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if models == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// GetModel handles GET /api/v1/models/{id}.
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.Model(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ModelOverview handles GET /api/v1/models/{id}/overview.
func (h *Handlers) ModelOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Engine.Overview(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "no overview for model")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
