package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/satorinet/neuronfeed/internal/middleware"
)

// RouteOptions carries the route-level policies.
type RouteOptions struct {
	Limiter        *middleware.RateLimiter // stream connects; nil disables limiting
	ControlKeyHash string                  // bcrypt hash guarding control routes; empty leaves them open
	RequestTimeout time.Duration           // non-streaming routes only
}

// MountRoutes registers every route on r. Stream routes are never wrapped in
// a request timeout; they end on supersession, sentinel or disconnect.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	// Event streams
	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Handler)
		}
		r.Use(middleware.ConnID)

		r.Get("/model-updates", h.ModelUpdates)
		r.Get("/working_updates", h.WorkingUpdates)
		r.Get("/synapse/stream", h.SynapseStream)
		if h.WebSocket != nil {
			r.Method(http.MethodGet, "/ws/model-updates", h.WebSocket)
		}
	})

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(opts.RequestTimeout))
		}

		r.Get("/health", h.Health)

		// Control
		r.Group(func(r chi.Router) {
			r.Use(middleware.ControlKey(opts.ControlKeyHash))
			r.Get("/working_updates_end", h.WorkingUpdatesEnd)
			r.Post("/working_updates_end", h.WorkingUpdatesEnd)
		})

		// Peer relay
		r.Get("/synapse/ping", h.SynapsePing)
		r.Get("/synapse/ports", h.SynapsePorts)
		r.Post("/synapse/message", h.SynapseMessage)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/engine", h.EngineStatus)
			r.Get("/models", h.ListModels)
			r.Get("/models/{id}", h.GetModel)
			r.Get("/models/{id}/overview", h.ModelOverview)
		})
	})
}
