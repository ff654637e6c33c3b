package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Edge liveness endpoints
			r.Route("/edges/{edgeID}", func(r chi.Router) {
				r.Post("/heartbeat", s.handleRegisterHeartbeat)
				r.Get("/status", s.handleEdgeStatus)
			})

			// Command dispatch and retrieval
			r.Route("/commands", func(r chi.Router) {
				r.Post("/", s.handleSendCommand)
				r.Route("/{traceID}", func(r chi.Router) {
					r.Get("/", s.handleCommandResult)
					r.Get("/stream", s.handleCommandStream)
				})
			})

			// Binding management
			r.Route("/bindings", func(r chi.Router) {
				r.Get("/", s.handleListBindings)
				r.Post("/", s.handleCreateBinding)
				r.Delete("/{edgeID}", s.handleDeleteBinding)
			})

			// Audit trail
			r.Get("/audit", s.handleAuditLog)
		})
	})

	return r
}

// healthCheckTimeout bounds the dependency checks in the health endpoint.
const healthCheckTimeout = 2 * time.Second

// handleHealth returns the server health status, including the broker
// connection state when an MQTT client is wired in.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.mqtt != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.mqtt.HealthCheck(ctx); err != nil {
			resp["status"] = "degraded"
			resp["mqtt"] = err.Error()
		} else {
			resp["mqtt"] = "connected"
		}
		resp["subscriptions"] = s.mqtt.SubscriptionCount()
	}

	writeJSON(w, http.StatusOK, resp)
}
