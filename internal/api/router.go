package api

import (
	"net/http"

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

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Module endpoints (read-only registry view; writes arrive via the bus)
			r.Route("/modules", func(r chi.Router) {
				r.Get("/", s.handleListModules)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetModule)
				})
			})

			// Program endpoints
			r.Route("/programs", func(r chi.Router) {
				r.Get("/", s.handleListPrograms)
				r.Post("/", s.handleCreateProgram)

				r.Route("/{address}", func(r chi.Router) {
					r.Get("/", s.handleGetProgram)
					r.Patch("/", s.handleUpdateProgram)
					r.Delete("/", s.handleDeleteProgram)
					r.Post("/enable", s.handleEnableProgram)
					r.Post("/disable", s.handleDisableProgram)
					r.Post("/trigger", s.handleTriggerProgram)
					r.Get("/executions", s.handleListProgramExecutions)
				})
			})

			// Dynamic command surface (spec.md §4.6)
			r.Post("/commands/{domain}/{address}/{command}", s.handleDynamicCommand)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
