package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cellgate-core/internal/auth"
	"github.com/nerrad567/cellgate-core/internal/command"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Devices authenticate in-band with their connect token.
		r.Get("/device/ws", s.handleDeviceWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermEventsWatch)).Get("/ws", s.handleClientWebSocket)

			r.Route("/devices", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermHistoryRead))
				r.Get("/", s.handleListDevices)
				r.Get("/stats", s.handleDeviceStats)
				r.Get("/{id}", s.handleGetDevice)
			})

			r.Route("/messages", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/", s.handleListMessages)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/inbound", s.handleListInbound)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/{id}", s.handleGetCommand(command.KindSendMessage))
				r.With(s.requirePermission(auth.PermDeviceOperate)).Post("/", s.handleSendMessage)
			})

			r.Route("/calls", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/", s.handleListCalls)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/{id}", s.handleGetCall)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDeviceOperate))
					r.Post("/", s.handleInitiateCall)
					r.Post("/{id}/hangup", s.handleHangupCall)
					r.Post("/{id}/answer", s.handleAnswerCall)
				})
			})

			r.Route("/codes", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/", s.handleListCodes)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/{id}", s.handleGetCommand(command.KindRunCode))
				r.With(s.requirePermission(auth.PermDeviceOperate)).Post("/", s.handleExecuteCode)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/", s.handleListContacts)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/{id}", s.handleGetContact)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermContactsManage))
					r.Post("/", s.handleCreateContact)
					r.Put("/{id}", s.handleUpdateContact)
					r.Delete("/{id}", s.handleDeleteContact)
				})
			})

			r.With(s.requirePermission(auth.PermHistoryRead)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"devices_online":  s.hub.Registry().Count(),
		"event_listeners": s.hub.Bus().Count(),
	})
}
