package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// defaultWSPath is used when the WebSocket path is not configured.
	defaultWSPath = "/api/v1/ws"

	// maxRequestBody caps request bodies; every route is a GET.
	maxRequestBody = 64 << 10
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverJSON)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBody))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)
			r.Get("/{name}", s.handleGetService)
		})

		r.Get("/values", s.handleListValues)

		r.Route("/journal", func(r chi.Router) {
			r.Get("/", s.handleListJournal)
			r.Get("/gates", s.handleListGateTransitions)
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"ws_clients": s.hub.ClientCount(),
	})
}
