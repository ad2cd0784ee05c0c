package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-platform/internal/platform"
)

// loopTimeout bounds how long a request waits for the event loop.
const loopTimeout = 5 * time.Second

// handleStatus returns the platform snapshot taken on the event loop.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loopTimeout)
	defer cancel()

	var st platform.Status
	if err := s.loop.Invoke(ctx, func() { st = s.app.Status() }); err != nil {
		s.logger.Warn("status snapshot timed out", "error", err)
		writeUnavailable(w, "event loop busy")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleListServices returns the commanded and reported state of every
// supervised service.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services := s.services.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}

// handleGetService returns one supervised service.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, svc := range s.services.Snapshot(r.Context()) {
		if svc.Name == name {
			writeJSON(w, http.StatusOK, svc)
			return
		}
	}
	writeNotFound(w, "service not found: "+name)
}

// handleListValues returns the values exported under the platform namespace.
func (s *Server) handleListValues(w http.ResponseWriter, _ *http.Request) {
	values := []platform.PublishedValue{}
	if s.values != nil {
		values = s.values.Values()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"values": values,
		"count":  len(values),
	})
}
