package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-platform/internal/journal"
)

var validCommands = map[string]bool{"up": true, "down": true, "restart": true}

// handleListJournal returns a page of supervisor commands, most recent first.
//
// Query parameters: service, command (up|down|restart), source, limit, offset.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := journal.Filter{
		Service: q.Get("service"),
		Command: q.Get("command"),
		Source:  q.Get("source"),
	}
	if filter.Command != "" && !validCommands[filter.Command] {
		writeBadRequest(w, "command must be one of up, down, restart")
		return
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal failed", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListGateTransitions returns the latest gate edges.
//
// Query parameters: gate, limit.
func (s *Server) handleListGateTransitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := intParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	transitions, err := s.journal.ListGateTransitions(r.Context(), q.Get("gate"), limit)
	if err != nil {
		s.logger.Error("listing gate transitions failed", "error", err)
		writeInternalError(w, "failed to list gate transitions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// intParam parses an optional non-negative integer query parameter and
// writes a 400 when it is malformed.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
