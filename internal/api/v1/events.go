package v1

import (
	"net/http"
	"strconv"

	"github.com/vmunix/mediarelay/internal/events"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_EVENT_LOG", "event log not configured")
		return
	}

	items, err := s.deps.Events.Recent(r.Context(), limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse("", items))
}

func (s *Server) listJobEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_EVENT_LOG", "event log not configured")
		return
	}

	// Unknown jobs are a 404 rather than an empty history.
	if _, err := s.deps.Queue.Get(r.Context(), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	items, err := s.deps.Events.ForJob(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(id, items))
}

func newEventsResponse(jobID string, items []events.Event) eventsResponse {
	if items == nil {
		items = []events.Event{}
	}
	return eventsResponse{JobID: jobID, Events: items, Count: len(items)}
}
