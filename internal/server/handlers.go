package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleHealth reports server liveness and uptime.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleStats returns the current scheduler statistics snapshot.
// GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.scheduler.Stats())
}

// handleCalls lists every registered call with its state and result.
// GET /api/v1/calls
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.scheduler.Snapshot())
}

// handleGetCall returns one call by id.
// GET /api/v1/calls/{id}
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())

	for _, cs := range s.scheduler.Snapshot() {
		if cs.Call.ID == id {
			respondOK(w, reqID, cs)
			return
		}
	}
	respondError(w, reqID, http.StatusNotFound, "not_found", "no call with id "+id)
}

// handleListRuns lists recent runs from the history store.
// GET /api/v1/runs?limit=N
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.history == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, "history_disabled", "run history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, reqID, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondOK(w, reqID, runs)
}

// handleGetRun returns one recorded run with its call outcomes.
// GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.history == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, "history_disabled", "run history is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, calls, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, "not_found", "no run with id "+id)
		return
	}
	respondOK(w, reqID, map[string]any{"run": run, "calls": calls})
}
