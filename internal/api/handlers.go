package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/runtime"
)

// submitRequest is the body of POST /api/runs.
type submitRequest struct {
	Definition *graph.Definition `json:"definition"`
	Inputs     map[string]any    `json:"inputs,omitempty"`
}

type submitResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": len(s.engine.ActiveRuns()),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.Definition == nil {
		writeError(w, http.StatusBadRequest, "missing definition")
		return
	}

	runID, err := s.engine.Submit(req.Definition, req.Inputs)
	if err != nil {
		var verr *graph.ValidationError
		var cerr *runtime.CapacityError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    "invalid definition",
				"problems": verr.Problems,
			})
		case errors.As(err, &cerr):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, cerr.Error())
		case runtime.Category(err) == runtime.ErrCatState:
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{RunID: runID})
}

func (s *Server) handleActiveRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ActiveRuns())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	snap, ok := s.engine.GetRun(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !s.engine.Stop(runID) {
		writeError(w, http.StatusNotFound, "unknown run: "+runID)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "stopping"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var def graph.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	if err := s.engine.Validate(&def); err != nil {
		var verr *graph.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "problems": verr.Problems})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.engine.GetHistory(limit))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetMetrics())
}

func (s *Server) handleNodeTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": s.engine.Registry().Types()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
