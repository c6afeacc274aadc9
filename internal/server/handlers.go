package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/history"

	"github.com/go-chi/chi/v5"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.Store.Ping(r.Context()); err != nil {
		s.Logger.Error("Database ping failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}

	s.respondJSON(w, code, map[string]interface{}{
		"status":         status,
		"version":        s.Version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// HandleListDeployments lists deployments, newest last. Query parameters:
// name, active=true, unfinished=true.
func (s *Server) HandleListDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := history.DeploymentFilter{
		Name:       q.Get("name"),
		ActiveOnly: queryBool(q.Get("active")),
		Unfinished: queryBool(q.Get("unfinished")),
	}

	deployments, err := s.Store.ListDeployments(r.Context(), filter)
	if err != nil {
		s.internalError(w, "Failed to list deployments", err)
		return
	}
	if deployments == nil {
		deployments = []history.Deployment{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"deployments": deployments,
		"count":       len(deployments),
	})
}

// HandleGetDeployment returns one deployment
func (s *Server) HandleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	d, err := s.Store.GetDeployment(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown deployment"})
		return
	}
	if err != nil {
		s.internalError(w, "Failed to get deployment", err)
		return
	}

	s.respondJSON(w, http.StatusOK, d)
}

// HandleListComparisons lists comparisons with their members
func (s *Server) HandleListComparisons(w http.ResponseWriter, r *http.Request) {
	comparisons, err := s.Store.ListComparisons(r.Context())
	if err != nil {
		s.internalError(w, "Failed to list comparisons", err)
		return
	}
	if comparisons == nil {
		comparisons = []history.Comparison{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"comparisons": comparisons,
		"count":       len(comparisons),
	})
}

// HandleGetComparison returns one comparison with members and reports
func (s *Server) HandleGetComparison(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := s.Store.GetComparison(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown comparison"})
		return
	}
	if err != nil {
		s.internalError(w, "Failed to get comparison", err)
		return
	}

	s.respondJSON(w, http.StatusOK, c)
}

// HandleListRuns lists the dispatch log. Query parameters: workflow,
// network, unfinished=true.
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := s.Store.ListWorkflowRuns(r.Context(), history.WorkflowRunFilter{
		Workflow:    q.Get("workflow"),
		NetworkName: q.Get("network"),
		Unfinished:  queryBool(q.Get("unfinished")),
	})
	if err != nil {
		s.internalError(w, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []history.WorkflowRunRecord{}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleRefreshRun re-reads a run from GitHub and stores its state
func (s *Server) HandleRefreshRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "runID")
	if !ok {
		return
	}

	run, err := s.Refresher.RefreshRun(r.Context(), runID)
	switch {
	case errors.Is(err, actions.ErrNotFound), errors.Is(err, history.ErrNotFound):
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown run"})
		return
	case actions.IsRemote(err):
		s.Logger.Warn("GitHub request failed during refresh", "run_id", runID, "error", err)
		s.respondJSON(w, http.StatusBadGateway, map[string]string{"error": "GitHub request failed"})
		return
	case err != nil:
		s.internalError(w, "Failed to refresh run", err)
		return
	}

	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.Logger.Error(msg, "error", err)
	s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

func queryBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
