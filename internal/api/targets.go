package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// =============================================================================
// TARGETS
// =============================================================================

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.ListTargets(r.Context())
	if err != nil {
		s.logger.Error("list targets failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"targets": targets,
		"count":   len(targets),
	})
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var target types.ServiceTarget
	if err := s.readJSON(r, &target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := target.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.GetTarget(r.Context(), target.Name)
	if err != nil {
		s.logger.Error("target lookup failed", "target", target.Name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create target")
		return
	}
	if existing != nil {
		s.writeError(w, http.StatusConflict, "target already exists")
		return
	}

	now := time.Now()
	target.CreatedAt = now
	target.UpdatedAt = now

	if err := s.store.CreateTarget(r.Context(), &target); err != nil {
		s.logger.Error("create target failed", "target", target.Name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create target")
		return
	}

	s.writeJSON(w, http.StatusCreated, target)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	target, err := s.store.GetTarget(r.Context(), name)
	if err != nil {
		s.logger.Error("get target failed", "target", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get target")
		return
	}
	if target == nil {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}

	s.writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	existing, err := s.store.GetTarget(r.Context(), name)
	if err != nil {
		s.logger.Error("target lookup failed", "target", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update target")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}

	var target types.ServiceTarget
	if err := s.readJSON(r, &target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The name in the path wins; targets cannot be renamed.
	target.Name = name
	if err := target.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target.CreatedAt = existing.CreatedAt
	target.UpdatedAt = time.Now()

	if err := s.store.UpdateTarget(r.Context(), &target); err != nil {
		s.logger.Error("update target failed", "target", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update target")
		return
	}

	s.writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	existing, err := s.store.GetTarget(r.Context(), name)
	if err != nil {
		s.logger.Error("target lookup failed", "target", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete target")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "target not found")
		return
	}

	if err := s.store.DeleteTarget(r.Context(), name); err != nil {
		s.logger.Error("delete target failed", "target", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete target")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "target deleted",
	})
}

func (s *Server) handleTriggerCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if !s.scheduler.TriggerNow(name) {
		s.writeError(w, http.StatusNotFound, "target not scheduled")
		return
	}

	// The check runs asynchronously on the target's own loop.
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "check triggered",
		"target":  name,
	})
}

func (s *Server) handleTargetHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	results, err := s.store.GetResultHistory(r.Context(), name, window, limit)
	if err != nil {
		s.logger.Error("history query failed", "target", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"target":  name,
		"window":  window.String(),
		"results": results,
		"count":   len(results),
	})
}
