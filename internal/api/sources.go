package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// =============================================================================
// LOG SOURCES
// =============================================================================

func (s *Server) handleListLogSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListLogSources(r.Context())
	if err != nil {
		s.logger.Error("list log sources failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list log sources")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sources": sources,
		"count":   len(sources),
	})
}

func (s *Server) handleCreateLogSource(w http.ResponseWriter, r *http.Request) {
	var src types.LogSource
	if err := s.readJSON(r, &src); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := src.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	src.CreatedAt = time.Now()

	if err := s.store.CreateLogSource(r.Context(), &src); err != nil {
		s.logger.Error("create log source failed", "service", src.ServiceName, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create log source")
		return
	}

	s.writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleGetLogSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	src, err := s.store.GetLogSource(r.Context(), id)
	if err != nil {
		s.logger.Error("get log source failed", "source", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get log source")
		return
	}
	if src == nil {
		s.writeError(w, http.StatusNotFound, "log source not found")
		return
	}

	s.writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteLogSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.GetLogSource(r.Context(), id)
	if err != nil {
		s.logger.Error("log source lookup failed", "source", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete log source")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "log source not found")
		return
	}

	if err := s.store.DeleteLogSource(r.Context(), id); err != nil {
		s.logger.Error("delete log source failed", "source", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete log source")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "log source deleted",
	})
}
