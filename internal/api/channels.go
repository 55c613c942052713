package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// =============================================================================
// NOTIFICATION CHANNELS
// =============================================================================

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		s.logger.Error("list channels failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"count":    len(channels),
	})
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var ch types.NotificationChannel
	if err := s.readJSON(r, &ch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ch.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	now := time.Now()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	if err := s.store.CreateChannel(r.Context(), &ch); err != nil {
		s.logger.Error("create channel failed", "channel", ch.Name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create channel")
		return
	}

	s.writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ch, err := s.store.GetChannel(r.Context(), id)
	if err != nil {
		s.logger.Error("get channel failed", "channel", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get channel")
		return
	}
	if ch == nil {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	s.writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.GetChannel(r.Context(), id)
	if err != nil {
		s.logger.Error("channel lookup failed", "channel", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update channel")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	var ch types.NotificationChannel
	if err := s.readJSON(r, &ch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ch.ID = id
	if err := ch.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch.CreatedAt = existing.CreatedAt
	ch.UpdatedAt = time.Now()

	if err := s.store.UpdateChannel(r.Context(), &ch); err != nil {
		s.logger.Error("update channel failed", "channel", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update channel")
		return
	}

	s.writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.store.GetChannel(r.Context(), id)
	if err != nil {
		s.logger.Error("channel lookup failed", "channel", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete channel")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	if err := s.store.DeleteChannel(r.Context(), id); err != nil {
		s.logger.Error("delete channel failed", "channel", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete channel")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "channel deleted",
	})
}
