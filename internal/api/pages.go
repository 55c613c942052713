package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/internal/aggregator"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// =============================================================================
// STATUS PAGE DEFINITIONS
// =============================================================================

func validatePage(page *types.StatusPage) string {
	if page.Slug == "" {
		return "slug is required"
	}
	if page.Title == "" {
		return "title is required"
	}
	return ""
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListStatusPages(r.Context())
	if err != nil {
		s.logger.Error("list pages failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"pages": pages,
		"count": len(pages),
	})
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var page types.StatusPage
	if err := s.readJSON(r, &page); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validatePage(&page); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	if page.RefreshInterval <= 0 {
		page.RefreshInterval = 30 * time.Second
	}
	now := time.Now()
	page.CreatedAt = now
	page.UpdatedAt = now

	if err := s.store.CreateStatusPage(r.Context(), &page); err != nil {
		s.logger.Error("create page failed", "slug", page.Slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create page")
		return
	}

	s.writeJSON(w, http.StatusCreated, page)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	page, err := s.store.GetStatusPage(r.Context(), slug)
	if err != nil {
		s.logger.Error("get page failed", "slug", slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get page")
		return
	}
	if page == nil {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}

	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	existing, err := s.store.GetStatusPage(r.Context(), slug)
	if err != nil {
		s.logger.Error("page lookup failed", "slug", slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update page")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}

	var page types.StatusPage
	if err := s.readJSON(r, &page); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	page.Slug = slug
	if msg := validatePage(&page); msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	if page.RefreshInterval <= 0 {
		page.RefreshInterval = existing.RefreshInterval
	}
	page.CreatedAt = existing.CreatedAt
	page.UpdatedAt = time.Now()

	if err := s.store.UpdateStatusPage(r.Context(), &page); err != nil {
		s.logger.Error("update page failed", "slug", slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update page")
		return
	}

	s.invalidatePage(r.Context(), slug)
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	existing, err := s.store.GetStatusPage(r.Context(), slug)
	if err != nil {
		s.logger.Error("page lookup failed", "slug", slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete page")
		return
	}
	if existing == nil {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}

	if err := s.store.DeleteStatusPage(r.Context(), slug); err != nil {
		s.logger.Error("delete page failed", "slug", slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete page")
		return
	}

	s.invalidatePage(r.Context(), slug)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "page deleted",
	})
}

// invalidatePage drops the cached projection so a definition change is
// visible before the old entry's TTL runs out.
func (s *Server) invalidatePage(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStatusPage(ctx, slug); err != nil {
		s.logger.Warn("page cache invalidation failed", "slug", slug, "error", err)
	}
}

// =============================================================================
// PUBLIC STATUS
// =============================================================================

// handlePublicStatus serves the rendered projection. A disabled page
// returns the same 404 as a missing one.
func (s *Server) handlePublicStatus(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	view, err := s.agg.Page(r.Context(), slug)
	if err != nil {
		if errors.Is(err, aggregator.ErrPageNotFound) {
			s.writeError(w, http.StatusNotFound, "status page not found")
			return
		}
		s.logger.Error("status page render failed", "slug", slug, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to render status page")
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}
