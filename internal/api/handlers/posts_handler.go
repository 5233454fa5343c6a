package handlers

import (
	"bytes"
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
	"github.com/sdt-zeiss/prototype-ai/internal/api/validation"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/report"
)

// PostsService reads generated posts.
type PostsService interface {
	GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context, filters *models.ListPostsFilters) (*models.ListPostsResponse, error)
}

// PostsHandler handles the read-only post endpoints.
type PostsHandler struct {
	service PostsService
}

// NewPostsHandler creates a new posts handler.
func NewPostsHandler(service PostsService) *PostsHandler {
	return &PostsHandler{service: service}
}

// List handles GET /posts (query: limit, offset, status, since).
func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListPostsFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	resp, err := h.service.ListPosts(r.Context(), filters)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// Get handles GET /posts/{id}.
func (h *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid UUID format")

		return
	}

	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, post)
}

// Report handles GET /posts/report: the newest posts rendered as an HTML page.
// Accepts the same query filters as List.
func (h *PostsHandler) Report(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListPostsFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	resp, err := h.service.ListPosts(r.Context(), filters)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, "Generated Posts", resp.Data); err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondHTML(w, http.StatusOK, buf.Bytes())
}
