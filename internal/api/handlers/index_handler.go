package handlers

import (
	"context"
	"net/http"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
	"github.com/sdt-zeiss/prototype-ai/internal/api/validation"
	"github.com/sdt-zeiss/prototype-ai/internal/jobs"
)

// Indexer writes comments and ad-hoc texts into the vector store.
type Indexer interface {
	PreprocessComments(ctx context.Context, collection string) (int, error)
	AddVector(ctx context.Context, content string) (int, error)
}

// IndexHandler handles the vector indexing endpoints.
type IndexHandler struct {
	indexer Indexer
	jobs    jobs.JobInserter
}

// NewIndexHandler creates the handler. inserter may be nil, which disables ?async=true.
func NewIndexHandler(indexer Indexer, inserter jobs.JobInserter) *IndexHandler {
	return &IndexHandler{indexer: indexer, jobs: inserter}
}

// AddVectorRequest is the body of POST /add-vector.
type AddVectorRequest struct {
	Content string `json:"content" validate:"required,no_null_bytes"`
}

// IndexResult reports how many chunks were written.
type IndexResult struct {
	Status  string `json:"status"`
	Indexed int    `json:"indexed"`
}

// PreprocessComments handles POST /preprocess-comments: rebuild the default collection from the
// comments table. ?async=true queues the rebuild and returns 202 with the job ID.
func (h *IndexHandler) PreprocessComments(w http.ResponseWriter, r *http.Request) {
	if isAsync(r) {
		if h.jobs == nil {
			response.RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "background jobs are not enabled")

			return
		}

		id, err := h.jobs.InsertReindexComments(r.Context(), jobs.ReindexCommentsArgs{})
		if err != nil {
			response.RespondServiceError(w, r, err)

			return
		}

		response.RespondJSON(w, http.StatusAccepted, JobAccepted{Status: "queued", JobID: id})

		return
	}

	n, err := h.indexer.PreprocessComments(r.Context(), "")
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, IndexResult{Status: "success", Indexed: n})
}

// AddVector handles POST /add-vector: append one text to the default collection.
func (h *IndexHandler) AddVector(w http.ResponseWriter, r *http.Request) {
	var req AddVectorRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	n, err := h.indexer.AddVector(r.Context(), req.Content)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, IndexResult{Status: "success", Indexed: n})
}
