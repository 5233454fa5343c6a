package handlers

import (
	"context"
	"net/http"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
	"github.com/sdt-zeiss/prototype-ai/internal/api/validation"
)

// Answerer answers a question from the indexed comments.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// AskHandler handles POST /ask.
type AskHandler struct {
	answerer Answerer
}

// NewAskHandler creates a new ask handler.
func NewAskHandler(answerer Answerer) *AskHandler {
	return &AskHandler{answerer: answerer}
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,no_null_bytes,max=4000"`
}

// AskResponse carries the model's answer verbatim.
type AskResponse struct {
	Answer string `json:"answer"`
}

// Ask handles POST /ask. A missing question is rejected before any vendor call.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	answer, err := h.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, AskResponse{Answer: answer})
}
