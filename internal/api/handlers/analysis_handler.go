package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
	"github.com/sdt-zeiss/prototype-ai/internal/api/validation"
	"github.com/sdt-zeiss/prototype-ai/internal/jobs"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
	"github.com/sdt-zeiss/prototype-ai/internal/report"
	"github.com/sdt-zeiss/prototype-ai/internal/topics"
)

// AudioFormField is the multipart field carrying the uploaded audio.
const AudioFormField = "audio_file"

var (
	errNoAudioPart      = errors.New("no audio file part")
	errUnsupportedAudio = errors.New("unsupported audio type")
)

// AnalysisService transcribes audio and generates posts.
type AnalysisService interface {
	AnalyzeFile(ctx context.Context, filename, ext string, audio io.Reader) (*topics.Result, error)
	AnalyzeURL(ctx context.Context, audioURL string) (*topics.Result, error)
}

// AnalysisHandler handles the audio analysis endpoints.
type AnalysisHandler struct {
	service AnalysisService
	jobs    jobs.JobInserter
	metrics observability.APIMetrics
}

// NewAnalysisHandler creates the handler. inserter may be nil, which disables ?async=true.
// metrics may be nil.
func NewAnalysisHandler(service AnalysisService, inserter jobs.JobInserter, metrics observability.APIMetrics) *AnalysisHandler {
	return &AnalysisHandler{service: service, jobs: inserter, metrics: metrics}
}

// AnalyzeURLRequest is the body of POST /analyze-url.
type AnalyzeURLRequest struct {
	AudioURL string `json:"audio_url" validate:"required,http_url,max=2048"`
}

// PostsResult is the body returned by the analysis endpoints.
type PostsResult struct {
	Posts []models.Post `json:"posts"`
}

// JobAccepted is the body returned when work is queued.
type JobAccepted struct {
	Status string `json:"status"`
	JobID  int64  `json:"job_id"`
}

// AnalyzeAudio handles POST /analyze-audio (multipart field audio_file).
// The upload is spooled to a temporary file that is removed once the request finishes.
// ?format=html returns the report page instead of JSON.
func (h *AnalysisHandler) AnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	path, filename, ext, err := spoolUpload(r)
	if err != nil {
		switch {
		case errors.Is(err, errNoAudioPart):
			h.rejectUpload(r, "no_audio_part")
			response.RespondBadRequest(w, "No audio file part")
		case errors.Is(err, errUnsupportedAudio):
			h.rejectUpload(r, "unsupported_ext")
			response.RespondBadRequest(w, err.Error())
		default:
			h.rejectUpload(r, "unreadable")
			slog.WarnContext(r.Context(), "Failed to read upload", "error", err)
			response.RespondBadRequest(w, "Invalid file")
		}

		return
	}
	defer removeFile(r.Context(), path)

	f, err := os.Open(path)
	if err != nil {
		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && h.metrics != nil {
		h.metrics.RecordUploadBytes(r.Context(), info.Size())
	}

	result, err := h.service.AnalyzeFile(r.Context(), filename, ext, f)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	h.respondPosts(w, r, result)
}

// AnalyzeURL handles POST /analyze-url. ?async=true queues the work and returns 202 with the job ID.
func (h *AnalysisHandler) AnalyzeURL(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeURLRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	if isAsync(r) {
		if h.jobs == nil {
			response.RespondError(w, http.StatusServiceUnavailable, "Service Unavailable", "background jobs are not enabled")

			return
		}

		requestID, _ := r.Context().Value(observability.RequestIDKey).(string)

		id, err := h.jobs.InsertAnalyzeURL(r.Context(), jobs.AnalyzeURLArgs{AudioURL: req.AudioURL, RequestID: requestID})
		if err != nil {
			response.RespondServiceError(w, r, err)

			return
		}

		response.RespondJSON(w, http.StatusAccepted, JobAccepted{Status: "queued", JobID: id})

		return
	}

	result, err := h.service.AnalyzeURL(r.Context(), req.AudioURL)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	h.respondPosts(w, r, result)
}

func (h *AnalysisHandler) rejectUpload(r *http.Request, reason string) {
	if h.metrics != nil {
		h.metrics.RecordUploadRejected(r.Context(), reason)
	}
}

func (h *AnalysisHandler) respondPosts(w http.ResponseWriter, r *http.Request, result *topics.Result) {
	posts := result.Posts
	if posts == nil {
		posts = []models.Post{}
	}

	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := report.Render(&buf, "", posts); err != nil {
			response.RespondServiceError(w, r, err)

			return
		}

		response.RespondHTML(w, http.StatusOK, buf.Bytes())

		return
	}

	response.RespondJSON(w, http.StatusOK, PostsResult{Posts: posts})
}

// spoolUpload copies the audio_file part to a temporary file and returns its path, the client
// file name and the lower-cased extension.
func spoolUpload(r *http.Request) (path, filename, ext string, err error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return "", "", "", err
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return "", "", "", errNoAudioPart
		}

		if err != nil {
			return "", "", "", err
		}

		if part.FormName() != AudioFormField {
			_ = part.Close()

			continue
		}

		filename = filepath.Base(part.FileName())
		ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

		if !validation.IsAudioExtension(ext) {
			_ = part.Close()

			return "", "", "", fmt.Errorf("%w %q", errUnsupportedAudio, ext)
		}

		tmp, err := os.CreateTemp("", "upload-*."+ext)
		if err != nil {
			return "", "", "", err
		}

		_, copyErr := io.Copy(tmp, part)
		closeErr := tmp.Close()
		_ = part.Close()

		if err := errors.Join(copyErr, closeErr); err != nil {
			_ = os.Remove(tmp.Name())

			return "", "", "", err
		}

		return tmp.Name(), filename, ext, nil
	}
}

func removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "Failed to remove temporary upload", "path", path, "error", err)
	}
}

func isAsync(r *http.Request) bool {
	v := r.URL.Query().Get("async")

	return v == "true" || v == "1"
}
