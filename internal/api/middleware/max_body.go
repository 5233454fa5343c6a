package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

// BodyLimits caps request bodies by kind. Multipart audio uploads get Upload, everything else JSON.
// A non-positive value disables the limit for that kind.
type BodyLimits struct {
	JSON   int64
	Upload int64
}

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
// body is observability.BodyJSON or observability.BodyUpload.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context, body string)
}

func mayHaveBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))

	return err == nil && mediaType == "multipart/form-data"
}

// MaxBody limits request bodies and answers 413 when a handler read past the limit.
// The handler's response is buffered for body-carrying methods so it can be replaced by the 413.
// recorder may be nil.
func MaxBody(limits BodyLimits, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mayHaveBody(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			kind, limit := observability.BodyJSON, limits.JSON
			if isMultipart(r) {
				kind, limit = observability.BodyUpload, limits.Upload
			}

			if limit <= 0 {
				next.ServeHTTP(w, r)

				return
			}

			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, limit)}
			r.Body = body

			buf := &responseBuffer{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if body.exceeded {
				if recorder != nil {
					recorder.RecordRequestBodyTooLarge(r.Context(), kind)
				}

				response.RespondError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
					fmt.Sprintf("request body exceeds %d bytes", limit))

				return
			}

			buf.flush()
		})
	}
}

// limitedBody notes whether the wrapped MaxBytesReader tripped.
type limitedBody struct {
	io.ReadCloser

	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}

	// io.EOF must reach callers unwrapped.
	return n, err //nolint:wrapcheck // pass-through reader
}

// responseBuffer captures status and body so they can be discarded in favour of a 413.
type responseBuffer struct {
	http.ResponseWriter

	status int
	buf    bytes.Buffer
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	n, err := b.buf.Write(p)
	if err != nil {
		return n, fmt.Errorf("buffer write: %w", err)
	}

	return n, nil
}

func (b *responseBuffer) flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}
