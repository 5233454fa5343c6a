package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// Client IDs end up in logs and River job args, so only short token-like values are kept.
var clientRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID runs first in the chain and puts an ID in the context and the X-Request-ID response header.
// A well-formed client X-Request-ID is reused; anything else is replaced by a fresh UUIDv7.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !clientRequestID.MatchString(id) {
			id = uuid.Must(uuid.NewV7()).String()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), observability.RequestIDKey, id)))
	})
}
