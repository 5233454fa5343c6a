package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline cancels the request context after d; the server's WriteTimeout alone leaves the handler running.
// A non-positive d disables the deadline.
func Deadline(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
