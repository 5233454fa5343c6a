// Package middleware holds the HTTP middleware chain shared by all routes.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
)

// Auth checks a static API key sent as "Authorization: Bearer <key>" or "X-API-Key: <key>".
// An empty apiKey disables the check so local deployments stay open.
func Auth(apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")

			if provided == "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					response.RespondUnauthorized(w, "Missing Authorization header")
					return
				}

				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					response.RespondUnauthorized(w, "Invalid Authorization header format. Expected: Bearer <api-key>")
					return
				}

				provided = parts[1]
			}

			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
