package adminapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// requestID stamps every response with a fresh correlation ID, letting an
// operator tie an Admin API request to the log lines it produced.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

// bearerAuth rejects any request not carrying the configured bearer token,
// modeled on the teacher's adminAuthMiddleware.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] != token {
				http.Error(w, "invalid or missing bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
