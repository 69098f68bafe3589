package auth

import (
	"net/http"
	"strings"

	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/jsonutil"
)

// Middleware returns HTTP middleware that requires a valid
// "Authorization: Bearer <token>" header on every request it wraps.
// Requests are rejected before any store is touched.
func Middleware(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				jsonutil.WriteError(w, r, apperr.Auth("missing bearer token"))
				return
			}
			if err := sm.Validate(r.Context(), token); err != nil {
				jsonutil.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
