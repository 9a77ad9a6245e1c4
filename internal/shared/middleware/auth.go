package middleware

import (
	"context"
	"net/http"
	"strings"

	"ledgersync/internal/shared/auth"
)

type contextKey string

// SubjectKey holds the verified token subject in the request context.
const SubjectKey contextKey = "subject"

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// ServiceAuth requires a valid HS256 bearer token and stores its subject in the context.
func ServiceAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Validate(strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
