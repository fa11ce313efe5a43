package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/agrirent/agrirent/internal/models"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
)

type contextKey string

// SessionContextKey is the key for storing session claims in context
const SessionContextKey contextKey = "session"

// SessionMiddleware requires a valid session bearer token and injects its claims into context
func SessionMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := tm.Verify(models.TokenKindSession, strings.TrimSpace(tokenString))
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVariant rejects sessions that belong to a different account variant.
// Must run after SessionMiddleware.
func RequireVariant(variant models.Variant) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetSessionFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Unauthorized")
				return
			}
			if claims.Variant != variant {
				pkghttp.WriteForbidden(w, "Access denied for this account type")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts session claims from request context
func GetSessionFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithSession returns a copy of ctx carrying claims
func WithSession(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, SessionContextKey, claims)
}
