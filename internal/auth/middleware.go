package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sclinedc/edc-core/internal/httpx"
)

type contextKey struct{}

var claimsKey contextKey

// ClaimsFromContext returns the session claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// parsed claims in the request context. A missing or expired token is 401 so
// clients re-authenticate; a malformed or tampered one is 403.
func RequireAuth(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				httpx.Error(w, http.StatusUnauthorized, "Access token is required")
				return
			}
			claims, err := issuer.Parse(strings.TrimSpace(raw))
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					httpx.Error(w, http.StatusUnauthorized, "Token has expired. Please login again")
					return
				}
				httpx.Error(w, http.StatusForbidden, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}
