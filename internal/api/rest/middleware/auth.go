package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dealscope/valuation-engine/pkg/auth"
	"github.com/dealscope/valuation-engine/pkg/logger"
)

type contextKey string

// ClaimsContextKey holds the validated JWT claims in the request context.
const ClaimsContextKey contextKey = "claims"

// JWTAuth is a middleware that validates JWT bearer tokens.
func JWTAuth(manager *auth.JWTManager, log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			claims, err := manager.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on a role claim.
func RequireRole(role string, log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(ClaimsContextKey).(*auth.JWTClaims)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Missing authentication")
				return
			}
			if !claims.HasRole(role) {
				log.Warn("Role check failed",
					logger.String("required_role", role),
					logger.String("user_id", claims.UserID.String()),
				)
				respondError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext extracts the validated claims, if present.
func ClaimsFromContext(ctx context.Context) (*auth.JWTClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.JWTClaims)
	return claims, ok
}
