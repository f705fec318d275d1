package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aforo/aforo/internal/http/response"
	"github.com/aforo/aforo/pkg/auth"
	"github.com/aforo/aforo/pkg/logger"
)

type contextKey string

const (
	ClaimsKey contextKey = "claims"
)

// RequireAuth validates the Bearer token and resolves the caller's tenant.
// Every route behind it can trust the tenant in the request context; a
// token without a tenant is rejected outright.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				response.Unauthorized(w, "missing bearer token")
				return
			}

			claims, err := auth.Parse(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				response.Unauthorized(w, "invalid or expired token")
				return
			}
			if claims.TenantID == "" {
				response.Forbidden(w, "token has no tenant")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, logger.TenantIDKey, claims.TenantID)
			if claims.DeviceID != "" {
				ctx = context.WithValue(ctx, logger.DeviceIDKey, claims.DeviceID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFrom returns the tenant resolved by RequireAuth, or "" when the
// request never passed through it.
func TenantFrom(ctx context.Context) string {
	if v, ok := ctx.Value(logger.TenantIDKey).(string); ok {
		return v
	}
	return ""
}

// DeviceFrom returns the scanning device's identifier, or "" for requests
// made without one.
func DeviceFrom(ctx context.Context) string {
	if v, ok := ctx.Value(logger.DeviceIDKey).(string); ok {
		return v
	}
	return ""
}

// ClaimsFrom returns the parsed token claims, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsKey).(*auth.Claims); ok {
		return c
	}
	return nil
}

// RequireRole gates a route to the given roles. Admin always passes.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				response.Unauthorized(w, "missing bearer token")
				return
			}
			if claims.Role == "admin" {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "insufficient role")
		})
	}
}
