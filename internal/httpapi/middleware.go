package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/silverfisk/rants/internal/auth"
	"github.com/silverfisk/rants/internal/models"
)

type ctxKey int

const tenantCtxKey ctxKey = 0

// withAuth resolves the bearer token on every request into a tenant id,
// rejecting the request with 401 when auth is enabled and the token is
// missing or unknown. Grounded structurally on the teacher's
// web.AuthMiddleware functional wrapper.
func withAuth(resolver *auth.Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := resolver.Resolve(r.Header.Get("Authorization"))
		if !ok {
			writeKindStatus(w, models.ErrorBadRequest, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFromContext(r *http.Request) string {
	if v, ok := r.Context().Value(tenantCtxKey).(string); ok {
		return v
	}
	return auth.AnonymousTenant
}

// withRateLimit enforces the per-tenant token bucket, populating
// Retry-After on a 429 per spec §4.11.
func withRateLimit(limiter rateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := tenantFromContext(r)
		if !limiter.Allow(tenantID) {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.RetryAfter(tenantID).Seconds())+1))
			writeGatewayError(w, newKindError(models.ErrorRateLimited, fmt.Sprintf("tenant %s exceeded its request rate", tenantID)), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is the subset of *ratelimit.Limiter the middleware needs,
// kept as an interface so tests can fake it without a real token bucket.
type rateLimiter interface {
	Allow(tenantID string) bool
	RetryAfter(tenantID string) time.Duration
}
