package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"

	"shortly/internal/auth"
	"shortly/internal/metrics"
	"shortly/internal/ratelimit"
	"shortly/pkg/response"
)

type ctxKey int

const callerIDKey ctxKey = iota

// callerID returns the authenticated account id from the request context,
// or nil for anonymous requests.
func callerID(r *http.Request) *int64 {
	id, ok := r.Context().Value(callerIDKey).(int64)
	if !ok {
		return nil
	}
	return &id
}

// authenticate resolves the caller's identity from an optional bearer token.
// Requests without an Authorization header pass through as anonymous;
// a present but invalid token is rejected.
func authenticate(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitKey buckets authenticated callers by account id and everyone
// else by source address.
func rateLimitKey(r *http.Request) (string, ratelimit.Limit) {
	if id := callerID(r); id != nil {
		return fmt.Sprintf("user:%d", *id), ratelimit.Registered
	}

	// RealIP strips the port when a proxy header is present; a direct
	// connection still carries one.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return "ip:" + host, ratelimit.Anonymous
}

// rateLimitShorten gates shortening requests with the tiered quotas.
// Limiter backend failures fail open: shortening stays available, the error
// is logged.
func rateLimitShorten(limiter ratelimit.Limiter, logger *httplog.Logger) func(http.Handler) http.Handler {
	const op = "api.http.rateLimitShorten"

	limits := response.RateLimits{
		Anonymous: response.RateLimit{
			PerMinute: ratelimit.Anonymous.PerMinute,
			PerHour:   ratelimit.Anonymous.PerHour,
		},
		Registered: response.RateLimit{
			PerMinute: ratelimit.Registered.PerMinute,
			PerHour:   ratelimit.Registered.PerHour,
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, limit := rateLimitKey(r)

			res, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				logger.Error("rate limiter unavailable", "op", op, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				metrics.ObserveRateLimited()

				resp := response.RateLimitResponse(res.RetryAfter, limits)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", resp.RetryAfter))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, resp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
