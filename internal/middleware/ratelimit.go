package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/metrics"
	"github.com/gratefultime/journal-api/internal/ratelimit"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter *ratelimit.Limiter
	Metrics metrics.Recorder

	// Tokens is used for a best-effort key resolution when the limiter
	// runs before the auth middleware. Optional.
	Tokens *auth.TokenService

	// ExemptPaths are request paths the limiter never counts.
	ExemptPaths []string
}

// RateLimit returns a middleware that enforces a per-caller quota.
// Requests are keyed by user id where one can be resolved, so that one
// abusive user cannot exhaust the quota of everyone behind a shared
// NAT; anonymous requests fall back to the client IP.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := callerKey(r, cfg.Tokens)

			result, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				// The limiter absorbs backend errors internally; an error
				// here means the context was cancelled mid-request.
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w)
				return
			}

			setRateLimitHeaders(w, cfg.Limiter.Limit(), result)

			if !result.Allowed {
				retryAfter := time.Until(result.ResetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(retryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Metrics.IncRateLimitRejected()

				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeRateLimitError(w)
				return
			}

			cfg.Metrics.IncRateLimitAllowed()
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey resolves the quota key for a request: the authenticated
// user id when present, then a best-effort decode of the bearer token,
// otherwise the client IP. A token that fails to decode here still goes
// through the auth middleware, which owns the rejection.
func callerKey(r *http.Request, tokens *auth.TokenService) string {
	if userID := auth.UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	if tokens != nil {
		if tokenStr := extractBearerToken(r); tokenStr != "" {
			if userID, err := tokens.Validate(tokenStr); err == nil {
				return "user:" + userID
			}
		}
	}
	return "ip:" + getClientIP(r)
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"message":"Too many requests"}`))
}

// getClientIP extracts the client IP, honouring proxy headers. The
// port is stripped so one client maps to one quota key.
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		for i := range xff {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
