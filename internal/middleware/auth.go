package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gratefultime/journal-api/internal/auth"
	"github.com/gratefultime/journal-api/internal/metrics"
	"github.com/gratefultime/journal-api/internal/model"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger  *slog.Logger
	Tokens  *auth.TokenService
	Metrics metrics.Recorder
}

// Auth returns a middleware that authenticates requests with a bearer
// token. On success the resolved identity is injected into the request
// context. Every failure collapses to the same 401 response so that the
// reason (missing, malformed, bad signature, expired) is never leaked
// to the caller; the distinction goes to logs and metrics only.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractBearerToken(r)
			if tokenStr == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Metrics.IncAuthFailure("missing_token")
				writeAuthError(w)
				return
			}

			userID, err := cfg.Tokens.Validate(tokenStr)
			if err != nil {
				reason := "malformed"
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					reason = "expired"
				case errors.Is(err, auth.ErrTokenSignature):
					reason = "bad_signature"
				}
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				cfg.Metrics.IncAuthFailure(reason)
				writeAuthError(w)
				return
			}

			cfg.Metrics.IncAuthSuccess()

			ctx := auth.ContextWithIdentity(r.Context(), &model.Identity{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken pulls the token from the Authorization header.
// Returns empty string when the header is absent or not a Bearer scheme.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// writeAuthError writes the single 401 response used for every
// authentication failure.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"Missing or invalid token"}`))
}
