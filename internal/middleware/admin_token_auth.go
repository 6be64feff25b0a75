package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"query-engine/internal/logging"
	"query-engine/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig controls shared-token authentication for admin endpoints.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	Metrics    *observability.EngineMetrics
}

// AdminTokenAuthMiddleware validates a shared admin token from request headers.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = defaultAdminTokenHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(headerName))
			if !constantTimeTokenMatch(provided, token) {
				cfg.Metrics.RecordAuthFailure(r.Context(), r.URL.Path, "invalid_admin_token")
				logging.FromContext(r.Context()).Warn("admin authentication failed",
					slog.String("endpoint", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject: "admin_token",
				Issuer:  "admin_token",
				Claims: map[string]any{
					"auth_method": "admin_token",
				},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// constantTimeTokenMatch compares digests so the token length is not leaked.
func constantTimeTokenMatch(provided, expected string) bool {
	providedDigest := sha256.Sum256([]byte(provided))
	expectedDigest := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(providedDigest[:], expectedDigest[:]) == 1
}
