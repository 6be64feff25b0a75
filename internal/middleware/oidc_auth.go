package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"query-engine/internal/logging"
	"query-engine/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const defaultOIDCClockSkew = 2 * time.Minute

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
	// CAFile adds a CA bundle trusted for discovery and JWKS requests.
	CAFile        string
	SkipTLSVerify bool
	// Metrics counts rejected requests; nil disables counting.
	Metrics *observability.EngineMetrics
}

type authContextKey struct{}

// AuthContext carries validated token claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

// WithAuthContext attaches validated credentials to ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return AuthContext{}, false
	}
	auth, ok := value.(AuthContext)
	return auth, ok
}

// OIDCAuthMiddleware validates Bearer tokens when enabled. The provider is
// discovered once, when the middleware is built.
func OIDCAuthMiddleware(ctx context.Context, cfg OIDCAuthConfig, logger *logging.Logger) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = defaultOIDCClockSkew
	}

	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if logger != nil && cfg.SkipTLSVerify {
		logger.Warn("oidc tls verification is disabled; enable only for local development",
			slog.String("issuer", cfg.IssuerURL),
		)
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	providerCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(providerCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}

	// Expiry is checked below with the configured skew.
	verifier := provider.Verifier(&oidc.Config{
		ClientID:          cfg.Audience,
		SkipExpiryCheck:   true,
		SkipIssuerCheck:   false,
		SkipClientIDCheck: false,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			reject := func(reason, message string, err error) {
				cfg.Metrics.RecordAuthFailure(r.Context(), endpoint, reason)
				attrs := []any{
					slog.String("reason", reason),
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				logging.FromContext(r.Context()).Warn("authentication failed", attrs...)
				writeUnauthorized(w, message)
			}

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}

			idToken, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				reject("invalid_token", "invalid token", err)
				return
			}

			claims := map[string]any{}
			if err := idToken.Claims(&claims); err != nil {
				reject("invalid_claims", "invalid token claims", err)
				return
			}

			if err := validateTimeClaims(claims, cfg.ClockSkew, time.Now()); err != nil {
				reject("expired_token", "invalid token", err)
				return
			}

			subject, _ := claims["sub"].(string)
			aud := extractAudience(claims)

			logging.FromContext(r.Context()).Debug("authentication successful",
				slog.String("subject", subject),
				slog.String("issuer", cfg.IssuerURL),
				slog.String("endpoint", endpoint),
			)

			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.String("auth.issuer", cfg.IssuerURL),
					attribute.Bool("auth.authenticated", true),
				)
				if len(aud) > 0 {
					span.SetAttributes(attribute.StringSlice("auth.audience", aud))
				}
			}

			authCtx := WithAuthContext(r.Context(), AuthContext{
				Subject:  subject,
				Issuer:   cfg.IssuerURL,
				Audience: aud,
				Claims:   claims,
			})
			next.ServeHTTP(w, r.WithContext(authCtx))
		})
	}, nil
}

func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in for local development
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("oidc CA file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func validateTimeClaims(claims map[string]any, skew time.Duration, now time.Time) error {
	exp, ok := numericDate(claims["exp"])
	if !ok {
		return errors.New("token has no expiry")
	}
	if now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok {
		if now.Add(skew).Before(nbf) {
			return errors.New("token not valid yet")
		}
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}

func extractAudience(claims map[string]any) []string {
	switch val := claims["aud"].(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}
