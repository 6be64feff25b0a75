package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) errorf(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warnf(field, hint, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

// Validate checks the configuration. Errors are fatal, warnings are not.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Engine.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString != "" {
		if _, err := d.MySQLConfig(); err != nil {
			result.errorf("database.dsn", "use user:password@tcp(host:port)/database", "%v", err)
		}
	} else if d.Port < 1 || d.Port > 65535 {
		result.errorf("database.port", "", "port %d is out of valid range (1-65535)", d.Port)
	}

	switch d.TLS.Mode {
	case "", "off", "skip-verify", "verify-full":
	case "verify-ca":
		if d.TLS.CAFile == "" {
			result.errorf("database.tls.ca_file", "set database.tls.ca_file", "verify-ca requires a CA file")
		}
	default:
		result.errorf("database.tls.mode", "valid values are: off, skip-verify, verify-ca, verify-full", "invalid TLS mode %q", d.TLS.Mode)
	}
	if d.TLS.Mode == "skip-verify" {
		result.warnf("database.tls.mode", "use verify-full in production", "server certificate is not verified")
	}
	if (d.TLS.CertFile == "") != (d.TLS.KeyFile == "") {
		result.errorf("database.tls.cert_file", "set both cert_file and key_file", "client certificate and key must be configured together")
	}

	if d.Pool.MaxOpen < 0 {
		result.errorf("database.pool.max_open", "", "max_open cannot be negative")
	}
	if d.Pool.MaxIdle < 0 {
		result.errorf("database.pool.max_idle", "", "max_idle cannot be negative")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warnf("database.pool.max_idle", "lower max_idle to at most max_open",
			"max_idle %d exceeds max_open %d", d.Pool.MaxIdle, d.Pool.MaxOpen)
	}
	if d.ConnectionTimeout < 0 {
		result.errorf("database.connection_timeout", "", "connection_timeout cannot be negative")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval <= 0 {
		result.errorf("database.connection_retry_interval", "", "connection_retry_interval must be positive when connection_timeout is set")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.errorf("server.port", "", "port %d is out of valid range (1-65535)", s.Port)
	}
	if s.MaxRequestBytes <= 0 {
		result.errorf("server.max_request_bytes", "", "max_request_bytes must be greater than 0")
	}
	if s.RequestTimeout < 0 {
		result.errorf("server.request_timeout", "", "request_timeout cannot be negative")
	}
	if s.WriteTimeout > 0 && s.RequestTimeout > s.WriteTimeout {
		result.warnf("server.request_timeout", "keep request_timeout below write_timeout",
			"request_timeout %s exceeds write_timeout %s", s.RequestTimeout, s.WriteTimeout)
	}

	if s.Roles.Enabled {
		if strings.TrimSpace(s.Roles.Header) == "" {
			result.errorf("server.roles.header", "X-DB-Role is the default", "header must be set when roles are enabled")
		}
		if s.Roles.Claim != "" && !s.Auth.OIDCEnabled {
			result.errorf("server.roles.claim", "enable server.auth.oidc_enabled or unset the claim", "a role claim requires OIDC authentication")
		}
		if len(s.Roles.Allowed) == 0 {
			result.warnf("server.roles.allowed", "list the roles clients may assume", "any role named by a request is accepted")
		}
	}

	s.Auth.validate(result)
	s.CORS.validate(result)

	if s.RateLimit.Enabled {
		if s.RateLimit.RPS <= 0 {
			result.errorf("server.rate_limit.rps", "", "rps must be greater than 0 when rate limiting is enabled")
		}
		if s.RateLimit.Burst <= 0 {
			result.errorf("server.rate_limit.burst", "", "burst must be greater than 0 when rate limiting is enabled")
		}
	} else if s.RateLimit.RPS > 0 || s.RateLimit.Burst > 0 {
		result.warnf("server.rate_limit.enabled", "enable server.rate_limit.enabled to apply rate limits",
			"rate limit values are set but rate limiting is disabled")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.errorf("server.auth.oidc_issuer_url", "set the issuer URL of the identity provider", "issuer URL is required when OIDC is enabled")
		} else if u, err := url.Parse(a.OIDCIssuerURL); err != nil || u.Scheme != "https" {
			result.errorf("server.auth.oidc_issuer_url", "use an https URL", "invalid issuer URL %q", a.OIDCIssuerURL)
		}
		if a.OIDCAudience == "" {
			result.errorf("server.auth.oidc_audience", "set the audience tokens are issued for", "audience is required when OIDC is enabled")
		}
		if a.OIDCClockSkew < 0 {
			result.errorf("server.auth.oidc_clock_skew", "", "oidc_clock_skew cannot be negative")
		}
		if a.OIDCSkipTLSVerify {
			result.warnf("server.auth.oidc_skip_tls_verify", "set oidc_ca_file instead", "OIDC provider certificate is not verified")
		}
	}
	if !a.OIDCEnabled && strings.TrimSpace(a.AdminToken) == "" {
		result.warnf("server.auth", "enable OIDC or set server.auth.admin_token_file", "admin endpoints are not authenticated")
	}
}

func (c *CORSConfig) validate(result *ValidationResult) {
	if !c.Enabled {
		return
	}
	if len(c.AllowedOrigins) == 0 {
		result.warnf("server.cors.allowed_origins", "list the browser origins allowed to call the server", "CORS is enabled but no origin is allowed")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" && c.AllowCredentials {
			result.errorf("server.cors.allow_credentials", "list explicit origins", "credentials cannot be allowed for every origin")
		}
	}
	if c.MaxAge < 0 {
		result.errorf("server.cors.max_age", "", "max_age cannot be negative")
	}
}

func (e *EngineConfig) validate(result *ValidationResult) {
	if e.DefaultPageSize < 0 {
		result.errorf("engine.default_page_size", "", "default_page_size cannot be negative")
	}
	if e.MaxPageSize < 0 {
		result.errorf("engine.max_page_size", "", "max_page_size cannot be negative")
	}
	if e.MaxPageSize > 0 && e.DefaultPageSize > e.MaxPageSize {
		result.errorf("engine.default_page_size", "lower default_page_size or raise max_page_size",
			"default_page_size %d exceeds max_page_size %d", e.DefaultPageSize, e.MaxPageSize)
	}
	if e.MaxInValues < 0 {
		result.errorf("engine.max_in_values", "", "max_in_values cannot be negative")
	}
	if len(e.Tables) == 0 {
		result.warnf("engine.tables", `use ["*"] to expose every table`, "no tables are exposed")
	}
	for _, pattern := range e.Tables {
		if _, err := path.Match(pattern, ""); err != nil {
			result.errorf("engine.tables", "use shell glob syntax", "invalid pattern %q: %v", pattern, err)
		}
	}
	refresh := e.SchemaRefresh
	if refresh.MinInterval < 0 {
		result.errorf("engine.schema_refresh.min_interval", "use 0 to disable refresh", "min_interval cannot be negative")
	}
	if refresh.MinInterval > 0 && refresh.MaxInterval < refresh.MinInterval {
		result.warnf("engine.schema_refresh.max_interval", "",
			"max_interval %s is below min_interval %s; polling will not back off", refresh.MaxInterval, refresh.MinInterval)
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.errorf("observability.logging.level", "valid values are: debug, info, warn, error", "invalid log level %q", o.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.errorf("observability.logging.format", "valid values are: json, text", "invalid log format %q", o.Logging.Format)
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.errorf("observability.trace_sample_ratio", "use a value between 0 and 1", "invalid sample ratio %v", o.TraceSampleRatio)
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.errorf(prefix+".protocol", "valid values are: grpc, http/protobuf", "invalid OTLP protocol %q", o.Protocol)
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.errorf(prefix+".endpoint", "use host:port or a full URL", "invalid OTLP endpoint %q for http/protobuf", o.Endpoint)
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.errorf(prefix+".compression", "valid values are: none, gzip", "invalid OTLP compression %q", o.Compression)
	}

	if o.RetryMaxAttempts < 0 {
		result.errorf(prefix+".retry_max_attempts", "", "retry_max_attempts cannot be negative")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
