package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "basic DSN",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Password: "password",
				Database: "test",
			},
			expected: "root:password@tcp(localhost:4000)/test?parseTime=true",
		},
		{
			name: "with special characters in password",
			config: DatabaseConfig{
				Host:     "db.example.com",
				Port:     3306,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
			},
			expected: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?parseTime=true",
		},
		{
			name: "empty password",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Database: "test",
			},
			expected: "root:@tcp(localhost:4000)/test?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.config.DSN()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDatabaseConfig_MySQLConfig(t *testing.T) {
	t.Run("dsn overrides discrete fields", func(t *testing.T) {
		cfg := DatabaseConfig{
			ConnectionString: "app:secret@tcp(tidb.internal:4000)/shop",
			Host:             "ignored",
			Port:             1,
			Database:         "ignored",
		}
		mc, err := cfg.MySQLConfig()
		require.NoError(t, err)
		assert.Equal(t, "app", mc.User)
		assert.Equal(t, "tidb.internal:4000", mc.Addr)
		assert.Equal(t, "shop", mc.DBName)
		assert.True(t, mc.ParseTime)
		assert.Equal(t, time.UTC, mc.Loc)
	})

	t.Run("tls mode maps to driver parameter", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "h", Port: 4000, User: "u", Database: "d", TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
		mc, err := cfg.MySQLConfig()
		require.NoError(t, err)
		assert.Equal(t, "skip-verify", mc.TLSConfig)

		cfg.TLS.Mode = "verify-full"
		mc, err = cfg.MySQLConfig()
		require.NoError(t, err)
		assert.Equal(t, tlsConfigName, mc.TLSConfig)
	})

	t.Run("dsn tls parameter wins", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "u@tcp(h:4000)/d?tls=true", TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
		mc, err := cfg.MySQLConfig()
		require.NoError(t, err)
		assert.Equal(t, "true", mc.TLSConfig)
	})

	t.Run("invalid dsn", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "not a dsn"}
		_, err := cfg.MySQLConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid database.dsn")
	})

	t.Run("database name", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "u@tcp(h:4000)/blog"}
		name, err := cfg.DatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "blog", name)
	})
}

func TestDatabaseConfig_RegisterTLS(t *testing.T) {
	t.Run("no-op without verification", func(t *testing.T) {
		cfg := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
		assert.NoError(t, cfg.RegisterTLS())
	})

	t.Run("missing CA file", func(t *testing.T) {
		cfg := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "verify-ca", CAFile: filepath.Join(t.TempDir(), "missing.pem")}}
		err := cfg.RegisterTLS()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read CA file")
	})

	t.Run("cert without key", func(t *testing.T) {
		cfg := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "verify-full", CertFile: "client.pem"}}
		err := cfg.RegisterTLS()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cert_file and key_file")
	})
}

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFlagSet(newFlagSet(t))
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxRequestBytes)
	assert.Equal(t, "X-DB-Role", cfg.Server.Roles.Header)
	assert.Equal(t, "X-Admin-Token", cfg.Server.Auth.AdminTokenHeader)
	assert.Equal(t, 2*time.Minute, cfg.Server.Auth.OIDCClockSkew)
	assert.False(t, cfg.Server.CORS.Enabled)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.Server.CORS.AllowedMethods)
	assert.Equal(t, 100, cfg.Engine.DefaultPageSize)
	assert.Equal(t, 1000, cfg.Engine.MaxPageSize)
	assert.Equal(t, []string{"*"}, cfg.Engine.Tables)
	assert.Equal(t, 30*time.Second, cfg.Engine.SchemaRefresh.MinInterval)
	assert.Equal(t, 5*time.Minute, cfg.Engine.SchemaRefresh.MaxInterval)
	assert.Empty(t, cfg.Engine.Naming.PluralOverrides)
	assert.Equal(t, "query-engine", cfg.Observability.ServiceName)
	assert.False(t, cfg.Validate().HasErrors())
}

func TestLoad_WithEnvVars(t *testing.T) {
	t.Setenv("QENGINE_DATABASE_HOST", "envhost")
	t.Setenv("QENGINE_DATABASE_PORT", "5000")
	t.Setenv("QENGINE_DATABASE_USER", "envuser")
	t.Setenv("QENGINE_DATABASE_PASSWORD", "envpass")
	t.Setenv("QENGINE_DATABASE_DATABASE", "envdb")
	t.Setenv("QENGINE_SERVER_PORT", "9090")
	t.Setenv("QENGINE_ENGINE_TABLES", "user, post")
	t.Setenv("QENGINE_SERVER_RATE_LIMIT_ENABLED", "true")
	t.Setenv("QENGINE_SERVER_RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadFlagSet(newFlagSet(t))
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.Database.Host)
	assert.Equal(t, 5000, cfg.Database.Port)
	assert.Equal(t, "envuser", cfg.Database.User)
	assert.Equal(t, "envpass", cfg.Database.Password)
	assert.Equal(t, "envdb", cfg.Database.Database)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"user", "post"}, cfg.Engine.Tables)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 2.5, cfg.Server.RateLimit.RPS)
}

func TestLoad_FlagsOverrideEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "query-engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: filehost
  tls:
    mode: true
server:
  port: 7000
engine:
  max_page_size: 50
  default_page_size: 20
  naming:
    plural_overrides:
      person: folks
  schema_refresh:
    min_interval: 0s
`), 0o600))

	t.Setenv("QENGINE_SERVER_PORT", "7100")

	cfg, err := LoadFlagSet(newFlagSet(t, "--config", path, "--server.port=7200", "--engine.max_in_values=10"))
	require.NoError(t, err)

	assert.Equal(t, "filehost", cfg.Database.Host)
	assert.Equal(t, "skip-verify", cfg.Database.TLS.Mode)
	assert.Equal(t, 7200, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Engine.MaxPageSize)
	assert.Equal(t, 20, cfg.Engine.DefaultPageSize)
	assert.Equal(t, 10, cfg.Engine.MaxInValues)
	assert.Equal(t, map[string]string{"person": "folks"}, cfg.Engine.Naming.PluralOverrides)
	assert.Zero(t, cfg.Engine.SchemaRefresh.MinInterval)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query-engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  page_size: 5\n"), 0o600))

	_, err := LoadFlagSet(newFlagSet(t, "--config", path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config")
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := LoadFlagSet(newFlagSet(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func validConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Host:                    "localhost",
			Port:                    4000,
			Pool:                    PoolConfig{MaxOpen: 10, MaxIdle: 5},
			ConnectionTimeout:       time.Minute,
			ConnectionRetryInterval: time.Second,
		},
		Server: ServerConfig{
			Port:            8080,
			MaxRequestBytes: 1 << 20,
			RequestTimeout:  30 * time.Second,
			WriteTimeout:    45 * time.Second,
			Roles:           RoleConfig{Header: "X-DB-Role"},
		},
		Engine: EngineConfig{
			DefaultPageSize: 100,
			MaxPageSize:     1000,
			MaxInValues:     1000,
			Tables:          []string{"*"},
		},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          LoggingConfig{Level: "info", Format: "json"},
			OTLP:             OTLPConfig{Endpoint: "localhost:4317", Protocol: "grpc", Compression: "gzip"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		wantErrors  []string
		wantWarning string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:       "invalid database port",
			modify:     func(c *Config) { c.Database.Port = 70000 },
			wantErrors: []string{"database.port"},
		},
		{
			name:   "dsn skips port check",
			modify: func(c *Config) { c.Database.Port = 0; c.Database.ConnectionString = "u@tcp(h:4000)/d" },
		},
		{
			name:       "invalid tls mode",
			modify:     func(c *Config) { c.Database.TLS.Mode = "maybe" },
			wantErrors: []string{"database.tls.mode"},
		},
		{
			name:       "verify-ca without CA",
			modify:     func(c *Config) { c.Database.TLS.Mode = "verify-ca" },
			wantErrors: []string{"database.tls.ca_file"},
		},
		{
			name:        "skip-verify warns",
			modify:      func(c *Config) { c.Database.TLS.Mode = "skip-verify" },
			wantWarning: "database.tls.mode",
		},
		{
			name:       "negative pool",
			modify:     func(c *Config) { c.Database.Pool.MaxOpen = -1 },
			wantErrors: []string{"database.pool.max_open"},
		},
		{
			name:       "invalid server port",
			modify:     func(c *Config) { c.Server.Port = 0 },
			wantErrors: []string{"server.port"},
		},
		{
			name:       "zero request bytes",
			modify:     func(c *Config) { c.Server.MaxRequestBytes = 0 },
			wantErrors: []string{"server.max_request_bytes"},
		},
		{
			name: "roles need a header",
			modify: func(c *Config) {
				c.Server.Roles = RoleConfig{Enabled: true, Header: " ", Allowed: []string{"reader"}}
			},
			wantErrors: []string{"server.roles.header"},
		},
		{
			name:        "roles without allow list warn",
			modify:      func(c *Config) { c.Server.Roles.Enabled = true },
			wantWarning: "server.roles.allowed",
		},
		{
			name: "role claim requires oidc",
			modify: func(c *Config) {
				c.Server.Roles = RoleConfig{Enabled: true, Header: "X-DB-Role", Claim: "db_role", Allowed: []string{"reader"}}
			},
			wantErrors: []string{"server.roles.claim"},
		},
		{
			name: "role claim with oidc",
			modify: func(c *Config) {
				c.Server.Roles = RoleConfig{Enabled: true, Header: "X-DB-Role", Claim: "db_role", Allowed: []string{"reader"}}
				c.Server.Auth = AuthConfig{OIDCEnabled: true, OIDCIssuerURL: "https://issuer.example.com", OIDCAudience: "query-engine"}
			},
		},
		{
			name:       "oidc needs issuer and audience",
			modify:     func(c *Config) { c.Server.Auth.OIDCEnabled = true },
			wantErrors: []string{"server.auth.oidc_issuer_url", "server.auth.oidc_audience"},
		},
		{
			name: "oidc issuer must be https",
			modify: func(c *Config) {
				c.Server.Auth = AuthConfig{OIDCEnabled: true, OIDCIssuerURL: "http://issuer.example.com", OIDCAudience: "query-engine"}
			},
			wantErrors: []string{"server.auth.oidc_issuer_url"},
		},
		{
			name:        "unauthenticated admin endpoints warn",
			modify:      func(*Config) {},
			wantWarning: "server.auth",
		},
		{
			name: "cors credentials with wildcard origin",
			modify: func(c *Config) {
				c.Server.CORS = CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true}
			},
			wantErrors: []string{"server.cors.allow_credentials"},
		},
		{
			name:        "cors without origins warns",
			modify:      func(c *Config) { c.Server.CORS = CORSConfig{Enabled: true} },
			wantWarning: "server.cors.allowed_origins",
		},
		{
			name:       "enabled rate limit needs values",
			modify:     func(c *Config) { c.Server.RateLimit = RateLimitConfig{Enabled: true} },
			wantErrors: []string{"server.rate_limit.rps", "server.rate_limit.burst"},
		},
		{
			name:        "disabled rate limit with values warns",
			modify:      func(c *Config) { c.Server.RateLimit = RateLimitConfig{RPS: 5, Burst: 10} },
			wantWarning: "server.rate_limit.enabled",
		},
		{
			name:       "default page size above max",
			modify:     func(c *Config) { c.Engine.DefaultPageSize = 2000 },
			wantErrors: []string{"engine.default_page_size"},
		},
		{
			name:   "max page size zero disables cap",
			modify: func(c *Config) { c.Engine.MaxPageSize = 0; c.Engine.DefaultPageSize = 5000 },
		},
		{
			name:       "bad table pattern",
			modify:     func(c *Config) { c.Engine.Tables = []string{"post_[a-"} },
			wantErrors: []string{"engine.tables"},
		},
		{
			name:        "no tables warns",
			modify:      func(c *Config) { c.Engine.Tables = nil },
			wantWarning: "engine.tables",
		},
		{
			name:       "negative refresh interval",
			modify:     func(c *Config) { c.Engine.SchemaRefresh.MinInterval = -time.Second },
			wantErrors: []string{"engine.schema_refresh.min_interval"},
		},
		{
			name: "refresh max below min warns",
			modify: func(c *Config) {
				c.Engine.SchemaRefresh = SchemaRefreshConfig{MinInterval: time.Minute, MaxInterval: time.Second}
			},
			wantWarning: "engine.schema_refresh.max_interval",
		},
		{
			name:       "invalid log level",
			modify:     func(c *Config) { c.Observability.Logging.Level = "verbose" },
			wantErrors: []string{"observability.logging.level"},
		},
		{
			name:       "invalid log format",
			modify:     func(c *Config) { c.Observability.Logging.Format = "xml" },
			wantErrors: []string{"observability.logging.format"},
		},
		{
			name:       "invalid sample ratio",
			modify:     func(c *Config) { c.Observability.TraceSampleRatio = 1.5 },
			wantErrors: []string{"observability.trace_sample_ratio"},
		},
		{
			name:       "invalid otlp protocol",
			modify:     func(c *Config) { c.Observability.OTLP.Protocol = "thrift" },
			wantErrors: []string{"observability.otlp.protocol"},
		},
		{
			name: "http endpoint must be host:port or URL",
			modify: func(c *Config) {
				c.Observability.Traces = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "collector"}
			},
			wantErrors: []string{"observability.traces.endpoint"},
		},
		{
			name: "http endpoint URL accepted",
			modify: func(c *Config) {
				c.Observability.Logs = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "https://collector:4318"}
			},
		},
		{
			name:       "invalid compression",
			modify:     func(c *Config) { c.Observability.OTLP.Compression = "zstd" },
			wantErrors: []string{"observability.otlp.compression"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			result := cfg.Validate()

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			if len(tt.wantErrors) == 0 {
				assert.False(t, result.HasErrors(), "unexpected errors: %s", result.Error())
			} else {
				assert.ElementsMatch(t, tt.wantErrors, fields)
			}

			if tt.wantWarning != "" {
				var warned []string
				for _, w := range result.Warnings {
					warned = append(warned, w.Field)
				}
				assert.Contains(t, warned, tt.wantWarning)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "server.port", Message: "out of range", Hint: "use 1-65535"}
	assert.Equal(t, "server.port: out of range (hint: use 1-65535)", err.Error())

	err.Hint = ""
	assert.Equal(t, "server.port: out of range", err.Error())

	result := &ValidationResult{}
	assert.Empty(t, result.Error())
	result.Errors = append(result.Errors, err, ValidationError{Field: "a", Message: "b"})
	assert.Equal(t, "server.port: out of range; a: b", result.Error())
}

func TestObservabilityConfig_SignalOverrides(t *testing.T) {
	obs := ObservabilityConfig{
		OTLP: OTLPConfig{
			Endpoint:    "collector:4317",
			Protocol:    "grpc",
			Insecure:    true,
			Headers:     map[string]string{"team": "data"},
			Compression: "gzip",
			Timeout:     10 * time.Second,
		},
	}

	assert.Equal(t, obs.OTLP, obs.GetTracesConfig())
	assert.Equal(t, obs.OTLP, obs.GetLogsConfig())

	obs.Traces = &OTLPConfig{
		Endpoint: "tempo:4318",
		Protocol: "http/protobuf",
		Headers:  map[string]string{"tenant": "a"},
	}
	traces := obs.GetTracesConfig()
	assert.Equal(t, "tempo:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.False(t, traces.Insecure)
	assert.Equal(t, "gzip", traces.Compression)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, map[string]string{"team": "data", "tenant": "a"}, traces.Headers)
	assert.Equal(t, map[string]string{"team": "data"}, obs.OTLP.Headers)
}
