package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"query-engine/internal/config"
	"query-engine/internal/dbexec"
	"query-engine/internal/introspection"
	"query-engine/internal/logging"
	"query-engine/internal/middleware"
	"query-engine/internal/models"
	"query-engine/internal/observability"
	"query-engine/internal/schemarefresh"
	"query-engine/internal/sqlconnector"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	queryPath   = "/query"
	healthPath  = "/health"
	metricsPath = "/metrics"
	reloadPath  = "/admin/reload-schema"
)

// InitLogger builds the process logger and, when log exports are enabled,
// an OTLP logger provider bridged into it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func otlpExporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.EngineMetrics, *observability.SchemaRefreshMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")

	engineMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	schemaRefreshMetrics, err := observability.InitSchemaRefreshMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	return meterProvider, engineMetrics, schemaRefreshMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       otlpExporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}
	observability.SetupPropagation()

	logger.Info("OpenTelemetry tracing initialized successfully")

	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, databaseName string) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database", databaseName),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers or the connection
// timeout passes. A zero timeout tries once.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// resolveAllowedRoles returns the configured roles, or the roles granted
// to the connecting user when none are configured.
func resolveAllowedRoles(ctx context.Context, cfg *config.Config, db introspection.Queryer, logger *logging.Logger) ([]string, error) {
	if len(cfg.Server.Roles.Allowed) > 0 {
		logger.Info("using configured database roles", slog.Any("roles", cfg.Server.Roles.Allowed))
		return cfg.Server.Roles.Allowed, nil
	}

	roles, err := introspection.DiscoverRoles(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("no roles are granted to the database user; grant roles or set server.roles.allowed")
	}
	logger.Info("discovered database roles", slog.Any("roles", roles))
	return roles, nil
}

// warnBroadGrants logs direct SELECT grants of the connecting user, which
// make SET ROLE restrictions ineffective.
func warnBroadGrants(ctx context.Context, db introspection.Queryer, databaseName string, logger *logging.Logger) {
	grants, err := introspection.BroadGrants(ctx, db, databaseName)
	if err != nil {
		logger.Warn("failed to inspect database user grants", slog.String("error", err.Error()))
		return
	}
	if len(grants) > 0 {
		logger.Warn("database user has direct read privileges that bypass role restrictions",
			slog.Any("grants", grants),
			slog.String("hint", "connect with a user that only holds role grants"),
		)
	}
}

func buildExecutor(cfg *config.Config, db *sql.DB, allowedRoles []string, databaseName string) executor {
	if !cfg.Server.Roles.Enabled {
		return dbexec.NewStandardExecutor(db)
	}
	return dbexec.NewRoleExecutor(dbexec.RoleExecutorConfig{
		DB:           db,
		DatabaseName: databaseName,
		RoleFromCtx:  middleware.RoleFromContext,
		AllowedRoles: allowedRoles,
		ValidateRole: true,
	})
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, metrics *observability.SchemaRefreshMetrics, databaseName string) (*schemarefresh.Manager, context.CancelFunc, error) {
	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		Queryer:      db,
		DatabaseName: databaseName,
		Tables:       cfg.Engine.Tables,
		Naming:       cfg.Engine.Naming,
		Logger:       logger,
		Metrics:      metrics,
		MinInterval:  cfg.Engine.SchemaRefresh.MinInterval,
		MaxInterval:  cfg.Engine.SchemaRefresh.MaxInterval,
	})
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)

	return manager, schemaCancel, nil
}

func buildQueryHandler(cfg *config.Config, logger *logging.Logger, dataModel func() *models.InternalDataModel, exec executor, metrics *observability.EngineMetrics) http.Handler {
	h := &queryHandler{
		connector: sqlconnector.New(exec, sqlconnector.Options{MaxInValues: cfg.Engine.MaxInValues}),
		dataModel: dataModel,
		limits:    pageLimits(cfg),
		maxBytes:  cfg.Server.MaxRequestBytes,
		timeout:   cfg.Server.RequestTimeout,
		metrics:   metrics,
	}
	logger.Info("query endpoint configured",
		slog.Int("default_page_size", cfg.Engine.DefaultPageSize),
		slog.Int("max_page_size", cfg.Engine.MaxPageSize),
		slog.Int("max_in_values", cfg.Engine.MaxInValues),
	)
	return h
}

func oidcAuthConfig(cfg *config.Config, metrics *observability.EngineMetrics) middleware.OIDCAuthConfig {
	auth := cfg.Server.Auth
	return middleware.OIDCAuthConfig{
		Enabled:       auth.OIDCEnabled,
		IssuerURL:     auth.OIDCIssuerURL,
		Audience:      auth.OIDCAudience,
		ClockSkew:     auth.OIDCClockSkew,
		CAFile:        auth.OIDCCAFile,
		SkipTLSVerify: auth.OIDCSkipTLSVerify,
		Metrics:       metrics,
	}
}

// buildAuthMiddleware returns the bearer-token check for the query endpoint.
// It passes requests through unchanged when OIDC is disabled.
func buildAuthMiddleware(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *observability.EngineMetrics) (func(http.Handler) http.Handler, error) {
	authMiddleware, err := middleware.OIDCAuthMiddleware(ctx, oidcAuthConfig(cfg, metrics), logger)
	if err != nil {
		return nil, err
	}
	if cfg.Server.Auth.OIDCEnabled {
		logger.Info("OIDC auth middleware enabled", slog.String("issuer", cfg.Server.Auth.OIDCIssuerURL))
	}
	return authMiddleware, nil
}

// buildAdminHandler gates the schema reload endpoint. A shared admin token
// takes precedence over OIDC.
func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager schemaRefresher, authMiddleware func(http.Handler) http.Handler, metrics *observability.EngineMetrics) (http.Handler, error) {
	var adminHandler http.Handler = schemaReloadHandler(manager)
	switch {
	case cfg.Server.Auth.AdminToken != "":
		tokenMiddleware, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:      cfg.Server.Auth.AdminToken,
			HeaderName: cfg.Server.Auth.AdminTokenHeader,
			Metrics:    metrics,
		})
		if err != nil {
			return nil, err
		}
		adminHandler = tokenMiddleware(adminHandler)
		logger.Info("admin endpoints require the admin token", slog.String("header", cfg.Server.Auth.AdminTokenHeader))
	case cfg.Server.Auth.OIDCEnabled && authMiddleware != nil:
		adminHandler = authMiddleware(adminHandler)
		logger.Info("admin endpoints require authentication")
	default:
		logger.Warn("admin endpoints are not authenticated - configure an admin token or enable OIDC authentication",
			slog.String("path", reloadPath),
		)
	}
	return adminHandler, nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, queryHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(queryPath, queryHandler)
	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))
	mux.Handle(reloadPath, adminHandler)

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	return mux
}

// wrapHTTPHandler applies the middleware chain:
//
//	request -> rate limit -> cors -> otelhttp -> recover -> logging -> auth -> db role -> mux
//
// Auth and the role check only guard the query endpoint. A nil
// authMiddleware skips token validation.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, mux *http.ServeMux, allowedRoles []string, authMiddleware func(http.Handler) http.Handler) http.Handler {
	var queryGate http.Handler = mux
	gated := false
	if cfg.Server.Roles.Enabled {
		queryGate = middleware.DBRoleMiddleware(middleware.RoleSource{
			Header: cfg.Server.Roles.Header,
			Claim:  cfg.Server.Roles.Claim,
		}, allowedRoles)(queryGate)
		gated = true
		logger.Info("database role middleware enabled",
			slog.String("header", cfg.Server.Roles.Header),
			slog.String("claim", cfg.Server.Roles.Claim),
		)
	}
	if cfg.Server.Auth.OIDCEnabled && authMiddleware != nil {
		queryGate = authMiddleware(queryGate)
		gated = true
	}

	var handler http.Handler = mux
	if gated {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == queryPath {
				queryGate.ServeHTTP(w, r)
				return
			}
			mux.ServeHTTP(w, r)
		})
	}

	handler = middleware.LoggingMiddleware(logger)(handler)
	handler = middleware.RecoverMiddleware(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORS.Enabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORS.Enabled,
			AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
			AllowedMethods:   cfg.Server.CORS.AllowedMethods,
			AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
			ExposeHeaders:    cfg.Server.CORS.ExposeHeaders,
			AllowCredentials: cfg.Server.CORS.AllowCredentials,
			MaxAge:           cfg.Server.CORS.MaxAge,
		})(handler)
		logger.Info("CORS enabled", slog.Any("origins", cfg.Server.CORS.AllowedOrigins))
	}

	if cfg.Server.RateLimit.Enabled {
		keyHeader := ""
		if cfg.Server.Roles.Enabled {
			keyHeader = cfg.Server.Roles.Header
		}
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:   cfg.Server.RateLimit.Enabled,
			RPS:       cfg.Server.RateLimit.RPS,
			Burst:     cfg.Server.RateLimit.Burst,
			KeyHeader: keyHeader,
			IdleTTL:   10 * time.Minute,
		})(handler)
		logger.Info("rate limiting enabled",
			slog.Float64("rps", cfg.Server.RateLimit.RPS),
			slog.Int("burst", cfg.Server.RateLimit.Burst),
		)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case queryPath, healthPath, metricsPath, reloadPath:
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("query_endpoint", queryPath),
			slog.String("health_endpoint", healthPath),
			slog.Int("default_page_size", cfg.Engine.DefaultPageSize),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}
		if cfg.Server.Roles.Enabled {
			logAttrs = append(logAttrs, slog.String("role_header", cfg.Server.Roles.Header))
		}

		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}

// schemaRefresher is the part of the schema manager the reload endpoint uses.
type schemaRefresher interface {
	RefreshNow(ctx context.Context) error
}

func schemaReloadHandler(manager schemaRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			middleware.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}

		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, refreshCancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer refreshCancel()

		if err := manager.RefreshNow(refreshCtx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			middleware.WriteError(w, http.StatusInternalServerError, "schema_reload_failed", "schema reload failed")
			return
		}

		reqLogger.Info("schema reloaded successfully")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}
