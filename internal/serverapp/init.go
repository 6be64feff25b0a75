package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init acquires every runtime resource in dependency order: telemetry, the
// database pool, the schema manager, then the HTTP stack. A failure releases
// whatever was acquired so far. Calling Init again after success is a no-op.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var stack cleanupStack
	ok := false
	defer func() {
		if !ok {
			stack.run(context.Background(), a.logger)
		}
	}()

	stages := []struct {
		name string
		run  func(context.Context, *cleanupStack) error
	}{
		{"telemetry", a.initTelemetry},
		{"database", a.initDatabase},
		{"query engine", a.initEngine},
		{"http", a.initHTTP},
	}
	for _, stage := range stages {
		if err := stage.run(ctx, &stack); err != nil {
			a.logger.Error("initialization failed",
				slog.String("stage", stage.name),
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	a.stateMu.Lock()
	a.cleanup = stack
	a.initialized = true
	a.stateMu.Unlock()

	ok = true
	return nil
}

func (a *App) initTelemetry(_ context.Context, stack *cleanupStack) error {
	if a.loggerProvider != nil {
		lp := a.loggerProvider
		stack.push("logger provider", func(ctx context.Context) error {
			return lp.Shutdown(ctx, a.logger.Logger)
		})
	}

	mp, engineMetrics, refreshMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if mp != nil {
		stack.push("meter provider", func(ctx context.Context) error {
			return mp.Shutdown(ctx, a.logger.Logger)
		})
	}

	tp, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tp != nil {
		stack.push("tracer provider", func(ctx context.Context) error {
			return tp.Shutdown(ctx, a.logger.Logger)
		})
	}

	a.meterProvider = mp
	a.engineMetrics = engineMetrics
	a.schemaRefreshMetrics = refreshMetrics
	a.tracerProvider = tp
	return nil
}

func (a *App) initDatabase(ctx context.Context, stack *cleanupStack) error {
	a.logger.Info("connecting to database",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.databaseName),
		slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
	)

	db, statsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	stack.push("database", func(context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})
	a.db = db
	a.dbStatsReg = statsReg

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.databaseName); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	if a.cfg.Server.Roles.Enabled {
		roles, err := resolveAllowedRoles(ctx, a.cfg, db, a.logger)
		if err != nil {
			return fmt.Errorf("failed to resolve database roles: %w", err)
		}
		warnBroadGrants(ctx, db, a.databaseName, a.logger)
		a.allowedRoles = roles
	}
	a.executor = buildExecutor(a.cfg, db, a.allowedRoles, a.databaseName)
	return nil
}

func (a *App) initEngine(ctx context.Context, stack *cleanupStack) error {
	manager, cancel, err := startSchemaManager(ctx, a.cfg, a.logger, a.db, a.schemaRefreshMetrics, a.databaseName)
	if err != nil {
		return fmt.Errorf("failed to initialize schema refresh manager: %w", err)
	}
	stack.push("schema manager", func(ctx context.Context) error {
		cancel()
		return manager.Wait(ctx)
	})
	a.manager = manager
	a.schemaCancel = cancel
	a.queryHandler = buildQueryHandler(a.cfg, a.logger, manager.DataModel, a.executor, a.engineMetrics)
	return nil
}

func (a *App) initHTTP(ctx context.Context, stack *cleanupStack) error {
	authMiddleware, err := buildAuthMiddleware(ctx, a.cfg, a.logger, a.engineMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize authentication: %w", err)
	}
	adminHandler, err := buildAdminHandler(a.cfg, a.logger, a.manager, authMiddleware, a.engineMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize admin endpoints: %w", err)
	}
	a.mux = buildRouter(a.cfg, a.logger, a.db, a.queryHandler, adminHandler, a.meterProvider)
	a.handler = wrapHTTPHandler(a.cfg, a.logger, a.mux, a.allowedRoles, authMiddleware)
	a.serverAddr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	a.srv = buildServer(a.cfg, a.handler, a.serverAddr)

	srv := a.srv
	stack.push("HTTP server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	return nil
}
