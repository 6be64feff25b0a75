// Package serverapp wires configuration, the database, the data model and
// the query endpoint into a runnable HTTP server.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"query-engine/internal/config"
	"query-engine/internal/dbexec"
	"query-engine/internal/logging"
	"query-engine/internal/observability"
	"query-engine/internal/schemarefresh"
)

// App owns runtime resources for the query server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	databaseName string

	meterProvider        *observability.MeterProvider
	engineMetrics        *observability.EngineMetrics
	schemaRefreshMetrics *observability.SchemaRefreshMetrics
	tracerProvider       *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	allowedRoles []string
	executor     executor

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	queryHandler http.Handler
	mux          *http.ServeMux
	handler      http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// executor is what request transactions are opened on.
type executor interface {
	dbexec.QueryExecutor
	dbexec.Beginner
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	databaseName, err := cfg.Database.DatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database name: %w", err)
	}
	if databaseName == "" {
		return nil, fmt.Errorf("no database selected: set database.database or include it in database.dsn")
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		databaseName: databaseName,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
