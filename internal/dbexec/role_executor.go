package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"query-engine/internal/sqlutil"
)

// RoleExecutor executes queries using SET ROLE on a dedicated connection.
type RoleExecutor struct {
	db           *sql.DB
	databaseName string
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB           *sql.DB
	DatabaseName string
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each query.
// This enables database enforced security based on database roles extracted from the request context.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	return &RoleExecutor{
		db:           cfg.DB,
		databaseName: cfg.DatabaseName,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, cleanup, err := e.prepareConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &roleAwareRows{
		Rows:    rows,
		cleanup: cleanup,
	}, nil
}

func (e *RoleExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, cleanup, err := e.prepareConn(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return conn.ExecContext(ctx, query, args...)
}

// BeginTx pins a connection, applies the request's role and starts a
// transaction on it. The connection is released when the transaction ends.
func (e *RoleExecutor) BeginTx(ctx context.Context) (TxExecutor, error) {
	conn, cleanup, err := e.prepareConn(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx, cleanup: cleanup}, nil
}

// prepareConn acquires a connection with the role and database applied.
func (e *RoleExecutor) prepareConn(ctx context.Context) (*sql.Conn, func(), error) {
	if e.db == nil {
		return nil, nil, sql.ErrConnDone
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	cleanup := func() {
		_, _ = conn.ExecContext(context.Background(), "SET ROLE DEFAULT")
		_ = conn.Close()
	}

	if err := e.applyRole(ctx, conn); err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := e.useDatabase(ctx, conn); err != nil {
		cleanup()
		return nil, nil, err
	}
	return conn, cleanup, nil
}

func (e *RoleExecutor) applyRole(ctx context.Context, conn *sql.Conn) error {
	if e.roleFromCtx == nil {
		return nil
	}
	role, ok := e.roleFromCtx(ctx)
	if !ok || role == "" {
		return nil
	}
	if e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return fmt.Errorf("role not allowed: %s", role)
		}
	}
	// First disable all roles to start from a clean slate.
	if _, err := conn.ExecContext(ctx, "SET ROLE NONE"); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	// SET ROLE takes no placeholders; the name is quoted and checked against the allowlist.
	setRoleSQL := fmt.Sprintf("SET ROLE %s", sqlutil.QuoteIdentifier(role))
	if _, err := conn.ExecContext(ctx, setRoleSQL); err != nil {
		return fmt.Errorf("failed to set role %s: %w", role, err)
	}
	return nil
}

func (e *RoleExecutor) useDatabase(ctx context.Context, conn *sql.Conn) error {
	if e.databaseName == "" {
		return nil
	}
	useSQL := fmt.Sprintf("USE %s", sqlutil.QuoteIdentifier(e.databaseName))
	if _, err := conn.ExecContext(ctx, useSQL); err != nil {
		return fmt.Errorf("failed to select database %s: %w", e.databaseName, err)
	}
	return nil
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
