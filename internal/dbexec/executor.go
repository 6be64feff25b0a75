// Package dbexec provides database query execution abstractions.
// It supports both direct execution and role-based execution using SET ROLE,
// and scopes every request to one transaction.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can swap in role-aware behavior.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxExecutor is a QueryExecutor bound to one transaction.
type TxExecutor interface {
	QueryExecutor
	Commit() error
	Rollback() error
}

// Beginner opens transactions.
type Beginner interface {
	BeginTx(ctx context.Context) (TxExecutor, error)
}

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("transaction already finished")

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction on the pool.
func (e *StandardExecutor) BeginTx(ctx context.Context) (TxExecutor, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx adapts *sql.Tx. cleanup runs once after commit or rollback.
type sqlTx struct {
	tx      *sql.Tx
	cleanup func()
	done    bool
}

func (t *sqlTx) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *sqlTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish()
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish()
	return t.tx.Rollback()
}

func (t *sqlTx) finish() {
	t.done = true
	if t.cleanup != nil {
		t.cleanup()
	}
}
