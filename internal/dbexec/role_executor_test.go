package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestRoleExecutorConfig(t *testing.T) {
	executor := NewRoleExecutor(RoleExecutorConfig{
		RoleFromCtx: func(ctx context.Context) (string, bool) {
			return "test_role", true
		},
		AllowedRoles: []string{"app_admin", "app_analyst"},
		ValidateRole: true,
	})

	if len(executor.allowedRoles) != 2 {
		t.Errorf("expected 2 allowed roles, got %d", len(executor.allowedRoles))
	}
	if _, ok := executor.allowedRoles["app_admin"]; !ok {
		t.Error("expected app_admin to be in allowed roles")
	}
	if !executor.validateRole {
		t.Error("expected validateRole to be true")
	}
}

func TestStandardExecutor(t *testing.T) {
	t.Run("nil db returns error", func(t *testing.T) {
		executor := &StandardExecutor{db: nil}

		_, err := executor.QueryContext(context.Background(), "SELECT 1")
		if err != sql.ErrConnDone {
			t.Errorf("expected ErrConnDone, got %v", err)
		}
		_, err = executor.ExecContext(context.Background(), "DELETE FROM t")
		if err != sql.ErrConnDone {
			t.Errorf("expected ErrConnDone, got %v", err)
		}
		_, err = executor.BeginTx(context.Background())
		if err != sql.ErrConnDone {
			t.Errorf("expected ErrConnDone, got %v", err)
		}
	})

	t.Run("transaction commits once", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectCommit()

		tx, err := NewStandardExecutor(db).BeginTx(context.Background())
		if err != nil {
			t.Fatalf("BeginTx failed: %v", err)
		}
		rows, err := tx.QueryContext(context.Background(), "SELECT 1")
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		cols, err := rows.Columns()
		if err != nil || len(cols) != 1 {
			t.Errorf("expected one column, got %v (%v)", cols, err)
		}
		_ = rows.Close()

		if err := tx.Commit(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}
		if err := tx.Rollback(); !errors.Is(err, ErrTxDone) {
			t.Errorf("expected ErrTxDone after commit, got %v", err)
		}
		if _, err := tx.ExecContext(context.Background(), "DELETE FROM t"); !errors.Is(err, ErrTxDone) {
			t.Errorf("expected ErrTxDone after commit, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestRoleExecutorTransaction(t *testing.T) {
	t.Run("applies role and database before begin", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("SET ROLE NONE").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("SET ROLE `app_admin`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("USE `blog`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectRollback()
		mock.ExpectExec("SET ROLE DEFAULT").WillReturnResult(sqlmock.NewResult(0, 0))

		executor := NewRoleExecutor(RoleExecutorConfig{
			DB:           db,
			DatabaseName: "blog",
			RoleFromCtx: func(ctx context.Context) (string, bool) {
				return "app_admin", true
			},
			AllowedRoles: []string{"app_admin"},
			ValidateRole: true,
		})

		tx, err := executor.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("BeginTx failed: %v", err)
		}
		res, err := tx.ExecContext(context.Background(), "DELETE FROM t")
		if err != nil {
			t.Fatalf("exec failed: %v", err)
		}
		if n, _ := res.RowsAffected(); n != 3 {
			t.Errorf("expected 3 rows affected, got %d", n)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rejects roles outside the allowlist", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("SET ROLE DEFAULT").WillReturnResult(sqlmock.NewResult(0, 0))

		executor := NewRoleExecutor(RoleExecutorConfig{
			DB: db,
			RoleFromCtx: func(ctx context.Context) (string, bool) {
				return "superuser", true
			},
			AllowedRoles: []string{"app_admin"},
			ValidateRole: true,
		})

		_, err := executor.BeginTx(context.Background())
		if err == nil || !strings.Contains(err.Error(), "role not allowed: superuser") {
			t.Fatalf("expected role rejection, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("no role skips SET ROLE", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec("SET ROLE DEFAULT").WillReturnResult(sqlmock.NewResult(0, 0))

		executor := NewRoleExecutor(RoleExecutorConfig{
			DB: db,
			RoleFromCtx: func(ctx context.Context) (string, bool) {
				return "", false
			},
		})

		rows, err := executor.QueryContext(context.Background(), "SELECT 1")
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		for rows.Next() {
		}
		if err := rows.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}
