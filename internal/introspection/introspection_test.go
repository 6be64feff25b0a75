package introspection

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectTable(mock sqlmock.Sqlmock, table string, columns [][]driver.Value, pks []string, fks [][]driver.Value, indexes [][]driver.Value) {
	colRows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"})
	for _, c := range columns {
		colRows.AddRow(c...)
	}
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WithArgs("app", table).WillReturnRows(colRows)

	pkRows := sqlmock.NewRows([]string{"COLUMN_NAME"})
	for _, pk := range pks {
		pkRows.AddRow(pk)
	}
	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").WithArgs("app", table).WillReturnRows(pkRows)

	fkRows := sqlmock.NewRows([]string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"})
	for _, fk := range fks {
		fkRows.AddRow(fk...)
	}
	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").WithArgs("app", table).WillReturnRows(fkRows)

	idxRows := sqlmock.NewRows([]string{"INDEX_NAME", "NON_UNIQUE", "SEQ_IN_INDEX", "COLUMN_NAME"})
	for _, idx := range indexes {
		idxRows.AddRow(idx...)
	}
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.STATISTICS").WithArgs("app", table).WillReturnRows(idxRows)
}

func TestIntrospectDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("audit_log").AddRow("posts").AddRow("users"))
	expectTable(mock, "posts",
		[][]driver.Value{
			{"id", "INT", "int(11)", "NO", nil, "auto_increment"},
			{"title", "varchar", "varchar(255)", "NO", nil, ""},
			{"author_id", "int", "int(11)", "YES", nil, ""},
		},
		[]string{"id"},
		[][]driver.Value{{"author_id", "users", "id", "fk_author", 1}},
		[][]driver.Value{
			{"PRIMARY", 0, 1, "id"},
			{"idx_expr", 1, 1, nil},
		},
	)
	expectTable(mock, "users",
		[][]driver.Value{
			{"id", "bigint", "bigint(20)", "NO", nil, "auto_random(5)"},
			{"email", "varchar", "varchar(255)", "NO", "''", ""},
		},
		[]string{"id"},
		nil,
		[][]driver.Value{
			{"PRIMARY", 0, 1, "id"},
			{"uniq_email", 0, 1, "email"},
		},
	)

	schema, err := IntrospectDatabase(context.Background(), db, "app", []string{"posts", "USER*"})
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)

	posts, ok := schema.Table("posts")
	require.True(t, ok)
	require.Len(t, posts.Columns, 3)
	assert.Equal(t, "int", posts.Columns[0].DataType)
	assert.True(t, posts.Columns[0].IsPrimaryKey)
	assert.True(t, posts.Columns[0].IsAutoIncrement)
	assert.True(t, posts.Columns[2].IsNullable)
	assert.Equal(t, []ForeignKey{{ColumnName: "author_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "fk_author", OrdinalPosition: 1}}, posts.ForeignKeys)
	assert.Equal(t, []Index{{Name: "PRIMARY", Unique: true, Columns: []string{"id"}}}, posts.Indexes)

	users, ok := schema.Table("users")
	require.True(t, ok)
	assert.True(t, users.Columns[0].IsAutoIncrement, "auto_random counts as generated key")
	assert.True(t, users.Columns[1].HasDefault)
	assert.Equal(t, [][]string{{"id"}, {"email"}}, UniqueColumnSets(*users))

	_, ok = schema.Table("audit_log")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntrospectDatabase_Errors(t *testing.T) {
	t.Run("table listing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").WillReturnError(errors.New("denied"))
		_, err = IntrospectDatabase(context.Background(), db, "app", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list tables")
	})

	t.Run("columns", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
			WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("posts"))
		mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WillReturnError(errors.New("boom"))
		_, err = IntrospectDatabase(context.Background(), db, "app", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read columns of posts")
	})

	t.Run("bad pattern", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
			WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("posts"))
		_, err = IntrospectDatabase(context.Background(), db, "app", []string{"[a-"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table pattern")
	})
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     bool
	}{
		{"posts", nil, true},
		{"posts", []string{"*"}, true},
		{"posts", []string{"user*"}, false},
		{"Posts", []string{"post?"}, true},
		{"post_tags", []string{"users", "post_*"}, true},
	}
	for _, tt := range tests {
		got, err := MatchesAny(tt.name, tt.patterns)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %v", tt.name, tt.patterns)
	}
}

func TestPrimaryKeyColumns(t *testing.T) {
	table := Table{
		Name: "order_items",
		Columns: []Column{
			{Name: "order_id", IsPrimaryKey: true},
			{Name: "product_id", IsPrimaryKey: true},
			{Name: "quantity"},
		},
	}
	cols := PrimaryKeyColumns(table)
	require.Len(t, cols, 2)
	assert.Equal(t, "order_id", cols[0].Name)
	assert.Equal(t, "product_id", cols[1].Name)

	assert.Empty(t, PrimaryKeyColumns(Table{Name: "logs", Columns: []Column{{Name: "message"}}}))

	col, ok := table.Column("quantity")
	assert.True(t, ok)
	assert.False(t, col.IsPrimaryKey)
	_, ok = table.Column("missing")
	assert.False(t, ok)
}
