// Package introspection reads table metadata from information_schema. Its
// output feeds the data model builder and is independent of model naming.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Column represents a database column
type Column struct {
	Name            string
	DataType        string
	ColumnType      string
	IsNullable      bool
	IsPrimaryKey    bool
	IsAutoIncrement bool
	IsGenerated     bool
	HasDefault      bool
}

// Index represents a database index with ordered columns.
type Index struct {
	Name    string
	Unique  bool
	Columns []string
}

// ForeignKey is one KEY_COLUMN_USAGE row of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string // e.g., "author_id"
	ReferencedTable  string // e.g., "users"
	ReferencedColumn string // e.g., "id"
	ConstraintName   string // e.g., "posts_ibfk_1"
	OrdinalPosition  int
}

// Table represents a base table.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
	Indexes     []Index
}

// Schema represents the introspected database schema
type Schema struct {
	Tables []Table
}

// Table looks a table up by name.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// IntrospectDatabase reads every base table of databaseName whose name
// matches one of the glob patterns. No patterns means every table.
func IntrospectDatabase(ctx context.Context, db Queryer, databaseName string, patterns []string) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	names, err := getTables(ctx, db, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	schema := &Schema{}
	for _, name := range names {
		ok, err := MatchesAny(name, patterns)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if !ok {
			continue
		}
		table, err := introspectTable(ctx, db, databaseName, name)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		schema.Tables = append(schema.Tables, table)
	}
	span.SetAttributes(attribute.Int("db.table_count", len(schema.Tables)))
	return schema, nil
}

func introspectTable(ctx context.Context, db Queryer, databaseName, name string) (Table, error) {
	table := Table{Name: name}
	var err error
	if table.Columns, err = getColumns(ctx, db, databaseName, name); err != nil {
		return Table{}, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	primaryKeys, err := getPrimaryKeys(ctx, db, databaseName, name)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read primary key of %s: %w", name, err)
	}
	markPrimaryKey(table.Columns, primaryKeys)
	if table.ForeignKeys, err = getForeignKeys(ctx, db, databaseName, name); err != nil {
		return Table{}, fmt.Errorf("failed to read foreign keys of %s: %w", name, err)
	}
	if table.Indexes, err = getIndexes(ctx, db, databaseName, name); err != nil {
		return Table{}, fmt.Errorf("failed to read indexes of %s: %w", name, err)
	}
	return table, nil
}

// MatchesAny reports whether name matches one of the glob patterns. Matching
// is case-insensitive. An empty pattern list matches everything.
func MatchesAny(name string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	lower := strings.ToLower(name)
	for _, pattern := range patterns {
		ok, err := path.Match(strings.ToLower(pattern), lower)
		if err != nil {
			return false, fmt.Errorf("invalid table pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func markPrimaryKey(columns []Column, primaryKeys []string) {
	for _, pk := range primaryKeys {
		for i := range columns {
			if columns[i].Name == pk {
				columns[i].IsPrimaryKey = true
			}
		}
	}
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			COLUMN_TYPE,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		var columnDefault sql.NullString
		var extra string
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &isNullable, &columnDefault, &extra); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.DataType = strings.ToLower(col.DataType)
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.HasDefault = columnDefault.Valid
		extraLower := strings.ToLower(extra)
		col.IsAutoIncrement = strings.Contains(extraLower, "auto_increment") || strings.Contains(extraLower, "auto_random")
		col.IsGenerated = strings.Contains(extraLower, "generated")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var primaryKeys []string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		primaryKeys = append(primaryKeys, columnName)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return primaryKeys, nil
}

func getForeignKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME,
			CONSTRAINT_NAME,
			ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var foreignKeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable,
			&fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		foreignKeys = append(foreignKeys, fk)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return foreignKeys, nil
}

func getIndexes(ctx context.Context, db Queryer, databaseName, tableName string) ([]Index, error) {
	ctx, span := startSpan(ctx, "introspection.get_indexes",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			INDEX_NAME,
			NON_UNIQUE,
			SEQ_IN_INDEX,
			COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	indexByName := make(map[string]*Index)
	for rows.Next() {
		var indexName string
		var nonUnique int
		var seq int
		var columnName sql.NullString
		if err := rows.Scan(&indexName, &nonUnique, &seq, &columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		// Expression indexes have no column and cannot back a relation.
		if !columnName.Valid {
			continue
		}
		index, ok := indexByName[indexName]
		if !ok {
			index = &Index{Name: indexName, Unique: nonUnique == 0}
			indexByName[indexName] = index
		}
		index.Columns = append(index.Columns, columnName.String)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	indexes := make([]Index, 0, len(indexByName))
	for _, index := range indexByName {
		indexes = append(indexes, *index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
	return indexes, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("query-engine/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
