// Package junction identifies join tables. A pure junction holds nothing but
// two foreign keys and becomes a join table relation between the referenced
// models. An attribute junction carries extra columns and stays a model.
package junction

import (
	"query-engine/internal/introspection"
)

// Type classifies how a junction table is represented in the data model.
type Type int

const (
	// NotJunction indicates the table is not a junction table.
	NotJunction Type = iota
	// PureJunction is hidden behind a many-to-many relation.
	PureJunction
	// AttributeJunction is exposed as a model with two to-one relations.
	AttributeJunction
)

// String returns a human-readable representation of the junction type.
func (t Type) String() string {
	switch t {
	case NotJunction:
		return "NotJunction"
	case PureJunction:
		return "PureJunction"
	case AttributeJunction:
		return "AttributeJunction"
	default:
		return "Unknown"
	}
}

// FKInfo describes one side of a junction.
type FKInfo struct {
	ConstraintName    string
	ColumnNames       []string // FK columns in the junction table
	ReferencedTable   string
	ReferencedColumns []string
}

// Info contains classification metadata for a junction table.
type Info struct {
	Table string
	Type  Type
	// LeftFK references the alphabetically smaller table.
	LeftFK  FKInfo
	RightFK FKInfo
	// AttributeColumns lists non-FK column names (for attribute junctions).
	AttributeColumns []string
}

// Map maps junction table names to their classification info.
type Map map[string]Info

// Pure returns the pure junction for a table, if it is one.
func (m Map) Pure(table string) (Info, bool) {
	info, ok := m[table]
	if !ok || info.Type != PureJunction {
		return Info{}, false
	}
	return info, true
}

// ClassifyJunctions analyzes schema tables and returns junction classifications.
// A table is classified as a junction when:
//   - It has exactly 2 foreign key constraints to different tables
//   - Each constraint references the full primary key of its table
//   - All FK columns are NOT NULL
//   - There is a PK or unique index covering all FK columns
//   - Both referenced tables exist in the schema
func ClassifyJunctions(schema *introspection.Schema) Map {
	result := make(Map)
	tableByName := buildTableIndex(schema)

	for _, table := range schema.Tables {
		if info, ok := classifyTable(table, tableByName); ok {
			result[table.Name] = info
		}
	}
	return result
}

func buildTableIndex(schema *introspection.Schema) map[string]*introspection.Table {
	index := make(map[string]*introspection.Table, len(schema.Tables))
	for i := range schema.Tables {
		index[schema.Tables[i].Name] = &schema.Tables[i]
	}
	return index
}

func classifyTable(table introspection.Table, tables map[string]*introspection.Table) (Info, bool) {
	constraints := introspection.ForeignKeyConstraints(table)
	if len(constraints) != 2 {
		return Info{}, false
	}
	fk1, fk2 := constraints[0], constraints[1]

	if fk1.ReferencedTable == fk2.ReferencedTable {
		return Info{}, false
	}
	for _, fk := range constraints {
		target := tables[fk.ReferencedTable]
		if target == nil || !referencesPrimaryKey(*target, fk.ReferencedColumns) {
			return Info{}, false
		}
	}

	fkColNames := make(map[string]bool)
	for _, fk := range constraints {
		for _, col := range fk.ColumnNames {
			fkColNames[col] = true
		}
	}

	for _, col := range table.Columns {
		if fkColNames[col.Name] && col.IsNullable {
			return Info{}, false
		}
	}

	if !hasCoveringConstraint(table, fkColNames) {
		return Info{}, false
	}

	attributeCols := findAttributeColumns(table, fkColNames)
	junctionType := PureJunction
	if len(attributeCols) > 0 {
		junctionType = AttributeJunction
	}

	leftFK, rightFK := orderFKs(fk1, fk2)
	return Info{
		Table:            table.Name,
		Type:             junctionType,
		LeftFK:           leftFK,
		RightFK:          rightFK,
		AttributeColumns: attributeCols,
	}, true
}

// referencesPrimaryKey reports whether columns are exactly the primary key of
// target in key order.
func referencesPrimaryKey(target introspection.Table, columns []string) bool {
	pk := introspection.PrimaryKeyColumns(target)
	if len(pk) == 0 || len(pk) != len(columns) {
		return false
	}
	for i, col := range pk {
		if col.Name != columns[i] {
			return false
		}
	}
	return true
}

func hasCoveringConstraint(table introspection.Table, fkCols map[string]bool) bool {
	for _, set := range introspection.UniqueColumnSets(table) {
		covering := make(map[string]bool, len(set))
		for _, col := range set {
			covering[col] = true
		}
		if coversAll(covering, fkCols) {
			return true
		}
	}
	return false
}

func coversAll(covering, required map[string]bool) bool {
	for col := range required {
		if !covering[col] {
			return false
		}
	}
	return true
}

func findAttributeColumns(table introspection.Table, fkCols map[string]bool) []string {
	var attrs []string
	for _, col := range table.Columns {
		if !fkCols[col.Name] {
			attrs = append(attrs, col.Name)
		}
	}
	return attrs
}

func orderFKs(fk1, fk2 introspection.ForeignKeyConstraint) (FKInfo, FKInfo) {
	left := FKInfo{
		ConstraintName:    fk1.ConstraintName,
		ColumnNames:       fk1.ColumnNames,
		ReferencedTable:   fk1.ReferencedTable,
		ReferencedColumns: fk1.ReferencedColumns,
	}
	right := FKInfo{
		ConstraintName:    fk2.ConstraintName,
		ColumnNames:       fk2.ColumnNames,
		ReferencedTable:   fk2.ReferencedTable,
		ReferencedColumns: fk2.ReferencedColumns,
	}

	if left.ReferencedTable > right.ReferencedTable {
		left, right = right, left
	}
	return left, right
}
