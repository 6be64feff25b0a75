package introspection

import (
	"sort"
	"strconv"
)

// ForeignKeyConstraint is one foreign key with its columns in ordinal order.
// ColumnNames[i] references ReferencedColumns[i].
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// IsCompound reports whether the constraint spans more than one column.
func (c ForeignKeyConstraint) IsCompound() bool {
	return len(c.ColumnNames) > 1
}

// ForeignKeyConstraints folds the per-column rows of a table into
// constraints, sorted by constraint name. Rows without a constraint name
// each form their own single-column constraint.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	byName := make(map[string][]ForeignKey)
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			key = "\x00" + strconv.Itoa(i)
		}
		byName[key] = append(byName[key], fk)
	}

	keys := make([]string, 0, len(byName))
	for key := range byName {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]ForeignKeyConstraint, 0, len(keys))
	for _, key := range keys {
		rows := byName[key]
		sort.SliceStable(rows, func(i, j int) bool {
			return ordinalLess(rows[i], rows[j])
		})
		c := ForeignKeyConstraint{
			ConstraintName:  rows[0].ConstraintName,
			ReferencedTable: rows[0].ReferencedTable,
		}
		for _, row := range rows {
			c.ColumnNames = append(c.ColumnNames, row.ColumnName)
			c.ReferencedColumns = append(c.ReferencedColumns, row.ReferencedColumn)
		}
		out = append(out, c)
	}
	return out
}

// ordinalLess orders rows by ordinal position. Rows missing a position sort
// last, by column name.
func ordinalLess(a, b ForeignKey) bool {
	switch {
	case a.OrdinalPosition == b.OrdinalPosition:
		return a.ColumnName < b.ColumnName
	case a.OrdinalPosition == 0:
		return false
	case b.OrdinalPosition == 0:
		return true
	default:
		return a.OrdinalPosition < b.OrdinalPosition
	}
}
