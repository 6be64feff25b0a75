package introspection

// PrimaryKeyColumns returns all primary key columns for a table in column order.
// Returns an empty slice if the table has no primary key.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// UniqueColumnSets lists the column sets guaranteed unique: the primary key
// followed by every unique index.
func UniqueColumnSets(table Table) [][]string {
	var sets [][]string
	if pk := PrimaryKeyColumns(table); len(pk) > 0 {
		names := make([]string, len(pk))
		for i, col := range pk {
			names[i] = col.Name
		}
		sets = append(sets, names)
	}
	for _, idx := range table.Indexes {
		if idx.Unique && idx.Name != "PRIMARY" {
			sets = append(sets, append([]string(nil), idx.Columns...))
		}
	}
	return sets
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}
