// Package sqlutil holds MySQL identifier quoting shared by the SQL renderers.
package sqlutil

import "strings"

// QuoteIdentifier wraps name in backticks, doubling any backtick inside it.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteQualified quotes a table.column reference. An empty table yields the
// bare quoted column.
func QuoteQualified(table, column string) string {
	if table == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}
