// Package sqlast builds small SQL condition trees with row-value
// comparisons and sub-selects. Every tree is a squirrel Sqlizer rendering
// question-mark placeholders, so connectors can embed it in their builders.
package sqlast

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"query-engine/internal/sqlutil"
)

// Column is a possibly table-qualified column reference.
type Column struct {
	Table string
	Name  string
}

// ToSql renders the quoted column.
func (c Column) ToSql() (string, []any, error) {
	if c.Name == "" {
		return "", nil, errors.New("column without name")
	}
	return sqlutil.QuoteQualified(c.Table, c.Name), nil, nil
}

// Row is a tuple of columns. A single-column row renders without parentheses.
type Row []Column

// ToSql renders the row.
func (r Row) ToSql() (string, []any, error) {
	if len(r) == 0 {
		return "", nil, errors.New("empty row")
	}
	parts := make([]string, len(r))
	for i, c := range r {
		s, _, err := c.ToSql()
		if err != nil {
			return "", nil, err
		}
		parts[i] = s
	}
	if len(parts) == 1 {
		return parts[0], nil, nil
	}
	return "(" + strings.Join(parts, ", ") + ")", nil, nil
}

// Values is a tuple of bound values.
type Values []any

// ToSql renders placeholders for the values.
func (v Values) ToSql() (string, []any, error) {
	if len(v) == 0 {
		return "", nil, errors.New("empty value row")
	}
	args := append([]any(nil), v...)
	if len(v) == 1 {
		return "?", args, nil
	}
	return "(" + sq.Placeholders(len(v)) + ")", args, nil
}

// Select is a scalar sub-select.
type Select struct {
	Table   string
	Columns Row
	Where   ConditionTree
}

// ToSql renders the parenthesized sub-select.
func (s Select) ToSql() (string, []any, error) {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		col, _, err := c.ToSql()
		if err != nil {
			return "", nil, err
		}
		cols[i] = col
	}
	builder := sq.Select(cols...).From(sqlutil.QuoteIdentifier(s.Table)).PlaceholderFormat(sq.Question)
	if s.Where != nil && !IsNoCondition(s.Where) {
		builder = builder.Where(s.Where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build sub-select: %w", err)
	}
	return "(" + query + ")", args, nil
}

// Operator is a comparison operator.
type Operator string

const (
	OpEquals      Operator = "="
	OpLessThan    Operator = "<"
	OpGreaterThan Operator = ">"
)

// ConditionTree is a boolean SQL expression.
type ConditionTree interface {
	sq.Sqlizer
	isCondition()
}

// NoCondition places no restriction.
type NoCondition struct{}

// Compare compares two expressions.
type Compare struct {
	Left  sq.Sqlizer
	Op    Operator
	Right sq.Sqlizer
}

// And conjoins conditions.
type And []ConditionTree

// Or disjoins conditions.
type Or []ConditionTree

// Not negates a condition.
type Not struct{ Condition ConditionTree }

func (NoCondition) isCondition() {}
func (Compare) isCondition()     {}
func (And) isCondition()         {}
func (Or) isCondition()          {}
func (Not) isCondition()         {}

// IsNoCondition reports whether c is NoCondition.
func IsNoCondition(c ConditionTree) bool {
	_, ok := c.(NoCondition)
	return ok
}

// ToSql renders an always-true expression.
func (NoCondition) ToSql() (string, []any, error) {
	return "1=1", nil, nil
}

// ToSql renders left op right.
func (c Compare) ToSql() (string, []any, error) {
	left, largs, err := c.Left.ToSql()
	if err != nil {
		return "", nil, err
	}
	right, rargs, err := c.Right.ToSql()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s %s", left, c.Op, right), append(largs, rargs...), nil
}

// ToSql renders the conjunction; an empty And is true.
func (a And) ToSql() (string, []any, error) {
	return sq.And(toSqlizers(a)).ToSql()
}

// ToSql renders the disjunction; an empty Or is false.
func (o Or) ToSql() (string, []any, error) {
	return sq.Or(toSqlizers(o)).ToSql()
}

// ToSql renders NOT (condition).
func (n Not) ToSql() (string, []any, error) {
	inner, args, err := n.Condition.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + inner + ")", args, nil
}

// Equals builds left = right.
func Equals(left, right sq.Sqlizer) ConditionTree {
	return Compare{Left: left, Op: OpEquals, Right: right}
}

// LessThan builds left < right.
func LessThan(left, right sq.Sqlizer) ConditionTree {
	return Compare{Left: left, Op: OpLessThan, Right: right}
}

// GreaterThan builds left > right.
func GreaterThan(left, right sq.Sqlizer) ConditionTree {
	return Compare{Left: left, Op: OpGreaterThan, Right: right}
}

func toSqlizers(conds []ConditionTree) []sq.Sqlizer {
	out := make([]sq.Sqlizer, 0, len(conds))
	for _, c := range conds {
		out = append(out, c)
	}
	return out
}
