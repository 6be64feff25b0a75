package sqlconnector

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/sqlutil"
)

// renderFilter converts a filter tree into a squirrel condition. A nil
// result means no restriction.
func renderFilter(f filter.Filter) (sq.Sqlizer, error) {
	if filter.IsEmpty(f) {
		return nil, nil
	}
	switch t := f.(type) {
	case *filter.AndFilter:
		parts, err := renderAll(t.Filters)
		if err != nil {
			return nil, err
		}
		return sq.And(parts), nil
	case *filter.OrFilter:
		parts, err := renderAll(t.Filters)
		if err != nil {
			return nil, err
		}
		return sq.Or(parts), nil
	case *filter.NotFilter:
		parts, err := renderAll(t.Filters)
		if err != nil {
			return nil, err
		}
		return notExpr{inner: sq.Or(parts)}, nil
	case *filter.ScalarFilter:
		return renderScalar(t)
	default:
		return nil, fmt.Errorf("unsupported filter %T", f)
	}
}

func renderAll(filters []filter.Filter) ([]sq.Sqlizer, error) {
	out := make([]sq.Sqlizer, 0, len(filters))
	for _, f := range filters {
		part, err := renderFilter(f)
		if err != nil {
			return nil, err
		}
		if part == nil {
			part = sq.Expr("1=1")
		}
		out = append(out, part)
	}
	return out, nil
}

// renderScalar keeps single values out of sq.Eq, which would expand byte
// slices as lists.
func renderScalar(f *filter.ScalarFilter) (sq.Sqlizer, error) {
	col := sqlutil.QuoteIdentifier(f.Field.Name)
	switch f.Condition {
	case filter.Equals:
		if f.Value == nil {
			return sq.Eq{col: nil}, nil
		}
		return sq.Expr(col+" = ?", bindValue(f.Value)), nil
	case filter.NotEquals:
		if f.Value == nil {
			return sq.NotEq{col: nil}, nil
		}
		return sq.Expr(col+" <> ?", bindValue(f.Value)), nil
	case filter.In:
		return sq.Eq{col: bindValues(f.Values)}, nil
	case filter.NotIn:
		return sq.NotEq{col: bindValues(f.Values)}, nil
	case filter.LessThan, filter.LessThanOrEquals, filter.GreaterThan, filter.GreaterThanOrEquals:
		if f.Value == nil {
			return nil, fmt.Errorf("comparison %s on %s with null", f.Condition, f.Field.Name)
		}
		return sq.Expr(fmt.Sprintf("%s %s ?", col, f.Condition), bindValue(f.Value)), nil
	default:
		return nil, fmt.Errorf("unsupported condition %s", f.Condition)
	}
}

type notExpr struct {
	inner sq.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT " + sql, args, nil
}

// bindValue prepares a value for the driver. Times are bound in UTC.
func bindValue(v models.Value) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func bindValues(values []models.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = bindValue(v)
	}
	return out
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = sqlutil.QuoteIdentifier(n)
	}
	return out
}
