// Package filter defines the dialect-agnostic filter tree used by queries.
// Connectors render it into their own condition language.
package filter

import (
	"fmt"
	"strings"

	"query-engine/internal/models"
)

// Condition is a scalar comparison operator.
type Condition int

const (
	Equals Condition = iota
	NotEquals
	In
	NotIn
	LessThan
	LessThanOrEquals
	GreaterThan
	GreaterThanOrEquals
)

func (c Condition) String() string {
	switch c {
	case Equals:
		return "="
	case NotEquals:
		return "<>"
	case In:
		return "IN"
	case NotIn:
		return "NOT IN"
	case LessThan:
		return "<"
	case LessThanOrEquals:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEquals:
		return ">="
	default:
		return fmt.Sprintf("Condition(%d)", int(c))
	}
}

// Filter is a node of the filter tree.
type Filter interface {
	fmt.Stringer
	isFilter()
}

// AndFilter matches when every child matches.
type AndFilter struct{ Filters []Filter }

// OrFilter matches when any child matches. An empty OrFilter matches nothing.
type OrFilter struct{ Filters []Filter }

// NotFilter matches when no child matches.
type NotFilter struct{ Filters []Filter }

// ScalarFilter compares one column. Value is used by single-value
// conditions, Values by In and NotIn.
type ScalarFilter struct {
	Field     models.DataSourceField
	Condition Condition
	Value     models.Value
	Values    []models.Value
}

// EmptyFilter matches everything.
type EmptyFilter struct{}

func (*AndFilter) isFilter()    {}
func (*OrFilter) isFilter()     {}
func (*NotFilter) isFilter()    {}
func (*ScalarFilter) isFilter() {}
func (EmptyFilter) isFilter()   {}

// Empty returns the filter matching every record.
func Empty() Filter { return EmptyFilter{} }

// IsEmpty reports whether f places no restriction.
func IsEmpty(f Filter) bool {
	switch t := f.(type) {
	case nil, EmptyFilter:
		return true
	case *AndFilter:
		for _, c := range t.Filters {
			if !IsEmpty(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// And conjoins filters, dropping empty ones.
func And(filters ...Filter) Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if IsEmpty(f) {
			continue
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return Empty()
	case 1:
		return kept[0]
	default:
		return &AndFilter{Filters: kept}
	}
}

// Or disjoins filters. Or() with no arguments matches nothing.
func Or(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return &OrFilter{Filters: append([]Filter(nil), filters...)}
}

// Not negates the conjunction of filters.
func Not(filters ...Filter) Filter {
	return &NotFilter{Filters: append([]Filter(nil), filters...)}
}

// Merge ANDs add into existing.
func Merge(existing, add Filter) Filter {
	return And(existing, add)
}

// Scalar builds a single-value comparison.
func Scalar(field models.DataSourceField, cond Condition, value models.Value) Filter {
	return &ScalarFilter{Field: field, Condition: cond, Value: value}
}

// EqualsValue builds field = value. A nil value renders as IS NULL.
func EqualsValue(field models.DataSourceField, value models.Value) Filter {
	return Scalar(field, Equals, value)
}

// InValues builds field IN values.
func InValues(field models.DataSourceField, values []models.Value) Filter {
	return &ScalarFilter{Field: field, Condition: In, Values: values}
}

// FromProjection matches the record identified by rp.
func FromProjection(rp models.RecordProjection) Filter {
	parts := make([]Filter, 0, rp.Len())
	for _, p := range rp.Pairs {
		parts = append(parts, EqualsValue(p.Field, p.Value))
	}
	return And(parts...)
}

// FromProjections matches any of the given records. Single-column
// projections collapse into one IN filter.
func FromProjections(rps []models.RecordProjection) Filter {
	if len(rps) > 0 && allSingleColumn(rps) {
		values := make([]models.Value, len(rps))
		for i, rp := range rps {
			values[i] = rp.Pairs[0].Value
		}
		return InValues(rps[0].Pairs[0].Field, values)
	}
	parts := make([]Filter, len(rps))
	for i, rp := range rps {
		parts[i] = FromProjection(rp)
	}
	return &OrFilter{Filters: parts}
}

func allSingleColumn(rps []models.RecordProjection) bool {
	name := rps[0].Pairs
	if len(name) != 1 {
		return false
	}
	for _, rp := range rps[1:] {
		if rp.Len() != 1 || rp.Pairs[0].Field.Name != name[0].Field.Name {
			return false
		}
	}
	return true
}

func (f *AndFilter) String() string { return joinFilters("AND", f.Filters) }
func (f *OrFilter) String() string {
	if len(f.Filters) == 0 {
		return "FALSE"
	}
	return joinFilters("OR", f.Filters)
}
func (f *NotFilter) String() string { return "NOT " + joinFilters("OR", f.Filters) }
func (EmptyFilter) String() string  { return "TRUE" }

func (f *ScalarFilter) String() string {
	switch f.Condition {
	case In, NotIn:
		return fmt.Sprintf("%s %s %v", f.Field.Name, f.Condition, f.Values)
	default:
		return fmt.Sprintf("%s %s %v", f.Field.Name, f.Condition, f.Value)
	}
}

func joinFilters(op string, filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}
