package models

import (
	"fmt"
	"sort"
	"strings"
)

// ModelProjection is an ordered list of fields, typically an identifier.
type ModelProjection struct {
	fields []Field
}

// NewModelProjection builds a projection over the given fields.
func NewModelProjection(fields ...Field) ModelProjection {
	return ModelProjection{fields: append([]Field(nil), fields...)}
}

func (p ModelProjection) Fields() []Field { return p.fields }
func (p ModelProjection) Len() int        { return len(p.fields) }
func (p ModelProjection) IsEmpty() bool   { return len(p.fields) == 0 }

// DataSourceFields flattens the projection into its physical columns.
func (p ModelProjection) DataSourceFields() []DataSourceField {
	out := make([]DataSourceField, 0, len(p.fields))
	for _, f := range p.fields {
		out = append(out, f.DataSourceFields()...)
	}
	return out
}

// DBLen is the number of physical columns.
func (p ModelProjection) DBLen() int {
	n := 0
	for _, f := range p.fields {
		n += len(f.DataSourceFields())
	}
	return n
}

// ColumnNames returns the names of the physical columns in order.
func (p ModelProjection) ColumnNames() []string {
	ds := p.DataSourceFields()
	out := make([]string, len(ds))
	for i, f := range ds {
		out[i] = f.Name
	}
	return out
}

// Merge appends the fields of other that are not already present.
func (p ModelProjection) Merge(other ModelProjection) ModelProjection {
	merged := append([]Field(nil), p.fields...)
	seen := make(map[string]bool, len(merged))
	for _, f := range merged {
		seen[strings.Join(columnNames(f), ",")] = true
	}
	for _, f := range other.fields {
		key := strings.Join(columnNames(f), ",")
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, f)
	}
	return ModelProjection{fields: merged}
}

// FromUnchecked zips the projection's columns with values. The caller
// guarantees the value count equals DBLen.
func (p ModelProjection) FromUnchecked(values []Value) RecordProjection {
	ds := p.DataSourceFields()
	pairs := make([]Pair, 0, len(ds))
	for i, f := range ds {
		if i >= len(values) {
			break
		}
		pairs = append(pairs, Pair{Field: f, Value: values[i]})
	}
	return RecordProjection{Pairs: pairs}
}

// Assimilate re-labels a record projection of the same arity with this
// projection's columns.
func (p ModelProjection) Assimilate(rp RecordProjection) (RecordProjection, error) {
	if rp.Len() != p.DBLen() {
		return RecordProjection{}, fmt.Errorf("cannot assimilate %d values into projection of %d columns", rp.Len(), p.DBLen())
	}
	return p.FromUnchecked(rp.Values()), nil
}

func (p ModelProjection) String() string {
	return "(" + strings.Join(p.ColumnNames(), ", ") + ")"
}

func columnNames(f Field) []string {
	ds := f.DataSourceFields()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

// Pair binds a column to a value.
type Pair struct {
	Field DataSourceField
	Value Value
}

// RecordProjection is the value of a ModelProjection for one record. Equality
// and Key ignore pair order; String renders pairs in order.
type RecordProjection struct {
	Pairs []Pair
}

// NewRecordProjection builds a record projection from pairs.
func NewRecordProjection(pairs ...Pair) RecordProjection {
	return RecordProjection{Pairs: pairs}
}

func (rp RecordProjection) Len() int { return len(rp.Pairs) }

// Fields returns the columns in order.
func (rp RecordProjection) Fields() []DataSourceField {
	out := make([]DataSourceField, len(rp.Pairs))
	for i, p := range rp.Pairs {
		out[i] = p.Field
	}
	return out
}

// Values returns the values in order.
func (rp RecordProjection) Values() []Value {
	out := make([]Value, len(rp.Pairs))
	for i, p := range rp.Pairs {
		out[i] = p.Value
	}
	return out
}

// Key is a canonical, order-independent identity usable as a map key.
func (rp RecordProjection) Key() string {
	parts := make([]string, len(rp.Pairs))
	for i, p := range rp.Pairs {
		parts[i] = p.Field.Name + "=" + CanonicalValue(p.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "\x1f")
}

// ValuesKey is an order-sensitive identity over the values alone.
func (rp RecordProjection) ValuesKey() string {
	return CanonicalValues(rp.Values())
}

// Equal compares two projections as sets of pairs.
func (rp RecordProjection) Equal(other RecordProjection) bool {
	return rp.Len() == other.Len() && rp.Key() == other.Key()
}

// Clone copies the pairs.
func (rp RecordProjection) Clone() RecordProjection {
	return RecordProjection{Pairs: append([]Pair(nil), rp.Pairs...)}
}

// SplitInto picks, for each shape, the pairs matching its columns.
func (rp RecordProjection) SplitInto(shapes ...ModelProjection) ([]RecordProjection, error) {
	byName := make(map[string]Pair, len(rp.Pairs))
	for _, p := range rp.Pairs {
		byName[p.Field.Name] = p
	}
	out := make([]RecordProjection, 0, len(shapes))
	for _, shape := range shapes {
		ds := shape.DataSourceFields()
		pairs := make([]Pair, 0, len(ds))
		for _, f := range ds {
			p, ok := byName[f.Name]
			if !ok {
				return nil, &FieldNotFoundError{Name: f.Name, Model: fmt.Sprintf("projection %s", rp)}
			}
			pairs = append(pairs, Pair{Field: f, Value: p.Value})
		}
		out = append(out, RecordProjection{Pairs: pairs})
	}
	return out, nil
}

func (rp RecordProjection) String() string {
	parts := make([]string, len(rp.Pairs))
	for i, p := range rp.Pairs {
		parts[i] = fmt.Sprintf("%s: %v", p.Field.Name, p.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
