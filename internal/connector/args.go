package connector

import (
	"fmt"
	"strings"

	"query-engine/internal/filter"
	"query-engine/internal/models"
)

// SortOrder is the direction of an order-by.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// Reverse flips the direction.
func (o SortOrder) Reverse() SortOrder {
	if o == Descending {
		return Ascending
	}
	return Descending
}

// OrderBy orders by one scalar field.
type OrderBy struct {
	Field     *models.ScalarField
	SortOrder SortOrder
}

// QueryArguments narrow and paginate a read.
type QueryArguments struct {
	Skip    *int64
	First   *int64
	Last    *int64
	After   *models.RecordProjection
	Before  *models.RecordProjection
	OrderBy *OrderBy
	Filter  filter.Filter
}

// HasPagination reports whether skip, first or last is set.
func (a QueryArguments) HasPagination() bool {
	return a.Skip != nil || a.First != nil || a.Last != nil
}

// HasCursor reports whether after or before is set.
func (a QueryArguments) HasCursor() bool {
	return a.After != nil || a.Before != nil
}

// SortOrder returns the effective direction.
func (a QueryArguments) SortOrder() SortOrder {
	if a.OrderBy == nil {
		return Ascending
	}
	return a.OrderBy.SortOrder
}

// WithoutPagination drops skip, first and last. Cursors and filters stay.
func (a QueryArguments) WithoutPagination() QueryArguments {
	a.Skip, a.First, a.Last = nil, nil, nil
	return a
}

func (a QueryArguments) String() string {
	var parts []string
	if a.Skip != nil {
		parts = append(parts, fmt.Sprintf("skip=%d", *a.Skip))
	}
	if a.First != nil {
		parts = append(parts, fmt.Sprintf("first=%d", *a.First))
	}
	if a.Last != nil {
		parts = append(parts, fmt.Sprintf("last=%d", *a.Last))
	}
	if a.After != nil {
		parts = append(parts, "after="+a.After.String())
	}
	if a.Before != nil {
		parts = append(parts, "before="+a.Before.String())
	}
	if a.OrderBy != nil {
		parts = append(parts, fmt.Sprintf("orderBy=%s %s", a.OrderBy.Field.Name(), a.OrderBy.SortOrder))
	}
	if a.Filter != nil && !filter.IsEmpty(a.Filter) {
		parts = append(parts, "where="+a.Filter.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// SelectedFields lists the fields a read must return.
type SelectedFields struct {
	fields []models.Field
}

// NewSelectedFields selects the given fields.
func NewSelectedFields(fields ...models.Field) SelectedFields {
	return SelectedFields{fields: append([]models.Field(nil), fields...)}
}

// SelectAll selects every scalar field and every relation field inlined on
// the model.
func SelectAll(model *models.Model) SelectedFields {
	var fields []models.Field
	for _, sf := range model.ScalarFields() {
		fields = append(fields, sf)
	}
	for _, rf := range model.RelationFields() {
		if rf.IsInlinedOnEnclosingModel() {
			fields = append(fields, rf)
		}
	}
	return SelectedFields{fields: fields}
}

// FromProjection selects the fields of a projection.
func FromProjection(mp models.ModelProjection) SelectedFields {
	return NewSelectedFields(mp.Fields()...)
}

func (s SelectedFields) Fields() []models.Field { return s.fields }

// OnlyScalarAndInlined drops relation fields that have no columns on the
// model.
func (s SelectedFields) OnlyScalarAndInlined() SelectedFields {
	kept := make([]models.Field, 0, len(s.fields))
	for _, f := range s.fields {
		if rf, ok := f.(*models.RelationField); ok && !rf.IsInlinedOnEnclosingModel() {
			continue
		}
		kept = append(kept, f)
	}
	return SelectedFields{fields: kept}
}

// Merge adds the fields of mp.
func (s SelectedFields) Merge(mp models.ModelProjection) SelectedFields {
	return SelectedFields{fields: models.NewModelProjection(s.fields...).Merge(mp).Fields()}
}

// Columns returns the distinct physical columns, in selection order.
func (s SelectedFields) Columns() []models.DataSourceField {
	seen := make(map[string]bool)
	var out []models.DataSourceField
	for _, f := range s.fields {
		for _, ds := range f.DataSourceFields() {
			if seen[ds.Name] {
				continue
			}
			seen[ds.Name] = true
			out = append(out, ds)
		}
	}
	return out
}

// ColumnNames returns the distinct physical column names.
func (s SelectedFields) ColumnNames() []string {
	cols := s.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
