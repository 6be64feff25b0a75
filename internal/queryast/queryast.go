// Package queryast defines the primitive operations placed in a query graph.
package queryast

import (
	"fmt"
	"strings"

	"query-engine/internal/connector"
	"query-engine/internal/filter"
	"query-engine/internal/models"
)

// Query is a read or write operation.
type Query interface {
	TargetModel() *models.Model
	String() string
	isQuery()
}

// ReadQuery returns records.
type ReadQuery interface {
	Query
	// ResultName is the key the result is rendered under.
	ResultName() string
	NestedReads() []ReadQuery
	isRead()
}

// WriteQuery mutates records.
type WriteQuery interface {
	Query
	isWrite()
}

// Filterable is implemented by every operation carrying a filter, so graph
// edges can narrow it with ids produced by earlier nodes.
type Filterable interface {
	Filter() filter.Filter
	SetFilter(f filter.Filter)
	// AddFilter ANDs f into the current filter.
	AddFilter(f filter.Filter)
}

// RecordQuery reads at most one record.
type RecordQuery struct {
	Name           string
	Model          *models.Model
	Where          filter.Filter
	SelectedFields connector.SelectedFields
	Nested         []ReadQuery
}

// ManyRecordsQuery reads a paginated list of records. EmitCursors asks for
// an opaque cursor on every returned record.
type ManyRecordsQuery struct {
	Name           string
	Model          *models.Model
	Args           connector.QueryArguments
	SelectedFields connector.SelectedFields
	Nested         []ReadQuery
	EmitCursors    bool
}

// RelatedRecordsQuery reads the records related to a set of parents through
// ParentField. ParentProjections is filled in by the parent's result or by a
// graph edge before execution.
type RelatedRecordsQuery struct {
	Name              string
	ParentField       *models.RelationField
	ParentProjections []models.RecordProjection
	Args              connector.QueryArguments
	SelectedFields    connector.SelectedFields
	Nested            []ReadQuery
	EmitCursors       bool
}

// DeleteRecord deletes exactly one record. A nil Where is narrowed by graph
// edges before execution.
type DeleteRecord struct {
	Model *models.Model
	Where filter.Filter
}

// DeleteManyRecords deletes every matching record.
type DeleteManyRecords struct {
	Model *models.Model
	Where filter.Filter
}

func (*RecordQuery) isQuery()         {}
func (*ManyRecordsQuery) isQuery()    {}
func (*RelatedRecordsQuery) isQuery() {}
func (*DeleteRecord) isQuery()        {}
func (*DeleteManyRecords) isQuery()   {}

func (*RecordQuery) isRead()         {}
func (*ManyRecordsQuery) isRead()    {}
func (*RelatedRecordsQuery) isRead() {}

func (*DeleteRecord) isWrite()      {}
func (*DeleteManyRecords) isWrite() {}

func (q *RecordQuery) TargetModel() *models.Model      { return q.Model }
func (q *ManyRecordsQuery) TargetModel() *models.Model { return q.Model }
func (q *DeleteRecord) TargetModel() *models.Model     { return q.Model }
func (q *DeleteManyRecords) TargetModel() *models.Model {
	return q.Model
}

// TargetModel resolves the related model; nil if the handle is stale.
func (q *RelatedRecordsQuery) TargetModel() *models.Model {
	m, err := q.ParentField.RelatedModel()
	if err != nil {
		return nil
	}
	return m
}

func (q *RecordQuery) ResultName() string         { return q.Name }
func (q *ManyRecordsQuery) ResultName() string    { return q.Name }
func (q *RelatedRecordsQuery) ResultName() string { return q.Name }

func (q *RecordQuery) NestedReads() []ReadQuery         { return q.Nested }
func (q *ManyRecordsQuery) NestedReads() []ReadQuery    { return q.Nested }
func (q *RelatedRecordsQuery) NestedReads() []ReadQuery { return q.Nested }

func (q *RecordQuery) Filter() filter.Filter          { return q.Where }
func (q *RecordQuery) SetFilter(f filter.Filter)      { q.Where = f }
func (q *RecordQuery) AddFilter(f filter.Filter)      { q.Where = filter.Merge(q.Where, f) }
func (q *ManyRecordsQuery) Filter() filter.Filter     { return q.Args.Filter }
func (q *ManyRecordsQuery) SetFilter(f filter.Filter) { q.Args.Filter = f }
func (q *ManyRecordsQuery) AddFilter(f filter.Filter) {
	q.Args.Filter = filter.Merge(q.Args.Filter, f)
}
func (q *RelatedRecordsQuery) Filter() filter.Filter     { return q.Args.Filter }
func (q *RelatedRecordsQuery) SetFilter(f filter.Filter) { q.Args.Filter = f }
func (q *RelatedRecordsQuery) AddFilter(f filter.Filter) {
	q.Args.Filter = filter.Merge(q.Args.Filter, f)
}
func (q *DeleteRecord) Filter() filter.Filter          { return q.Where }
func (q *DeleteRecord) SetFilter(f filter.Filter)      { q.Where = f }
func (q *DeleteRecord) AddFilter(f filter.Filter)      { q.Where = filter.Merge(q.Where, f) }
func (q *DeleteManyRecords) Filter() filter.Filter     { return q.Where }
func (q *DeleteManyRecords) SetFilter(f filter.Filter) { q.Where = f }
func (q *DeleteManyRecords) AddFilter(f filter.Filter) {
	q.Where = filter.Merge(q.Where, f)
}

func (q *RecordQuery) String() string {
	return fmt.Sprintf("RecordQuery(name: %q, model: %s, where: %s%s)", q.Name, q.Model.Name, filterString(q.Where), nestedString(q.Nested))
}

func (q *ManyRecordsQuery) String() string {
	return fmt.Sprintf("ManyRecordsQuery(name: %q, model: %s, args: %s%s)", q.Name, q.Model.Name, q.Args, nestedString(q.Nested))
}

func (q *RelatedRecordsQuery) String() string {
	return fmt.Sprintf("RelatedRecordsQuery(name: %q, field: %s, parents: %d, args: %s%s)", q.Name, q.ParentField.Name(), len(q.ParentProjections), q.Args, nestedString(q.Nested))
}

func (q *DeleteRecord) String() string {
	return fmt.Sprintf("DeleteRecord(model: %s, where: %s)", q.Model.Name, filterString(q.Where))
}

func (q *DeleteManyRecords) String() string {
	return fmt.Sprintf("DeleteManyRecords(model: %s, where: %s)", q.Model.Name, filterString(q.Where))
}

func filterString(f filter.Filter) string {
	if f == nil {
		return "none"
	}
	return f.String()
}

func nestedString(nested []ReadQuery) string {
	if len(nested) == 0 {
		return ""
	}
	names := make([]string, len(nested))
	for i, n := range nested {
		names[i] = n.ResultName()
	}
	return ", nested: [" + strings.Join(names, ", ") + "]"
}
