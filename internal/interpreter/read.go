package interpreter

import (
	"context"
	"fmt"

	"query-engine/internal/filter"
	"query-engine/internal/logging"
	"query-engine/internal/models"
	"query-engine/internal/queryast"
)

// read executes a read and its nested reads. parent is the result the read
// is nested under, nil for graph nodes.
func (i *Interpreter) read(ctx context.Context, q queryast.ReadQuery, parent *ReadResult) (*ReadResult, error) {
	var (
		result *ReadResult
		err    error
	)
	switch rq := q.(type) {
	case *queryast.RecordQuery:
		result, err = i.readOne(ctx, rq)
	case *queryast.ManyRecordsQuery:
		var records models.ManyRecords
		records, err = i.conn.GetManyRecords(ctx, rq.Model, rq.Args, rq.SelectedFields)
		result = &ReadResult{Name: rq.Name, Model: rq.Model, Records: records, Cursors: rq.EmitCursors}
	case *queryast.RelatedRecordsQuery:
		result, err = i.readRelated(ctx, rq, parent)
	default:
		err = fmt.Errorf("unsupported read %T", q)
	}
	if err != nil {
		return nil, err
	}

	for _, nested := range q.NestedReads() {
		child, err := i.read(ctx, nested, result)
		if err != nil {
			return nil, err
		}
		result.Nested = append(result.Nested, child)
	}
	return result, nil
}

func (i *Interpreter) readOne(ctx context.Context, q *queryast.RecordQuery) (*ReadResult, error) {
	where := q.Where
	if where == nil {
		where = filter.Empty()
	}
	record, err := i.conn.GetSingleRecord(ctx, q.Model, where, q.SelectedFields)
	if err != nil {
		return nil, err
	}
	records := models.NewManyRecords(q.SelectedFields.ColumnNames())
	if record != nil {
		records.FieldNames = record.FieldNames
		records.Push(record.Record)
	}
	return &ReadResult{Name: q.Name, Model: q.Model, Single: true, Records: records}, nil
}

func (i *Interpreter) readRelated(ctx context.Context, q *queryast.RelatedRecordsQuery, parent *ReadResult) (*ReadResult, error) {
	if q.ParentProjections == nil && parent == nil {
		return nil, &InconsistencyError{Message: fmt.Sprintf("no parent results present for reading related records of %s", q.ParentField.Name())}
	}
	childModel, err := q.ParentField.RelatedModel()
	if err != nil {
		return nil, err
	}

	var parentRecords *models.ManyRecords
	if parent != nil {
		parentRecords = &parent.Records
	}
	paginator := NewNestedPagination(q.Args)

	relationType := "one_to_many"
	var records models.ManyRecords
	if q.ParentField.IsManyToMany() {
		relationType = "many_to_many"
		records, err = i.manyToMany(ctx, q, parentRecords, paginator)
	} else {
		records, err = i.oneToMany(ctx, q, parentRecords, paginator)
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("nested read resolved",
		"field", q.ParentField.Name(),
		"relation_type", relationType,
		"records", records.Len(),
	)
	return &ReadResult{
		Name:    q.Name,
		Model:   childModel,
		Field:   q.ParentField,
		Records: records,
		Cursors: q.EmitCursors,
	}, nil
}
