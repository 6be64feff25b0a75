package interpreter

import (
	"context"
	"fmt"

	"query-engine/internal/connector"
	"query-engine/internal/filter"
	"query-engine/internal/models"
)

type row map[string]models.Value

type joinRow struct {
	a, b models.Value
}

// memConn is an in-memory connection keyed by table name. Rows keep
// insertion order.
type memConn struct {
	tables map[string][]row
	joins  map[string][]joinRow

	reads   []string
	deletes []string
	failOn  string
	// unfiltered tables return every row regardless of the filter.
	unfiltered map[string]bool
}

func newMemConn() *memConn {
	return &memConn{tables: map[string][]row{}, joins: map[string][]joinRow{}}
}

func (c *memConn) insert(table string, rows ...row) {
	c.tables[table] = append(c.tables[table], rows...)
}

func (c *memConn) link(joinTable string, a, b models.Value) {
	c.joins[joinTable] = append(c.joins[joinTable], joinRow{a: a, b: b})
}

func (c *memConn) GetSingleRecord(ctx context.Context, model *models.Model, f filter.Filter, selected connector.SelectedFields) (*models.SingleRecord, error) {
	one := int64(1)
	records, err := c.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, First: &one}, selected)
	if err != nil || records.Len() == 0 {
		return nil, err
	}
	return &models.SingleRecord{FieldNames: records.FieldNames, Record: records.Records[0]}, nil
}

func (c *memConn) GetManyRecords(_ context.Context, model *models.Model, args connector.QueryArguments, selected connector.SelectedFields) (models.ManyRecords, error) {
	c.reads = append(c.reads, fmt.Sprintf("%s %s", model.Name, filterString(args.Filter)))
	if c.failOn == model.Name {
		return models.ManyRecords{}, connector.NewQueryError(model.Name, fmt.Errorf("boom"))
	}
	columns := selected.ColumnNames()
	out := models.NewManyRecords(columns)
	for _, r := range c.tables[model.DBName] {
		if args.First != nil && int64(out.Len()) >= *args.First {
			break
		}
		if !c.unfiltered[model.DBName] && !matches(args.Filter, r) {
			continue
		}
		if args.After != nil && !follows(r, *args.After) {
			continue
		}
		values := make([]models.Value, len(columns))
		for i, col := range columns {
			values[i] = r[col]
		}
		out.Push(models.NewRecord(values...))
	}
	return out, nil
}

// follows reports whether r sorts after the cursor on a single int64
// identifier in ascending order.
func follows(r row, after models.RecordProjection) bool {
	column := after.Fields()[0].Name
	id, _ := r[column].(int64)
	cursorID, _ := after.Values()[0].(int64)
	return id > cursorID
}

func (c *memConn) GetRelatedM2MRecordIDs(_ context.Context, field *models.RelationField, parentIDs []models.RecordProjection) ([]connector.RelatedIDs, error) {
	relation := field.Relation()
	jt := relation.Manifestation.(*models.JoinTableRelation)
	parentModel, err := field.Model()
	if err != nil {
		return nil, err
	}
	childModel, err := field.RelatedModel()
	if err != nil {
		return nil, err
	}
	parentSideA := relation.SideOf(field) == models.SideA

	wanted := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		wanted[id.ValuesKey()] = true
	}

	var out []connector.RelatedIDs
	for _, jr := range c.joins[jt.Table] {
		parent, child := jr.a, jr.b
		if !parentSideA {
			parent, child = jr.b, jr.a
		}
		parentID := parentModel.PrimaryIdentifier().FromUnchecked([]models.Value{parent})
		if !wanted[parentID.ValuesKey()] {
			continue
		}
		out = append(out, connector.RelatedIDs{
			Parent: parentID,
			Child:  childModel.PrimaryIdentifier().FromUnchecked([]models.Value{child}),
		})
	}
	return out, nil
}

func (c *memConn) DeleteRecord(ctx context.Context, model *models.Model, f filter.Filter) error {
	n, err := c.DeleteRecords(ctx, model, f)
	if err != nil {
		return err
	}
	if n == 0 {
		return connector.NewRecordNotFound(model.Name)
	}
	return nil
}

func (c *memConn) DeleteRecords(_ context.Context, model *models.Model, f filter.Filter) (int64, error) {
	c.deletes = append(c.deletes, fmt.Sprintf("%s %s", model.Name, filterString(f)))
	var kept []row
	var n int64
	for _, r := range c.tables[model.DBName] {
		if matches(f, r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	c.tables[model.DBName] = kept
	return n, nil
}

func filterString(f filter.Filter) string {
	if f == nil {
		return "TRUE"
	}
	return f.String()
}

func matches(f filter.Filter, r row) bool {
	switch t := f.(type) {
	case nil, filter.EmptyFilter:
		return true
	case *filter.AndFilter:
		for _, c := range t.Filters {
			if !matches(c, r) {
				return false
			}
		}
		return true
	case *filter.OrFilter:
		for _, c := range t.Filters {
			if matches(c, r) {
				return true
			}
		}
		return false
	case *filter.NotFilter:
		for _, c := range t.Filters {
			if matches(c, r) {
				return false
			}
		}
		return true
	case *filter.ScalarFilter:
		got := models.CanonicalValue(r[t.Field.Name])
		switch t.Condition {
		case filter.Equals:
			return got == models.CanonicalValue(t.Value)
		case filter.NotEquals:
			return got != models.CanonicalValue(t.Value)
		case filter.In, filter.NotIn:
			found := false
			for _, v := range t.Values {
				if got == models.CanonicalValue(v) {
					found = true
				}
			}
			return found == (t.Condition == filter.In)
		}
	}
	panic(fmt.Sprintf("memConn cannot evaluate %s", f))
}
