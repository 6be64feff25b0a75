package sqlconnector

import (
	"context"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"query-engine/internal/connector"
	"query-engine/internal/cursor"
	"query-engine/internal/dbexec"
	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/sqlast"
	"query-engine/internal/sqlutil"
)

// GetSingleRecord reads the first record matching f in identifier order.
func (c *Connection) GetSingleRecord(ctx context.Context, model *models.Model, f filter.Filter, selected connector.SelectedFields) (*models.SingleRecord, error) {
	one := int64(1)
	records, err := c.GetManyRecords(ctx, model, connector.QueryArguments{First: &one, Filter: f}, selected)
	if err != nil {
		return nil, err
	}
	if records.Len() == 0 {
		return nil, nil
	}
	return &models.SingleRecord{FieldNames: records.FieldNames, Record: records.Records[0]}, nil
}

// GetManyRecords reads the records of model matching args.
//
// Rows are ordered by the order field, if any, then by the primary
// identifier. last is served by reversing the order in SQL and the rows in
// memory.
func (c *Connection) GetManyRecords(ctx context.Context, model *models.Model, args connector.QueryArguments, selected connector.SelectedFields) (models.ManyRecords, error) {
	query, params, err := buildSelect(model, args, selected)
	if err != nil {
		return models.ManyRecords{}, connector.NewQueryError(model.Name, err)
	}

	ctx, span := startSpan(ctx, "sql.get_many_records",
		attribute.String("db.table", model.DBName),
		attribute.String("engine.query_args", args.String()),
	)
	columns := selected.Columns()
	records := models.NewManyRecords(columnNames(columns))
	err = c.query(ctx, model, query, params, func(values []any) error {
		record, err := toRecord(columns, values)
		if err != nil {
			return err
		}
		records.Push(record)
		return nil
	})
	finishSpan(span, err)
	if err != nil {
		return models.ManyRecords{}, err
	}

	if reverseRows(args) {
		records.Reverse()
	}
	if args.First != nil && args.Last != nil && int64(records.Len()) > *args.Last {
		records.Records = records.Records[records.Len()-int(*args.Last):]
	}
	return records, nil
}

func buildSelect(model *models.Model, args connector.QueryArguments, selected connector.SelectedFields) (string, []any, error) {
	columns := selected.Columns()
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no columns selected on %s", model.Name)
	}
	builder := sq.Select(quoteAll(columnNames(columns))...).
		From(sqlutil.QuoteIdentifier(model.DBName)).
		PlaceholderFormat(sq.Question)

	where, err := renderFilter(args.Filter)
	if err != nil {
		return "", nil, err
	}
	if where != nil {
		builder = builder.Where(where)
	}
	cond, err := cursor.BuildCondition(args, model)
	if err != nil {
		return "", nil, err
	}
	if !sqlast.IsNoCondition(cond) {
		builder = builder.Where(cond)
	}

	builder = builder.OrderBy(orderBy(model, args)...)

	limit, hasLimit := rowLimit(args)
	if hasLimit {
		builder = builder.Limit(limit)
	}
	if args.Skip != nil && *args.Skip > 0 {
		if !hasLimit {
			// MySQL accepts OFFSET only together with LIMIT.
			builder = builder.Limit(math.MaxUint64)
		}
		builder = builder.Offset(uint64(*args.Skip))
	}
	return builder.ToSql()
}

// orderBy lists the order field followed by the remaining identifier
// columns, all flipped when reading backwards.
func orderBy(model *models.Model, args connector.QueryArguments) []string {
	order := args.SortOrder()
	if reverseRows(args) {
		order = order.Reverse()
	}
	var out []string
	seen := make(map[string]bool)
	if args.OrderBy != nil && args.OrderBy.Field != nil {
		name := args.OrderBy.Field.DBName()
		seen[name] = true
		out = append(out, sqlutil.QuoteIdentifier(name)+" "+order.String())
	}
	for _, name := range model.PrimaryIdentifier().ColumnNames() {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, sqlutil.QuoteIdentifier(name)+" "+order.String())
	}
	return out
}

// reverseRows reports whether the page is taken from the end.
func reverseRows(args connector.QueryArguments) bool {
	return args.Last != nil && args.First == nil
}

func rowLimit(args connector.QueryArguments) (uint64, bool) {
	switch {
	case args.First != nil:
		return uint64(*args.First), true
	case args.Last != nil:
		return uint64(*args.Last), true
	default:
		return 0, false
	}
}

// GetRelatedM2MRecordIDs reads the join table rows of field's relation for
// the given parents.
func (c *Connection) GetRelatedM2MRecordIDs(ctx context.Context, field *models.RelationField, parentIDs []models.RecordProjection) ([]connector.RelatedIDs, error) {
	relation := field.Relation()
	jt, ok := relation.Manifestation.(*models.JoinTableRelation)
	if !ok {
		return nil, fmt.Errorf("relation %s has no join table", relation.Name)
	}
	parentModel, err := field.Model()
	if err != nil {
		return nil, err
	}
	childModel, err := field.RelatedModel()
	if err != nil {
		return nil, err
	}
	if len(parentIDs) == 0 {
		return nil, nil
	}

	side := relation.SideOf(field)
	otherSide := models.SideB
	if side == models.SideB {
		otherSide = models.SideA
	}
	parentCols := relation.JoinColumnsFor(side)
	childCols := relation.JoinColumnsFor(otherSide)
	parentShape := parentModel.PrimaryIdentifier()
	childShape := childModel.PrimaryIdentifier()
	parentDS := parentShape.DataSourceFields()
	childDS := childShape.DataSourceFields()

	ctx, span := startSpan(ctx, "sql.get_related_m2m_record_ids",
		attribute.String("db.table", jt.Table),
		attribute.Int("engine.parent_count", len(parentIDs)),
	)
	var out []connector.RelatedIDs
	for _, chunk := range chunkProjections(parentIDs, c.opts.MaxInValues) {
		query, params, err := sq.Select(quoteAll(append(append([]string(nil), parentCols...), childCols...))...).
			From(sqlutil.QuoteIdentifier(jt.Table)).
			Where(joinFilter(parentCols, chunk)).
			PlaceholderFormat(sq.Question).
			ToSql()
		if err != nil {
			finishSpan(span, err)
			return nil, connector.NewQueryError(relation.Name, err)
		}

		err = c.query(ctx, parentModel, query, params, func(values []any) error {
			parent, err := typedProjection(parentShape, parentDS, values[:len(parentCols)])
			if err != nil {
				return err
			}
			child, err := typedProjection(childShape, childDS, values[len(parentCols):])
			if err != nil {
				return err
			}
			out = append(out, connector.RelatedIDs{Parent: parent, Child: child})
			return nil
		})
		if err != nil {
			finishSpan(span, err)
			return nil, err
		}
	}
	finishSpan(span, nil)
	return out, nil
}

// joinFilter matches the join table rows of the given parents.
func joinFilter(cols []string, ids []models.RecordProjection) sq.Sqlizer {
	if len(cols) == 1 {
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = bindValue(id.Pairs[0].Value)
		}
		return sq.Eq{sqlutil.QuoteIdentifier(cols[0]): values}
	}
	or := make(sq.Or, 0, len(ids))
	for _, id := range ids {
		and := make(sq.And, 0, len(cols))
		for i, col := range cols {
			and = append(and, sq.Expr(sqlutil.QuoteIdentifier(col)+" = ?", bindValue(id.Pairs[i].Value)))
		}
		or = append(or, and)
	}
	return or
}

func chunkProjections(ids []models.RecordProjection, max int) [][]models.RecordProjection {
	if max <= 0 || len(ids) <= max {
		return [][]models.RecordProjection{ids}
	}
	var chunks [][]models.RecordProjection
	for start := 0; start < len(ids); start += max {
		end := start + max
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func typedProjection(shape models.ModelProjection, ds []models.DataSourceField, raw []any) (models.RecordProjection, error) {
	values := make([]models.Value, len(raw))
	for i, v := range raw {
		parsed, err := models.ParseValue(ds[i].Type, v)
		if err != nil {
			return models.RecordProjection{}, fmt.Errorf("column %s: %w", ds[i].Name, err)
		}
		values[i] = parsed
	}
	return shape.FromUnchecked(values), nil
}

// query runs a statement and hands every scanned row to fn.
func (c *Connection) query(ctx context.Context, model *models.Model, query string, params []any, fn func([]any) error) error {
	logQuery(ctx, query, params)
	rows, err := c.exec.QueryContext(ctx, query, params...)
	if err != nil {
		return connector.NewQueryError(model.Name, err)
	}
	defer rows.Close()

	if err := scanRows(rows, fn); err != nil {
		return connector.NewQueryError(model.Name, err)
	}
	return nil
}

func scanRows(rows dbexec.Rows, fn func([]any) error) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	return rows.Err()
}

func toRecord(columns []models.DataSourceField, raw []any) (models.Record, error) {
	if len(raw) != len(columns) {
		return models.Record{}, fmt.Errorf("scanned %d values for %d columns", len(raw), len(columns))
	}
	values := make([]models.Value, len(raw))
	for i, v := range raw {
		parsed, err := models.ParseValue(columns[i].Type, v)
		if err != nil {
			return models.Record{}, fmt.Errorf("column %s: %w", columns[i].Name, err)
		}
		values[i] = parsed
	}
	return models.NewRecord(values...), nil
}

func columnNames(columns []models.DataSourceField) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Name
	}
	return out
}
