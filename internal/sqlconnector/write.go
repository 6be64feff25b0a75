package sqlconnector

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"

	"query-engine/internal/connector"
	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/sqlutil"
)

// DeleteRecord deletes the single record matching f.
func (c *Connection) DeleteRecord(ctx context.Context, model *models.Model, f filter.Filter) error {
	n, err := c.delete(ctx, model, f, 1)
	if err != nil {
		return err
	}
	if n == 0 {
		return connector.NewRecordNotFound(model.Name)
	}
	return nil
}

// DeleteRecords deletes every record matching f and returns the count.
func (c *Connection) DeleteRecords(ctx context.Context, model *models.Model, f filter.Filter) (int64, error) {
	return c.delete(ctx, model, f, 0)
}

func (c *Connection) delete(ctx context.Context, model *models.Model, f filter.Filter, limit uint64) (int64, error) {
	builder := sq.Delete(sqlutil.QuoteIdentifier(model.DBName)).PlaceholderFormat(sq.Question)
	where, err := renderFilter(f)
	if err != nil {
		return 0, connector.NewQueryError(model.Name, err)
	}
	if where != nil {
		builder = builder.Where(where)
	}
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	query, params, err := builder.ToSql()
	if err != nil {
		return 0, connector.NewQueryError(model.Name, err)
	}

	ctx, span := startSpan(ctx, "sql.delete",
		attribute.String("db.table", model.DBName),
		attribute.String("db.operation", "DELETE"),
	)
	logQuery(ctx, query, params)
	result, err := c.exec.ExecContext(ctx, query, params...)
	if err != nil {
		err = connector.NewQueryError(model.Name, err)
		finishSpan(span, err)
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		err = connector.NewQueryError(model.Name, err)
		finishSpan(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", n))
	finishSpan(span, nil)
	return n, nil
}
