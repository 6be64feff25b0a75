package interpreter

import (
	"context"
	"fmt"

	"query-engine/internal/filter"
	"query-engine/internal/queryast"
	"query-engine/internal/querygraph"
)

func (i *Interpreter) write(ctx context.Context, q queryast.WriteQuery) (*WriteResult, error) {
	switch wq := q.(type) {
	case *queryast.DeleteRecord:
		// An unconstrained single delete would remove an arbitrary record.
		if wq.Where == nil || filter.IsEmpty(wq.Where) {
			return nil, &querygraph.AssertionError{Message: fmt.Sprintf("delete of %s has no record filter", wq.Model.Name)}
		}
		if err := i.conn.DeleteRecord(ctx, wq.Model, wq.Where); err != nil {
			return nil, err
		}
		return &WriteResult{Model: wq.Model, Count: 1}, nil

	case *queryast.DeleteManyRecords:
		where := wq.Where
		if where == nil {
			where = filter.Empty()
		}
		count, err := i.conn.DeleteRecords(ctx, wq.Model, where)
		if err != nil {
			return nil, err
		}
		return &WriteResult{Model: wq.Model, Count: count}, nil
	}
	return nil, fmt.Errorf("unsupported write %T", q)
}
