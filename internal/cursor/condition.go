package cursor

import (
	"fmt"

	"query-engine/internal/connector"
	"query-engine/internal/models"
	"query-engine/internal/sqlast"
)

// PaginationContractError reports cursor arguments the engine cannot honor.
type PaginationContractError struct {
	Model  string
	Reason string
}

func (e *PaginationContractError) Error() string {
	return fmt.Sprintf("invalid pagination on %s: %s", e.Model, e.Reason)
}

type direction int

const (
	after direction = iota
	before
)

// BuildCondition returns the keyset condition for the cursors in args.
//
// For a cursor c the row set is restricted to
//
//	(order = sub(c) AND id <cmp> c) OR (order <cmp> sub(c))
//
// where sub(c) selects the order column of the cursor record and <cmp> is >
// for after/ascending and before/descending, < otherwise. after and before
// conditions are combined with AND.
func BuildCondition(args connector.QueryArguments, model *models.Model) (sqlast.ConditionTree, error) {
	if !args.HasCursor() {
		return sqlast.NoCondition{}, nil
	}

	orderColumn, err := comparisonColumn(args, model)
	if err != nil {
		return nil, err
	}
	order := args.SortOrder()

	var conds sqlast.And
	if args.After != nil {
		if c := forCursor(*args.After, after, order, orderColumn, model); c != nil {
			conds = append(conds, c)
		}
	}
	if args.Before != nil {
		if c := forCursor(*args.Before, before, order, orderColumn, model); c != nil {
			conds = append(conds, c)
		}
	}
	switch len(conds) {
	case 0:
		return sqlast.NoCondition{}, nil
	case 1:
		return conds[0], nil
	default:
		return conds, nil
	}
}

func comparisonColumn(args connector.QueryArguments, model *models.Model) (sqlast.Column, error) {
	if args.OrderBy != nil && args.OrderBy.Field != nil {
		return sqlast.Column{Name: args.OrderBy.Field.DBName()}, nil
	}
	id := model.PrimaryIdentifier().DataSourceFields()
	if len(id) != 1 {
		return sqlast.Column{}, &PaginationContractError{
			Model:  model.Name,
			Reason: fmt.Sprintf("cursor pagination over a %d-column identifier requires an explicit orderBy", len(id)),
		}
	}
	return sqlast.Column{Name: id[0].Name}, nil
}

func forCursor(c models.RecordProjection, dir direction, order connector.SortOrder, orderColumn sqlast.Column, model *models.Model) sqlast.ConditionTree {
	if c.Len() == 0 || allNull(c) {
		return nil
	}

	cursorRow := make(sqlast.Row, 0, c.Len())
	for _, f := range c.Fields() {
		cursorRow = append(cursorRow, sqlast.Column{Name: f.Name})
	}
	cursorValues := sqlast.Values(c.Values())
	orderRow := sqlast.Row{orderColumn}

	sub := sqlast.Select{
		Table:   model.DBName,
		Columns: orderRow,
		Where:   sqlast.Equals(cursorRow, cursorValues),
	}

	// Rows past the cursor in reading direction compare the same way on the
	// order column and on the identifier, since both are sorted by order.
	cmp := sqlast.LessThan
	if (dir == after) == (order == connector.Ascending) {
		cmp = sqlast.GreaterThan
	}
	tieBreak := cmp(cursorRow, cursorValues)
	beyond := cmp(orderRow, sub)

	return sqlast.Or{
		sqlast.And{sqlast.Equals(orderRow, sub), tieBreak},
		beyond,
	}
}

func allNull(rp models.RecordProjection) bool {
	for _, v := range rp.Values() {
		if v != nil {
			return false
		}
	}
	return true
}
