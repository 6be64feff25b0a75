package interpreter

import (
	"errors"
	"fmt"

	"query-engine/internal/connector"
	"query-engine/internal/cursor"
	"query-engine/internal/graphbuilder"
	"query-engine/internal/querygraph"
)

// InconsistencyError reports a state the data model says cannot happen,
// such as a fetched child without a join table entry.
type InconsistencyError struct {
	Message string
}

func (e *InconsistencyError) Error() string {
	return "inconsistent query state: " + e.Message
}

// RelationViolationError reports a deletion that would orphan records of a
// required relation.
type RelationViolationError struct {
	RelationName string
	ModelAName   string
	ModelBName   string
}

func (e *RelationViolationError) Error() string {
	return fmt.Sprintf(
		"the change you are trying to make would violate the required relation '%s' between the `%s` and `%s` models",
		e.RelationName, e.ModelAName, e.ModelBName,
	)
}

// NodeError attributes a failure to the graph node that raised it.
type NodeError struct {
	Node querygraph.NodeRef
	Kind string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.Node, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// PublicError maps an execution error to a stable code and a message that
// is safe to return to clients. Unrecognized errors become an opaque
// internal error.
func PublicError(err error) (code string, message string) {
	var (
		notConnected *querygraph.RecordsNotConnectedError
		violation    *RelationViolationError
		contract     *cursor.PaginationContractError
		input        *graphbuilder.InputError
		connErr      *connector.ConnectorError
	)
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &notConnected):
		return "records_not_connected", notConnected.Error()
	case errors.As(err, &violation):
		return "relation_violation", violation.Error()
	case errors.As(err, &contract):
		return "pagination_contract", contract.Error()
	case errors.As(err, &input):
		return "invalid_input", input.Error()
	case errors.As(err, &connErr) && connErr.Kind == connector.KindRecordNotFound:
		return "record_not_found", connErr.Error()
	default:
		return "internal_error", "internal error"
	}
}
