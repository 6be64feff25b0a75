package connector

import (
	"errors"
	"fmt"
)

// ErrorKind classifies connector failures.
type ErrorKind int

const (
	KindQuery ErrorKind = iota
	KindRecordNotFound
	KindConnection
	KindTransaction
)

func (k ErrorKind) String() string {
	switch k {
	case KindRecordNotFound:
		return "record_not_found"
	case KindConnection:
		return "connection"
	case KindTransaction:
		return "transaction"
	default:
		return "query"
	}
}

// ConnectorError is returned by connector implementations.
type ConnectorError struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *ConnectorError) Error() string {
	switch {
	case e.Kind == KindRecordNotFound:
		return fmt.Sprintf("record to operate on not found in %s", e.Model)
	case e.Err != nil && e.Model != "":
		return fmt.Sprintf("%s error on %s: %v", e.Kind, e.Model, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return e.Kind.String() + " error"
	}
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// NewRecordNotFound reports that a single-record write matched nothing.
func NewRecordNotFound(model string) error {
	return &ConnectorError{Kind: KindRecordNotFound, Model: model}
}

// NewQueryError wraps a failed statement.
func NewQueryError(model string, err error) error {
	return &ConnectorError{Kind: KindQuery, Model: model, Err: err}
}

// IsRecordNotFound reports whether err is a RecordNotFound ConnectorError.
func IsRecordNotFound(err error) bool {
	var ce *ConnectorError
	return errors.As(err, &ce) && ce.Kind == KindRecordNotFound
}
