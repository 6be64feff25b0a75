package models

import (
	"errors"
	"fmt"
)

// ErrModelNotFound is returned when a model handle or name does not resolve.
var ErrModelNotFound = errors.New("model not found")

// FieldNotFoundError reports a missing field on a model or record.
type FieldNotFoundError struct {
	Name  string
	Model string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found on %s", e.Name, e.Model)
}
