package graphbuilder

import "fmt"

// InputError reports a malformed request argument.
type InputError struct {
	Path    string
	Message string
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid input at %s: %s", e.Path, e.Message)
}

func inputErrorf(path, format string, args ...any) error {
	return &InputError{Path: path, Message: fmt.Sprintf(format, args...)}
}
