package helper

import (
	"fmt"
)

// Error wraps an original error with the operation that failed.
type Error struct {
	Operation string
	Original  error
}

// NewError creates a new Error for the given operation.
// It returns nil if err is nil so it can wrap results directly.
func NewError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Operation: operation,
		Original:  err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Original)
}

// Unwrap returns the original error so errors.Is and errors.As work through the wrapper
func (e *Error) Unwrap() error {
	return e.Original
}
