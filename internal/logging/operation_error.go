package logging

import (
	"errors"
	"fmt"
)

// OperationError annotates an error with the identification step that failed
// and the request it belonged to.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps an error with structured context about where it occurred.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// Cause peels every OperationError layer off err and returns the message of
// the first error that is not one. Used for user-facing failure details.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	for {
		var opErr *OperationError
		if !errors.As(err, &opErr) || opErr.Err == nil {
			return err.Error()
		}
		err = opErr.Err
	}
}
