package utils

import "fmt"

// CoreError represents a structured, contextual error.
//
// Every fallible step wraps its cause with a CoreError so tests and logs
// can tell "bad magic" apart from "short read" apart from "out-of-range
// offset". The public API does not flatten these: it returns the wrapped
// error as is (with a zero byte count from the level-4 I/O calls), so
// callers at the boundary can match causes with errors.Is/errors.As.
type CoreError struct {
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Cause)
}

// WrapError creates a contextual error. Returns nil if cause is nil.
func WrapError(context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &CoreError{
		Context: context,
		Cause:   cause,
	}
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *CoreError) Unwrap() error {
	return e.Cause
}
