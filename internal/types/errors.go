package types

import (
	"errors"
	"fmt"
)

var (
	ErrMasterUnreachable = errors.New("master unreachable")
	ErrNotRegistered     = errors.New("agent not registered")
)

// FatalError marks a condition that must terminate the whole process.
// Core components return or emit it instead of exiting themselves; the
// top-level supervisor maps it to a non-zero exit code.
type FatalError struct {
	Reason string
	Err    error
}

// NewFatal creates a FatalError wrapping err
func NewFatal(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// Error implements the error interface
func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
	}
	return "fatal: " + e.Reason
}

// Unwrap returns the wrapped error
func (e *FatalError) Unwrap() error {
	return e.Err
}
