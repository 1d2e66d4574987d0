package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAuthAbsent means there is no signed-in identity. It is not a failure state.
	ErrAuthAbsent = errors.New("no signed-in identity")
	// ErrForbidden is returned when an identity mutates something it does not own.
	ErrForbidden = errors.New("access denied")
	// ErrInvalidInput marks rejected user input; wrapped with the detail.
	ErrInvalidInput = errors.New("invalid input")
)

// WriteError wraps a create/update the store rejected.
type WriteError struct {
	Op         string
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError wraps a failed list/detail fetch.
type ReadError struct {
	Op         string
	Collection string
	Err        error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func writeErr(op, collection string, err error) error {
	return &WriteError{Op: op, Collection: collection, Err: err}
}

func readErr(op, collection string, err error) error {
	return &ReadError{Op: op, Collection: collection, Err: err}
}

// Invalid wraps a validation failure so callers can match ErrInvalidInput.
func Invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
