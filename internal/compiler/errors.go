package compiler

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by operations a file object or file manager
// variant does not provide, e.g. opening a write stream on an input file.
var ErrUnsupported = errors.New("unsupported operation")

// ErrIllegalArgument and ErrIllegalState mirror the argument/state
// validation failures a compiler raises for bad options or misuse.
var (
	ErrIllegalArgument = errors.New("illegal argument")
	ErrIllegalState    = errors.New("illegal state")
)

// CanceledError aborts a compilation once the cancellation predicate has
// been observed. It carries no stack and is cheap to create.
type CanceledError struct {
	Reason string
}

func (e *CanceledError) Error() string {
	if e.Reason == "" {
		return "compilation canceled"
	}
	return "compilation canceled: " + e.Reason
}

// IsCanceled reports whether err, or any error it wraps, is a *CanceledError.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	var c *CanceledError
	return errors.As(err, &c)
}

// NotFoundError signals that the bytes behind a file object are not
// available. Callers may turn it into a file-not-found diagnostic.
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file not found: %s: %v", e.Name, e.Err)
	}
	return "file not found: " + e.Name
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err, or any error it wraps, is a *NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IllegalArgument wraps err so that errors.Is(err, ErrIllegalArgument) holds.
func IllegalArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalArgument, fmt.Sprintf(format, args...))
}

// IllegalState wraps err so that errors.Is(err, ErrIllegalState) holds.
func IllegalState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}
