package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// InternalError is returned by Compile when the compiler or the driver
// failed unexpectedly. The caller decides whether the process should keep
// serving compilations.
type InternalError struct {
	Err error
	// Message replaces the text of Err when set.
	Message string
}

func (e *InternalError) Error() string {
	if e.Message != "" {
		return "internal compiler error: " + e.Message
	}
	return "internal compiler error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panic in the compiler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a recovered error value so that a cancellation raised by
// panic is still recognised.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

type failureClass int

const (
	classNone failureClass = iota
	classCanceled
	classUsage
	classInternal
)

// classify sorts a task error into the driver's failure classes.
func classify(err error) failureClass {
	switch {
	case err == nil:
		return classNone
	case compiler.IsCanceled(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return classCanceled
	case errors.Is(err, compiler.ErrIllegalArgument),
		errors.Is(err, compiler.ErrIllegalState):
		return classUsage
	default:
		return classInternal
	}
}

// causalMessages returns the distinct non-empty messages of err and every
// error it wraps, outermost first.
func causalMessages(err error) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if msg := strings.TrimSpace(e.Error()); msg != "" && !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
		switch x := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return out
}
