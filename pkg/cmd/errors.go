package cmd

import (
	"errors"
	"fmt"
)

var (
	ErrRemainderNotLast   = errors.New("remainder parameter must be the last parameter")
	ErrMultipleRemainders = errors.New("only one remainder parameter is allowed")
	ErrDuplicateParameter = errors.New("duplicate parameter name")
	ErrEmptyName          = errors.New("empty name")
	ErrDuplicateKey       = errors.New("dispatch key already registered by another module")
	ErrNilHandler         = errors.New("command has no handler")

	ErrAlreadyResponded = errors.New("interaction already responded to")
	ErrNotAcknowledged  = errors.New("interaction not acknowledged")
	ErrNoTransport      = errors.New("invocation has no transport")
)

// BuildError reports a command that could not be registered.
type BuildError struct {
	Module  string
	Command string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("build module %q: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("build command %q in module %q: %v", e.Command, e.Module, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }
