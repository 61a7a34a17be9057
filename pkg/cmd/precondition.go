package cmd

import (
	"context"
	"fmt"
)

// Precondition decides whether a command may run for an invocation.
// A non-nil error fails the invocation with ResultPreconditionFailure.
type Precondition interface {
	Check(ctx context.Context, inv *Invocation, c *Command) error
}

// PreconditionFunc adapts a function to Precondition.
type PreconditionFunc func(ctx context.Context, inv *Invocation, c *Command) error

func (f PreconditionFunc) Check(ctx context.Context, inv *Invocation, c *Command) error {
	return f(ctx, inv, c)
}

// ParameterPrecondition validates one resolved argument.
type ParameterPrecondition interface {
	CheckParameter(ctx context.Context, inv *Invocation, p *Parameter, value any) error
}

// ParameterPreconditionFunc adapts a function to ParameterPrecondition.
type ParameterPreconditionFunc func(ctx context.Context, inv *Invocation, p *Parameter, value any) error

func (f ParameterPreconditionFunc) CheckParameter(ctx context.Context, inv *Invocation, p *Parameter, value any) error {
	return f(ctx, inv, p, value)
}

// ParseErrorHandler is told about an argument that could not be coerced,
// typically to send a diagnostic reply. Its error is logged, not returned.
type ParseErrorHandler interface {
	HandleParseError(ctx context.Context, inv *Invocation, p *Parameter, input any) error
}

// ParseErrorHandlerFunc adapts a function to ParseErrorHandler.
type ParseErrorHandlerFunc func(ctx context.Context, inv *Invocation, p *Parameter, input any) error

func (f ParseErrorHandlerFunc) HandleParseError(ctx context.Context, inv *Invocation, p *Parameter, input any) error {
	return f(ctx, inv, p, input)
}

// PreconditionError is a failed precondition check.
type PreconditionError struct {
	Command   string
	Parameter string
	Err       error
}

func (e *PreconditionError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("precondition failed for %s.%s: %v", e.Command, e.Parameter, e.Err)
	}
	return fmt.Sprintf("precondition failed for %s: %v", e.Command, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// CheckPreconditions runs module preconditions from the root down, then
// the command's own, then parameter checks on supplied arguments. The first
// failure stops the run.
func CheckPreconditions(ctx context.Context, inv *Invocation, c *Command, args Args) error {
	var chain []*Module
	for m := c.Module; m != nil; m = m.Parent {
		chain = append(chain, m)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].Preconditions {
			if err := p.Check(ctx, inv, c); err != nil {
				return &PreconditionError{Command: c.Key(), Err: err}
			}
		}
	}
	for _, p := range c.Preconditions {
		if err := p.Check(ctx, inv, c); err != nil {
			return &PreconditionError{Command: c.Key(), Err: err}
		}
	}
	for i, param := range c.Parameters {
		v := args.At(i)
		if v == Missing {
			continue
		}
		for _, pp := range param.Preconditions {
			if err := pp.CheckParameter(ctx, inv, param, v); err != nil {
				return &PreconditionError{Command: c.Key(), Parameter: param.Name, Err: err}
			}
		}
	}
	return nil
}
