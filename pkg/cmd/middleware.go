package cmd

import "context"

// Executor runs a resolved command and reports its result.
type Executor func(ctx context.Context, inv *Invocation, c *Command, args Args) Result

// Middleware wraps an executor (e.g. logging, history, metrics).
type Middleware func(Executor) Executor

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(e Executor, mws ...Middleware) Executor {
	for i := len(mws) - 1; i >= 0; i-- {
		e = mws[i](e)
	}
	return e
}
