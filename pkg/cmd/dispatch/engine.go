package dispatch

import (
	"context"
	"reflect"

	"github.com/keshon/nuget-tracker/pkg/cmd"
)

// ExecuteFunc runs c with the raw values an engine extracted from its input.
type ExecuteFunc func(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, raw []cmd.RawValue) cmd.Result

// Engine matches free text against registered commands. The dispatcher
// registers every command key once and delegates text input to Execute.
// When a handler type is registered again, Forget drops the keys of its
// previous module before the new ones are added.
type Engine interface {
	Register(key string, exec ExecuteFunc, c *cmd.Command) error
	Forget(typ reflect.Type)
	Execute(ctx context.Context, inv *cmd.Invocation, input string) cmd.Result
}
