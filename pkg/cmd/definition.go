package cmd

import (
	"context"
	"reflect"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// RunMode selects whether the dispatcher waits for a handler to finish.
type RunMode uint8

const (
	// RunSync waits for the handler and reports its result directly.
	RunSync RunMode = iota
	// RunAsync starts the handler on its own goroutine and reports later.
	RunAsync
)

func (m RunMode) String() string {
	if m == RunAsync {
		return "async"
	}
	return "sync"
}

// Module is a group of commands built from one handler type.
type Module struct {
	Name          string
	Group         string
	Summary       string
	TypeName      string
	// Type is the handler type the module was built from. Rebuilding a
	// blueprint yields a module with the same Type.
	Type          reflect.Type
	Aliases       []string
	Commands      []*Command
	Preconditions []Precondition
	Submodules    []*Module
	Parent        *Module
}

// Root returns the top-level module of m's tree.
func (m *Module) Root() *Module {
	for m.Parent != nil {
		m = m.Parent
	}
	return m
}

// Walk calls fn for m and every submodule, parents first.
func (m *Module) Walk(fn func(*Module)) {
	fn(m)
	for _, sub := range m.Submodules {
		sub.Walk(fn)
	}
}

// AllCommands returns the commands of m and all of its submodules.
func (m *Module) AllCommands() []*Command {
	var out []*Command
	m.Walk(func(mod *Module) {
		out = append(out, mod.Commands...)
	})
	return out
}

// aliasPaths returns every alias path leading to m, parents first.
func (m *Module) aliasPaths() []string {
	if m.Parent == nil {
		return slices.Clone(m.Aliases)
	}
	var out []string
	for _, prefix := range m.Parent.aliasPaths() {
		for _, a := range m.Aliases {
			out = append(out, joinKey(prefix, a))
		}
	}
	return out
}

type invokeFunc func(ctx context.Context, inv *Invocation, args Args) (Result, error)

// Command is one invokable handler method and its metadata.
type Command struct {
	Name          string
	Summary       string
	Aliases       []string
	Parameters    []*Parameter
	RunMode       RunMode
	Priority      int
	Preconditions []Precondition
	Module        *Module

	keys   []string
	invoke invokeFunc
	log    zerolog.Logger
}

// Keys returns the fully qualified dispatch keys of c, lower-cased.
func (c *Command) Keys() []string { return slices.Clone(c.keys) }

// Key returns the primary dispatch key.
func (c *Command) Key() string {
	if len(c.keys) == 0 {
		return ""
	}
	return c.keys[0]
}

// Parameter returns the parameter with the given name.
func (c *Command) Parameter(name string) (*Parameter, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Invoke creates a fresh handler instance, runs the command on it and
// releases the instance. Panics are returned as *PanicError.
func (c *Command) Invoke(ctx context.Context, inv *Invocation, args Args) (Result, error) {
	if c.invoke == nil {
		return Result{}, ErrNilHandler
	}
	return c.invoke(ctx, inv, args)
}

// Parameter describes one argument of a command.
type Parameter struct {
	Name          string
	Summary       string
	Type          reflect.Type
	Position      int
	IsOptional    bool
	Default       any
	HasDefault    bool
	IsRemainder   bool
	IsMultiple    bool
	ErrorHandler  ParseErrorHandler
	Preconditions []ParameterPrecondition
	Command       *Command
}

// IsNullable reports whether the declared type is a pointer.
func (p *Parameter) IsNullable() bool {
	return p.Type != nil && p.Type.Kind() == reflect.Pointer
}

// OptionKind is the runtime kind of a structured option.
type OptionKind uint8

const (
	KindUnknown OptionKind = iota
	KindSubCommand
	KindSubCommandGroup
	KindString
	KindInteger
	KindBoolean
	KindUser
	KindChannel
	KindRole
	KindMentionable
	KindNumber
	KindAttachment
)

// IsSubCommand reports whether k selects a sub-command rather than carrying a value.
func (k OptionKind) IsSubCommand() bool {
	return k == KindSubCommand || k == KindSubCommandGroup
}

// RawValue is one loosely-typed option of a structured payload.
type RawValue struct {
	Name    string
	Kind    OptionKind
	Value   any
	Options []RawValue
}

func joinKey(a, b string) string {
	return strings.TrimSpace(strings.TrimSpace(a) + " " + strings.TrimSpace(b))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.Join(strings.Fields(key), " "))
}
