package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// Blueprint describes how to build the module for one handler type.
// Blueprints are created with Define and handed to Registry.Register.
type Blueprint struct {
	typ   reflect.Type
	build func(parent *Module, log zerolog.Logger) (*Module, []error)
}

// Type returns the handler type the blueprint builds.
func (b *Blueprint) Type() reflect.Type { return b.typ }

// Build produces a fresh module definition. Commands that fail to build are
// left out and reported in the returned error.
func (b *Blueprint) Build(log zerolog.Logger) (*Module, error) {
	m, errs := b.build(nil, log)
	return m, errors.Join(errs...)
}

// Define returns the blueprint of handler type T. newInstance is called once
// per invocation; describe declares the module's metadata and commands.
func Define[T Handler](newInstance func() T, describe func(m *ModuleBuilder[T])) *Blueprint {
	typ := reflect.TypeFor[T]()
	return &Blueprint{
		typ: typ,
		build: func(parent *Module, log zerolog.Logger) (*Module, []error) {
			mb := &ModuleBuilder[T]{newInstance: newInstance}
			if describe != nil {
				describe(mb)
			}
			return mb.build(typ, parent, log)
		},
	}
}

// ModuleBuilder collects the declarations of one handler module.
type ModuleBuilder[T Handler] struct {
	newInstance   func() T
	name          string
	group         string
	summary       string
	aliases       []string
	preconditions []Precondition
	commands      []commandSpec[T]
	submodules    []*Blueprint
}

type commandSpec[T Handler] struct {
	name string
	run  func(T, context.Context, Args) (Result, error)
	opts []CommandOption
}

// Name sets the module name explicitly.
func (m *ModuleBuilder[T]) Name(name string) *ModuleBuilder[T] {
	m.name = name
	return m
}

// Group sets the group prefix. The prefix is also registered as an alias.
func (m *ModuleBuilder[T]) Group(prefix string) *ModuleBuilder[T] {
	m.group = prefix
	return m
}

// Alias adds module aliases.
func (m *ModuleBuilder[T]) Alias(aliases ...string) *ModuleBuilder[T] {
	m.aliases = append(m.aliases, aliases...)
	return m
}

// Summary sets the module description.
func (m *ModuleBuilder[T]) Summary(s string) *ModuleBuilder[T] {
	m.summary = s
	return m
}

// Require adds preconditions checked for every command of the module and
// its submodules.
func (m *ModuleBuilder[T]) Require(p ...Precondition) *ModuleBuilder[T] {
	m.preconditions = append(m.preconditions, p...)
	return m
}

// Submodule nests another handler module under this one.
func (m *ModuleBuilder[T]) Submodule(bp *Blueprint) *ModuleBuilder[T] {
	m.submodules = append(m.submodules, bp)
	return m
}

// Command declares a command backed by fn, usually a method expression.
func (m *ModuleBuilder[T]) Command(name string, fn func(T, context.Context, Args) error, opts ...CommandOption) *ModuleBuilder[T] {
	var run func(T, context.Context, Args) (Result, error)
	if fn != nil {
		run = func(h T, ctx context.Context, a Args) (Result, error) {
			if err := fn(h, ctx, a); err != nil {
				return Result{}, err
			}
			return Success(), nil
		}
	}
	m.commands = append(m.commands, commandSpec[T]{name: name, run: run, opts: opts})
	return m
}

// CommandResult declares a command whose method reports its own Result.
func (m *ModuleBuilder[T]) CommandResult(name string, fn func(T, context.Context, Args) (Result, error), opts ...CommandOption) *ModuleBuilder[T] {
	m.commands = append(m.commands, commandSpec[T]{name: name, run: fn, opts: opts})
	return m
}

func (m *ModuleBuilder[T]) build(typ reflect.Type, parent *Module, log zerolog.Logger) (*Module, []error) {
	mod := &Module{
		Name:          m.name,
		Group:         strings.TrimSpace(m.group),
		Summary:       m.summary,
		TypeName:      typeName(typ),
		Type:          typ,
		Preconditions: slices.Clone(m.preconditions),
		Parent:        parent,
	}
	if mod.Name == "" {
		mod.Name = mod.Group
	}
	if mod.Name == "" {
		mod.Name = mod.TypeName
	}
	mod.Aliases = seedAliases(m.aliases, mod.Group)

	var errs []error
	fail := func(cmdName string, err error) {
		be := &BuildError{Module: mod.Name, Command: cmdName, Err: err}
		log.Warn().Err(err).Str("module", mod.Name).Str("command", cmdName).Msg("command skipped")
		errs = append(errs, be)
	}

	paths := mod.aliasPaths()
	for _, spec := range m.commands {
		c, err := m.buildCommand(spec, mod, paths, log)
		if err != nil {
			fail(spec.name, err)
			continue
		}
		mod.Commands = append(mod.Commands, c)
	}

	for _, bp := range m.submodules {
		sub, subErrs := bp.build(mod, log)
		errs = append(errs, subErrs...)
		mod.Submodules = append(mod.Submodules, sub)
	}
	return mod, errs
}

func (m *ModuleBuilder[T]) buildCommand(spec commandSpec[T], mod *Module, paths []string, log zerolog.Logger) (*Command, error) {
	if spec.run == nil {
		return nil, ErrNilHandler
	}
	cfg := commandConfig{}
	for _, o := range spec.opts {
		o.applyCommand(&cfg)
	}

	c := &Command{
		Name:          strings.TrimSpace(spec.name),
		Summary:       cfg.summary,
		RunMode:       cfg.runMode,
		Priority:      cfg.priority,
		Preconditions: cfg.preconditions,
		Module:        mod,
		log:           log,
	}
	c.Aliases = dedupe(append([]string{c.Name}, cfg.aliases...))

	seen := make(map[string]bool, len(cfg.params))
	for i, pb := range cfg.params {
		if pb.err != nil {
			return nil, pb.err
		}
		p := pb.p
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("parameter %d: %w", i, ErrEmptyName)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, ErrDuplicateParameter)
		}
		seen[p.Name] = true
		if p.IsRemainder {
			for _, other := range cfg.params[i+1:] {
				if other.p.IsRemainder {
					return nil, fmt.Errorf("parameter %q: %w", p.Name, ErrMultipleRemainders)
				}
			}
			if i != len(cfg.params)-1 {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, ErrRemainderNotLast)
			}
		}
		p.Position = i
		p.Command = c
		c.Parameters = append(c.Parameters, &p)
	}

	for _, path := range paths {
		for _, a := range c.Aliases {
			key := normalizeKey(joinKey(path, a))
			if key == "" {
				return nil, fmt.Errorf("command key: %w", ErrEmptyName)
			}
			if !slices.Contains(c.keys, key) {
				c.keys = append(c.keys, key)
			}
		}
	}

	newInstance, run := m.newInstance, spec.run
	c.invoke = func(ctx context.Context, inv *Invocation, args Args) (res Result, err error) {
		h := newInstance()
		defer func() {
			if r := recover(); r != nil {
				res, err = Result{}, &PanicError{Value: r, Stack: debug.Stack()}
			}
			if closer, ok := any(h).(io.Closer); ok {
				if cerr := closer.Close(); cerr != nil {
					c.log.Warn().Err(cerr).Str("command", c.Key()).Msg("release handler")
				}
			}
		}()
		h.bind(inv)
		if be, ok := any(h).(BeforeExecuter); ok {
			if err := be.BeforeExecute(ctx); err != nil {
				return Result{}, err
			}
		}
		return run(h, ctx, args)
	}
	return c, nil
}

func seedAliases(declared []string, group string) []string {
	out := make([]string, 0, len(declared)+1)
	for _, a := range declared {
		out = append(out, strings.TrimSpace(a))
	}
	if group != "" {
		out = append(out, group)
	}
	out = dedupe(out)
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func dedupe(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		if !slices.ContainsFunc(out, func(o string) bool { return strings.EqualFold(o, s) }) {
			out = append(out, s)
		}
	}
	return out
}

func typeName(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// CommandOption configures a command declaration.
type CommandOption interface {
	applyCommand(*commandConfig)
}

type commandConfig struct {
	aliases       []string
	summary       string
	priority      int
	runMode       RunMode
	preconditions []Precondition
	params        []*ParamBuilder
}

type commandOptionFunc func(*commandConfig)

func (f commandOptionFunc) applyCommand(c *commandConfig) { f(c) }

// Alias adds command aliases.
func Alias(aliases ...string) CommandOption {
	return commandOptionFunc(func(c *commandConfig) { c.aliases = append(c.aliases, aliases...) })
}

// Summary sets the command description.
func Summary(s string) CommandOption {
	return commandOptionFunc(func(c *commandConfig) { c.summary = s })
}

// Priority sets the tie-break priority; higher wins.
func Priority(p int) CommandOption {
	return commandOptionFunc(func(c *commandConfig) { c.priority = p })
}

// Async runs the command without making the dispatcher wait for it.
func Async() CommandOption {
	return commandOptionFunc(func(c *commandConfig) { c.runMode = RunAsync })
}

// Require adds command preconditions.
func Require(p ...Precondition) CommandOption {
	return commandOptionFunc(func(c *commandConfig) {
		for _, pc := range p {
			if pc != nil {
				c.preconditions = append(c.preconditions, pc)
			}
		}
	})
}

// ParamBuilder declares one command parameter.
type ParamBuilder struct {
	p   Parameter
	err error
}

// Param declares a parameter of type T. Parameters are optional unless
// Required is called. Use a pointer type for nullable values.
func Param[T any](name string) *ParamBuilder {
	return &ParamBuilder{p: Parameter{
		Name:       name,
		Type:       reflect.TypeFor[T](),
		IsOptional: true,
	}}
}

func (b *ParamBuilder) applyCommand(c *commandConfig) { c.params = append(c.params, b) }

// Summary sets the parameter description.
func (b *ParamBuilder) Summary(s string) *ParamBuilder {
	b.p.Summary = s
	return b
}

// Required marks the parameter as mandatory.
func (b *ParamBuilder) Required() *ParamBuilder {
	b.p.IsOptional = false
	return b
}

// Default sets the value ArgOr falls back to when no value was supplied.
func (b *ParamBuilder) Default(v any) *ParamBuilder {
	if v != nil && !reflect.TypeOf(v).AssignableTo(b.p.Type) {
		b.err = fmt.Errorf("parameter %q: default of type %T is not assignable to %s", b.p.Name, v, b.p.Type)
	}
	b.p.Default = v
	b.p.HasDefault = true
	return b
}

// Remainder makes the parameter consume all trailing free text.
func (b *ParamBuilder) Remainder() *ParamBuilder {
	b.p.IsRemainder = true
	return b
}

// Multiple makes the parameter variadic. The resolved value is a slice of
// the declared type.
func (b *ParamBuilder) Multiple() *ParamBuilder {
	b.p.IsMultiple = true
	return b
}

// OnParseError sets the handler told about coercion failures.
func (b *ParamBuilder) OnParseError(h ParseErrorHandler) *ParamBuilder {
	b.p.ErrorHandler = h
	return b
}

// Require adds parameter preconditions.
func (b *ParamBuilder) Require(p ...ParameterPrecondition) *ParamBuilder {
	b.p.Preconditions = append(b.p.Preconditions, p...)
	return b
}
