// Package coerce turns loosely-typed option values into the exact Go types
// command parameters declare. Each value goes through a fixed sequence of
// strategies; the first one that succeeds wins:
//
//  1. the built-in parser of the declared type (pointer types are nullable)
//  2. the custom resolver registered for the declared type
//  3. the numeric conversion table, keyed by (runtime type, declared type)
//  4. direct assignment when the runtime type already fits, wrapped in a
//     pointer for nullable declarations
//  5. the parameter's parse error handler, then a parse failure
//
// Conversion failures in step 3 and unparsable input in step 5 both abort
// the whole invocation; remaining parameters are not resolved.
package coerce

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/rs/zerolog"
)

// Resolver converts user input into a value of the type it was registered for.
type Resolver interface {
	Resolve(ctx context.Context, inv *cmd.Invocation, input string) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, inv *cmd.Invocation, input string) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, inv *cmd.Invocation, input string) (any, error) {
	return f(ctx, inv, input)
}

// Chain is the ordered set of coercion strategies. The zero value is not
// usable; create one with NewChain.
type Chain struct {
	mu          sync.RWMutex
	resolvers   map[reflect.Type]Resolver
	conversions map[conversionKey]ConvertFunc
	log         zerolog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger used for handler failures.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Chain) { c.log = log }
}

// WithResolver registers r for t. See Chain.Register.
func WithResolver(t reflect.Type, r Resolver) Option {
	return func(c *Chain) { c.Register(t, r) }
}

// NewChain returns a chain with the built-in conversion table.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		resolvers:   make(map[reflect.Type]Resolver),
		conversions: defaultConversions(),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register sets the custom resolver for t. Only one resolver exists per type
// and the first registration wins: later calls return false and change
// nothing. Pointer types share the resolver of their element type.
func (c *Chain) Register(t reflect.Type, r Resolver) bool {
	t = unwrap(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.resolvers[t]; exists {
		return false
	}
	c.resolvers[t] = r
	return true
}

// RegisterResolver registers fn as the resolver for T.
func RegisterResolver[T any](c *Chain, fn func(ctx context.Context, inv *cmd.Invocation, input string) (T, error)) bool {
	return c.Register(reflect.TypeFor[T](), ResolverFunc(func(ctx context.Context, inv *cmd.Invocation, input string) (any, error) {
		return fn(ctx, inv, input)
	}))
}

func (c *Chain) resolver(t reflect.Type) (Resolver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resolvers[unwrap(t)]
	return r, ok
}

// Resolve coerces one raw value into p's declared type.
func (c *Chain) Resolve(ctx context.Context, inv *cmd.Invocation, p *cmd.Parameter, raw any) (any, error) {
	input := stringify(raw)

	if parse, ok := primitiveFor(p.Type); ok {
		if v, err := parse(input); err == nil {
			return v, nil
		}
	}

	if r, ok := c.resolver(p.Type); ok {
		v, err := r.Resolve(ctx, inv, input)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, timeoutError(p, input, ctxErr)
		}
		if err == nil {
			if fitted, ok := fit(v, p.Type); ok {
				return fitted, nil
			}
		} else {
			c.log.Debug().Err(err).Str("parameter", p.Name).Msg("custom resolver declined")
		}
	}

	if raw != nil {
		if conv, ok := c.conversion(reflect.TypeOf(raw), p.Type); ok {
			v, err := conv(raw)
			if err != nil {
				c.handle(ctx, inv, p, raw)
				return nil, &ParseError{Parameter: p.Name, Input: input, Reason: "conversion failed", Err: fmt.Errorf("%w: %w", ErrConversion, err)}
			}
			return v, nil
		}
		if v, ok := fit(raw, p.Type); ok {
			return v, nil
		}
	}

	c.handle(ctx, inv, p, raw)
	return nil, &ParseError{Parameter: p.Name, Input: input, Reason: "input was not in the correct format", Err: ErrFormat}
}

type silentKey struct{}

// WithoutErrorHandlers returns a context under which failed values are
// reported only through the returned ParseError. Parameter error handlers
// are not called.
func WithoutErrorHandlers(ctx context.Context) context.Context {
	return context.WithValue(ctx, silentKey{}, true)
}

func (c *Chain) handle(ctx context.Context, inv *cmd.Invocation, p *cmd.Parameter, raw any) {
	if p.ErrorHandler == nil {
		return
	}
	if silent, _ := ctx.Value(silentKey{}).(bool); silent {
		return
	}
	if err := p.ErrorHandler.HandleParseError(ctx, inv, p, raw); err != nil {
		c.log.Warn().Err(err).Str("parameter", p.Name).Msg("parse error handler failed")
	}
}

// ResolveArgs coerces every parameter of a command in declaration order.
// Values are matched to parameters by name. The first failure stops the
// run and no partial result is returned.
func (c *Chain) ResolveArgs(ctx context.Context, inv *cmd.Invocation, params []*cmd.Parameter, raw []cmd.RawValue) (cmd.Args, error) {
	values := make([]any, len(params))
	for i, p := range params {
		if err := ctx.Err(); err != nil {
			return cmd.Args{}, timeoutError(p, "", err)
		}

		rv, found := findRaw(raw, p.Name)
		if !found || rv.Value == nil {
			if !p.IsOptional {
				return cmd.Args{}, &ParseError{Parameter: p.Name, Reason: "missing required value", Err: ErrMissing}
			}
			values[i] = cmd.Missing
			continue
		}

		v, err := c.resolveValue(ctx, inv, p, rv.Value)
		if err != nil {
			return cmd.Args{}, err
		}
		values[i] = v
	}
	return cmd.NewArgs(params, values), nil
}

func (c *Chain) resolveValue(ctx context.Context, inv *cmd.Invocation, p *cmd.Parameter, raw any) (any, error) {
	if !p.IsMultiple {
		return c.Resolve(ctx, inv, p, raw)
	}
	items := reflect.ValueOf(raw)
	if items.Kind() != reflect.Slice && items.Kind() != reflect.Array {
		items = reflect.ValueOf([]any{raw})
	}
	out := reflect.MakeSlice(reflect.SliceOf(p.Type), 0, items.Len())
	for j := 0; j < items.Len(); j++ {
		v, err := c.Resolve(ctx, inv, p, items.Index(j).Interface())
		if err != nil {
			return nil, err
		}
		out = reflect.Append(out, valueOf(v, p.Type))
	}
	return out.Interface(), nil
}

func findRaw(raw []cmd.RawValue, name string) (cmd.RawValue, bool) {
	for _, rv := range raw {
		if rv.Name == name {
			return rv, true
		}
	}
	return cmd.RawValue{}, false
}

// fit checks a value against the declared type, wrapping it in a pointer
// when the declaration is nullable.
func fit(v any, t reflect.Type) (any, bool) {
	if v == nil {
		if t.Kind() == reflect.Pointer {
			return reflect.Zero(t).Interface(), true
		}
		return nil, false
	}
	vt := reflect.TypeOf(v)
	if vt.AssignableTo(t) {
		return v, true
	}
	if t.Kind() == reflect.Pointer && vt.AssignableTo(t.Elem()) {
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(reflect.ValueOf(v))
		return ptr.Interface(), true
	}
	return nil, false
}

func valueOf(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

func unwrap(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(raw)
}

func timeoutError(p *cmd.Parameter, input string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &ParseError{Parameter: p.Name, Input: input, Reason: "timeout", Err: err}
}
