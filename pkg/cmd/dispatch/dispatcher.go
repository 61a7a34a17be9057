// Package dispatch routes invocations from both surfaces to registered
// commands: it resolves the dispatch key, coerces arguments, runs
// preconditions and the handler, and reports one normalized result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/coerce"
	"github.com/rs/zerolog"
)

var ErrUnknownCommand = errors.New("unknown command")

// Interaction is a structured invocation: the top-level command name and
// its options as delivered by the platform.
type Interaction struct {
	Name    string
	Options []cmd.RawValue
}

// ResultFunc receives the final result of every invocation.
type ResultFunc func(ctx context.Context, inv *cmd.Invocation, res cmd.Result)

// Dispatcher executes invocations against a Registry.
type Dispatcher struct {
	registry       *cmd.Registry
	engine         Engine
	chain          *coerce.Chain
	onResult       ResultFunc
	log            zerolog.Logger
	maxDepth       int
	resolveTimeout time.Duration
	middleware     []cmd.Middleware
	run            cmd.Executor
	wg             sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEngine sets the free-text matching engine.
func WithEngine(e Engine) Option { return func(d *Dispatcher) { d.engine = e } }

// WithChain sets the coercion chain. A chain with no custom resolvers is
// used by default.
func WithChain(c *coerce.Chain) Option { return func(d *Dispatcher) { d.chain = c } }

// WithResultFunc sets the consumer of final results.
func WithResultFunc(fn ResultFunc) Option { return func(d *Dispatcher) { d.onResult = fn } }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option { return func(d *Dispatcher) { d.log = log } }

// WithMaxPathDepth bounds sub-command descent.
func WithMaxPathDepth(n int) Option { return func(d *Dispatcher) { d.maxDepth = n } }

// WithResolveTimeout bounds argument coercion per invocation. Zero disables it.
func WithResolveTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.resolveTimeout = t } }

// WithMiddleware wraps command execution. The first middleware is outermost.
func WithMiddleware(mws ...cmd.Middleware) Option {
	return func(d *Dispatcher) { d.middleware = append(d.middleware, mws...) }
}

// New returns a dispatcher for the commands in registry.
func New(registry *cmd.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		log:      zerolog.Nop(),
		maxDepth: DefaultMaxPathDepth,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.chain == nil {
		d.chain = coerce.NewChain(coerce.WithLogger(d.log))
	}
	d.run = cmd.Apply(d.invoke, d.middleware...)
	return d
}

// Registry returns the registry the dispatcher reads.
func (d *Dispatcher) Registry() *cmd.Registry { return d.registry }

// Chain returns the coercion chain, for registering custom resolvers.
func (d *Dispatcher) Chain() *coerce.Chain { return d.chain }

// Register builds the blueprints into the registry and hands every command
// key to the text engine. A rebuilt module replaces all of its previous
// keys. Commands that fail to build are skipped; the error lists them.
func (d *Dispatcher) Register(bps ...*cmd.Blueprint) error {
	mods, err := d.registry.Register(bps...)
	if d.engine == nil {
		return err
	}
	errs := []error{err}
	for _, m := range mods {
		d.engine.Forget(m.Type)
		for _, c := range m.AllCommands() {
			for _, key := range c.Keys() {
				if regErr := d.engine.Register(key, d.execute, c); regErr != nil {
					errs = append(errs, fmt.Errorf("register %q with text engine: %w", key, regErr))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// ExecuteText runs a free-text command. Matching is delegated to the engine.
func (d *Dispatcher) ExecuteText(ctx context.Context, inv *cmd.Invocation, input string) cmd.Result {
	var res cmd.Result
	if d.engine == nil {
		res = unknown(input, ErrUnknownCommand)
	} else {
		res = d.engine.Execute(ctx, inv, input)
	}
	if !res.Pending {
		d.report(ctx, inv, res)
	}
	return res
}

// ExecuteInteraction runs a structured invocation.
func (d *Dispatcher) ExecuteInteraction(ctx context.Context, inv *cmd.Invocation, in Interaction) cmd.Result {
	res := d.executeInteraction(ctx, inv, in)
	if !res.Pending {
		d.report(ctx, inv, res)
	}
	return res
}

func (d *Dispatcher) executeInteraction(ctx context.Context, inv *cmd.Invocation, in Interaction) cmd.Result {
	path, err := ResolvePath(in.Name, in.Options, d.maxDepth)
	if err != nil {
		return unknown(in.Name, fmt.Errorf("%w: %w", ErrUnknownCommand, err))
	}
	c, ok := d.registry.Lookup(path.Key)
	if !ok {
		return unknown(path.Key, ErrUnknownCommand)
	}
	return d.execute(ctx, inv, c, path.Options)
}

// Wait blocks until every async command has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) execute(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, raw []cmd.RawValue) cmd.Result {
	rctx, cancel := ctx, context.CancelFunc(func() {})
	if d.resolveTimeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, d.resolveTimeout)
	}
	args, err := d.chain.ResolveArgs(rctx, inv, c.Parameters, raw)
	cancel()
	if err != nil {
		reason := err.Error()
		var pe *coerce.ParseError
		if errors.As(err, &pe) {
			reason = pe.Reason
		}
		return cmd.Result{Kind: cmd.ResultParseFailure, Reason: reason, Err: err, Command: c, Key: c.Key()}
	}

	if c.RunMode == cmd.RunAsync {
		actx := context.WithoutCancel(ctx)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.report(actx, inv, d.run(actx, inv, c, args))
		}()
		return cmd.Result{Kind: cmd.ResultSuccess, Command: c, Key: c.Key(), Pending: true}
	}
	return d.run(ctx, inv, c, args)
}

func (d *Dispatcher) invoke(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, args cmd.Args) cmd.Result {
	if err := cmd.CheckPreconditions(ctx, inv, c, args); err != nil {
		reason := err.Error()
		var pe *cmd.PreconditionError
		if errors.As(err, &pe) {
			reason = pe.Err.Error()
		}
		return cmd.Result{Kind: cmd.ResultPreconditionFailure, Reason: reason, Err: err, Command: c, Key: c.Key()}
	}

	res, err := c.Invoke(ctx, inv, args)
	if err != nil {
		var panicErr *cmd.PanicError
		if errors.As(err, &panicErr) {
			d.log.Error().Str("command", c.Key()).Interface("panic", panicErr.Value).Bytes("stack", panicErr.Stack).Msg("handler panicked")
		}
		return cmd.Result{Kind: cmd.ResultException, Reason: err.Error(), Err: err, Command: c, Key: c.Key()}
	}
	res.Command, res.Key = c, c.Key()
	return res
}

func (d *Dispatcher) report(ctx context.Context, inv *cmd.Invocation, res cmd.Result) {
	ev := d.log.Debug()
	if !res.IsSuccess() {
		ev = d.log.Info().Str("reason", res.Reason)
	}
	ev.Str("invocation", inv.ID).Str("surface", inv.Surface.String()).Str("key", res.Key).Stringer("result", res.Kind).Msg("command finished")
	if d.onResult != nil {
		d.onResult(ctx, inv, res)
	}
}

func unknown(key string, err error) cmd.Result {
	return cmd.Result{Kind: cmd.ResultUnknownCommand, Reason: "unknown command", Err: err, Key: key}
}
