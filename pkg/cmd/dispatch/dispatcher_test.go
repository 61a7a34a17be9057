package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/cmdtest"
	"github.com/keshon/nuget-tracker/pkg/cmd/coerce"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/keshon/nuget-tracker/pkg/cmd/textengine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tally struct {
	mu       sync.Mutex
	runs     int
	released int
	last     cmd.Args
}

func (p *tally) ran(args cmd.Args) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs++
	p.last = args
}

type stats struct {
	cmd.Base
	p *tally
}

func (s *stats) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.released++
	return nil
}

func (s *stats) Downloads(ctx context.Context, args cmd.Args) error {
	s.p.ran(args)
	if err := s.Defer(ctx); err != nil {
		return err
	}
	return s.ReplyText(ctx, "ok")
}

func (s *stats) Limit(ctx context.Context, args cmd.Args) error {
	s.p.ran(args)
	return s.ReplyText(ctx, "limited")
}

func (s *stats) Fail(context.Context, cmd.Args) error {
	return errors.New("handler failed")
}

func (s *stats) Crash(context.Context, cmd.Args) error {
	var m map[string]int
	m["x"] = 1
	return nil
}

type recorder struct {
	mu      sync.Mutex
	results []cmd.Result
}

func (r *recorder) record(_ context.Context, _ *cmd.Invocation, res cmd.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) all() []cmd.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cmd.Result(nil), r.results...)
}

func setup(t *testing.T, p *tally, spy cmd.ParseErrorHandler, pre cmd.Precondition, opts ...dispatch.Option) (*dispatch.Dispatcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	bp := cmd.Define(func() *stats { return &stats{p: p} }, func(m *cmd.ModuleBuilder[*stats]) {
		m.Group("statistics")
		m.Command("downloads", (*stats).Downloads,
			cmd.Param[string]("package_id"),
			cmd.Param[*time.Time]("from"),
		)
		m.Command("limit", (*stats).Limit,
			cmd.Param[int32]("n").Required().OnParseError(spy),
			cmd.Param[string]("label"),
		)
		m.Command("fail", (*stats).Fail)
		m.Command("crash", (*stats).Crash)
		m.Command("guarded", (*stats).Limit, cmd.Require(pre))
		m.Command("slow", (*stats).Limit, cmd.Async())
	})
	opts = append([]dispatch.Option{dispatch.WithResultFunc(rec.record), dispatch.WithLogger(zerolog.Nop())}, opts...)
	d := dispatch.New(cmd.NewRegistry(zerolog.Nop()), opts...)
	require.NoError(t, d.Register(bp))
	return d, rec
}

func subcommand(name string, opts ...cmd.RawValue) dispatch.Interaction {
	return dispatch.Interaction{Name: "statistics", Options: []cmd.RawValue{{Name: name, Kind: cmd.KindSubCommand, Options: opts}}}
}

func TestOptionalMissingRunsHandler(t *testing.T) {
	p := &tally{}
	d, rec := setup(t, p, nil, nil)
	tr := &cmdtest.Transport{}
	inv := cmdtest.Interaction(tr)

	res := d.ExecuteInteraction(context.Background(), inv, subcommand("downloads"))

	require.Equal(t, cmd.ResultSuccess, res.Kind, res.Describe())
	assert.Equal(t, "statistics downloads", res.Key)
	assert.Equal(t, 1, p.runs)
	assert.True(t, p.last.IsMissing("package_id"))
	assert.True(t, p.last.IsMissing("from"))
	assert.Equal(t, 1, p.released)

	direct, defers, followUps := tr.Calls()
	assert.Equal(t, 0, direct)
	assert.Equal(t, 1, defers)
	assert.Equal(t, 1, followUps)
	require.Len(t, rec.all(), 1)
}

func TestNarrowingFailureAbortsInvocation(t *testing.T) {
	p := &tally{}
	spyCalls := 0
	spy := cmd.ParseErrorHandlerFunc(func(ctx context.Context, inv *cmd.Invocation, _ *cmd.Parameter, _ any) error {
		spyCalls++
		return inv.Reply(ctx, cmd.Text("number too large"))
	})
	d, rec := setup(t, p, spy, nil)
	tr := &cmdtest.Transport{}

	res := d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr), subcommand("limit",
		cmd.RawValue{Name: "n", Kind: cmd.KindInteger, Value: int64(5000000000)},
		cmd.RawValue{Name: "label", Kind: cmd.KindString, Value: "x"},
	))

	assert.Equal(t, cmd.ResultParseFailure, res.Kind)
	assert.ErrorIs(t, res.Err, coerce.ErrConversion)
	assert.Equal(t, 1, spyCalls)
	assert.Equal(t, 0, p.runs)
	assert.Equal(t, 0, p.released)
	assert.Equal(t, "number too large", tr.Direct[0].Content)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, cmd.ResultParseFailure, rec.all()[0].Kind)
}

func TestStringCoercedToInt32(t *testing.T) {
	p := &tally{}
	d, _ := setup(t, p, nil, nil)

	res := d.ExecuteInteraction(context.Background(), cmdtest.Interaction(&cmdtest.Transport{}), subcommand("limit",
		cmd.RawValue{Name: "n", Kind: cmd.KindString, Value: "123"},
	))

	require.True(t, res.IsSuccess(), res.Describe())
	n, ok := cmd.Arg[int32](p.last, "n")
	require.True(t, ok)
	assert.Equal(t, int32(123), n)
}

func TestUnknownKeyHasNoSideEffects(t *testing.T) {
	d, rec := setup(t, &tally{}, nil, nil)
	tr := &cmdtest.Transport{}
	inv := cmdtest.Interaction(tr)

	res := d.ExecuteInteraction(context.Background(), inv, dispatch.Interaction{Name: "nope"})

	assert.Equal(t, cmd.ResultUnknownCommand, res.Kind)
	assert.ErrorIs(t, res.Err, dispatch.ErrUnknownCommand)
	direct, defers, followUps := tr.Calls()
	assert.Zero(t, direct+defers+followUps)
	assert.Equal(t, cmd.InteractiveFresh, inv.Responder().State())
	require.Len(t, rec.all(), 1)
}

func TestTooDeepPathIsUnknown(t *testing.T) {
	d, _ := setup(t, &tally{}, nil, nil, dispatch.WithMaxPathDepth(1))
	in := subcommand("downloads", cmd.RawValue{Name: "more", Kind: cmd.KindSubCommand})

	res := d.ExecuteInteraction(context.Background(), cmdtest.Interaction(&cmdtest.Transport{}), in)

	assert.Equal(t, cmd.ResultUnknownCommand, res.Kind)
	assert.ErrorIs(t, res.Err, dispatch.ErrPathTooDeep)
}

func TestHandlerErrorAndPanicBecomeException(t *testing.T) {
	p := &tally{}
	d, _ := setup(t, p, nil, nil)
	ctx := context.Background()

	res := d.ExecuteInteraction(ctx, cmdtest.Interaction(&cmdtest.Transport{}), subcommand("fail"))
	assert.Equal(t, cmd.ResultException, res.Kind)
	assert.EqualError(t, res.Err, "handler failed")

	res = d.ExecuteInteraction(ctx, cmdtest.Interaction(&cmdtest.Transport{}), subcommand("crash"))
	assert.Equal(t, cmd.ResultException, res.Kind)
	var pe *cmd.PanicError
	assert.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, 2, p.released)
}

func TestPreconditionShortCircuits(t *testing.T) {
	p := &tally{}
	deny := cmd.PreconditionFunc(func(context.Context, *cmd.Invocation, *cmd.Command) error {
		return errors.New("admins only")
	})
	d, _ := setup(t, p, nil, deny)

	res := d.ExecuteInteraction(context.Background(), cmdtest.Interaction(&cmdtest.Transport{}), subcommand("guarded"))

	assert.Equal(t, cmd.ResultPreconditionFailure, res.Kind)
	assert.Equal(t, "admins only", res.Reason)
	assert.Equal(t, 0, p.runs)
	assert.Equal(t, 0, p.released)
}

func TestAsyncReportsWhenDone(t *testing.T) {
	p := &tally{}
	d, rec := setup(t, p, nil, nil)
	tr := &cmdtest.Transport{}

	res := d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr), subcommand("slow"))
	assert.True(t, res.Pending)
	assert.True(t, res.IsSuccess())

	d.Wait()
	results := rec.all()
	require.Len(t, results, 1)
	assert.False(t, results[0].Pending)
	assert.Equal(t, "statistics slow", results[0].Key)
	assert.Equal(t, 1, p.runs)
}

func TestResolveTimeoutIsParseFailure(t *testing.T) {
	p := &tally{}
	chain := coerce.NewChain()
	type slowRef struct{ v string }
	coerce.RegisterResolver(chain, func(ctx context.Context, _ *cmd.Invocation, in string) (slowRef, error) {
		<-ctx.Done()
		return slowRef{in}, nil
	})
	rec := &recorder{}
	d := dispatch.New(cmd.NewRegistry(zerolog.Nop()), dispatch.WithChain(chain), dispatch.WithResultFunc(rec.record), dispatch.WithResolveTimeout(5*time.Millisecond))
	require.NoError(t, d.Register(cmd.Define(func() *stats { return &stats{p: p} }, func(m *cmd.ModuleBuilder[*stats]) {
		m.Command("lookup", (*stats).Limit, cmd.Param[slowRef]("ref"))
	})))

	res := d.ExecuteInteraction(context.Background(), cmdtest.Interaction(&cmdtest.Transport{}), dispatch.Interaction{
		Name:    "lookup",
		Options: []cmd.RawValue{{Name: "ref", Kind: cmd.KindString, Value: "x"}},
	})

	assert.Equal(t, cmd.ResultParseFailure, res.Kind)
	assert.Equal(t, "timeout", res.Reason)
	assert.Equal(t, 0, p.runs)
}

func TestTextSurfaceThroughEngine(t *testing.T) {
	p := &tally{}
	d, rec := setup(t, p, nil, nil, dispatch.WithEngine(textengine.New()))
	tr := &cmdtest.Transport{}

	res := d.ExecuteText(context.Background(), cmdtest.Text(tr), `Statistics limit 7 "two words"`)

	require.True(t, res.IsSuccess(), res.Describe())
	n, _ := cmd.Arg[int32](p.last, "n")
	label, _ := cmd.Arg[string](p.last, "label")
	assert.Equal(t, int32(7), n)
	assert.Equal(t, "two words", label)
	direct, _, _ := tr.Calls()
	assert.Equal(t, 1, direct)

	res = d.ExecuteText(context.Background(), cmdtest.Text(tr), "unknown thing")
	assert.Equal(t, cmd.ResultUnknownCommand, res.Kind)
	assert.Len(t, rec.all(), 2)
}

func TestMiddlewareWrapsExecution(t *testing.T) {
	var seen []string
	mw := func(next cmd.Executor) cmd.Executor {
		return func(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, args cmd.Args) cmd.Result {
			res := next(ctx, inv, c, args)
			seen = append(seen, c.Key()+":"+res.Kind.String())
			return res
		}
	}
	d, _ := setup(t, &tally{}, nil, nil, dispatch.WithMiddleware(mw))

	d.ExecuteInteraction(context.Background(), cmdtest.Interaction(&cmdtest.Transport{}), subcommand("fail"))

	assert.Equal(t, []string{"statistics fail:exception"}, seen)
}

type versioned struct{ cmd.Base }

func (v *versioned) Run(ctx context.Context, _ cmd.Args) error {
	return v.ReplyText(ctx, "ok")
}

func TestReRegisterDropsRemovedTextKeys(t *testing.T) {
	d := dispatch.New(cmd.NewRegistry(zerolog.Nop()), dispatch.WithEngine(textengine.New()))
	define := func(name string) *cmd.Blueprint {
		return cmd.Define(func() *versioned { return &versioned{} }, func(m *cmd.ModuleBuilder[*versioned]) {
			m.Group("pk")
			m.Command(name, (*versioned).Run)
		})
	}
	require.NoError(t, d.Register(define("old")))
	require.True(t, d.ExecuteText(context.Background(), cmdtest.Text(&cmdtest.Transport{}), "pk old").IsSuccess())

	require.NoError(t, d.Register(define("new")))

	_, ok := d.Registry().Lookup("pk old")
	assert.False(t, ok)
	res := d.ExecuteText(context.Background(), cmdtest.Text(&cmdtest.Transport{}), "pk old")
	assert.Equal(t, cmd.ResultUnknownCommand, res.Kind)
	assert.True(t, d.ExecuteText(context.Background(), cmdtest.Text(&cmdtest.Transport{}), "pk new").IsSuccess())
}

func TestOverloadsCallParseErrorHandlerOnce(t *testing.T) {
	calls := 0
	spy := cmd.ParseErrorHandlerFunc(func(context.Context, *cmd.Invocation, *cmd.Parameter, any) error {
		calls++
		return nil
	})
	d := dispatch.New(cmd.NewRegistry(zerolog.Nop()), dispatch.WithEngine(textengine.New()))
	require.NoError(t, d.Register(cmd.Define(func() *versioned { return &versioned{} }, func(m *cmd.ModuleBuilder[*versioned]) {
		m.Command("x", (*versioned).Run, cmd.Priority(2), cmd.Param[int]("n").Required().OnParseError(spy))
		m.Command("x", (*versioned).Run, cmd.Priority(1), cmd.Param[bool]("b").Required().OnParseError(spy))
	})))

	res := d.ExecuteText(context.Background(), cmdtest.Text(&cmdtest.Transport{}), "x zz")
	assert.Equal(t, cmd.ResultParseFailure, res.Kind)
	assert.Equal(t, 1, calls)

	calls = 0
	res = d.ExecuteText(context.Background(), cmdtest.Text(&cmdtest.Transport{}), "x true")
	assert.True(t, res.IsSuccess(), res.Describe())
	assert.Equal(t, 0, calls)
}
