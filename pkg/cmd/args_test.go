package cmd_test

import (
	"context"
	"testing"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/stretchr/testify/assert"
)

func TestArgsMissingIsDistinct(t *testing.T) {
	params := []*cmd.Parameter{{Name: "a"}, {Name: "b"}, {Name: "c", HasDefault: true, Default: 7}}
	args := cmd.NewArgs(params, []any{nil, "x"})

	assert.False(t, args.IsMissing("a"))
	assert.Nil(t, args.At(0))
	assert.Equal(t, "x", args.At(1))
	assert.True(t, args.IsMissing("c"))
	assert.Equal(t, cmd.Missing, args.At(5))

	_, ok := cmd.Arg[string](args, "a")
	assert.False(t, ok)
	s, ok := cmd.Arg[string](args, "b")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	assert.Equal(t, 7, cmd.ArgOr(args, "c", 1))
	assert.Equal(t, 1, cmd.ArgOr(args, "unknown", 1))
}

func TestApplyOrder(t *testing.T) {
	var trace []string
	mw := func(name string) cmd.Middleware {
		return func(next cmd.Executor) cmd.Executor {
			return func(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, args cmd.Args) cmd.Result {
				trace = append(trace, name)
				return next(ctx, inv, c, args)
			}
		}
	}
	base := func(context.Context, *cmd.Invocation, *cmd.Command, cmd.Args) cmd.Result {
		trace = append(trace, "run")
		return cmd.Success()
	}

	res := cmd.Apply(base, mw("outer"), mw("inner"))(context.Background(), nil, nil, cmd.Args{})

	assert.True(t, res.IsSuccess())
	assert.Equal(t, []string{"outer", "inner", "run"}, trace)
}
