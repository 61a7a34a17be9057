package textengine_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/textengine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mod struct{ cmd.Base }

func (m *mod) Run(context.Context, cmd.Args) error { return nil }

type call struct {
	key string
	raw []cmd.RawValue
}

func build(t *testing.T, describe func(m *cmd.ModuleBuilder[*mod])) (*textengine.Engine, *[]call) {
	t.Helper()
	module, err := cmd.Define(func() *mod { return &mod{} }, describe).Build(zerolog.Nop())
	require.NoError(t, err)

	var calls []call
	e := textengine.New()
	for _, c := range module.AllCommands() {
		for _, key := range c.Keys() {
			require.NoError(t, e.Register(key, func(_ context.Context, _ *cmd.Invocation, c *cmd.Command, raw []cmd.RawValue) cmd.Result {
				calls = append(calls, call{key: c.Key(), raw: raw})
				if len(raw) > 0 && raw[0].Value == "bad" {
					return cmd.Result{Kind: cmd.ResultParseFailure, Reason: "bad"}
				}
				return cmd.Result{Kind: cmd.ResultSuccess, Key: c.Key()}
			}, c))
		}
	}
	return e, &calls
}

func TestLongestKeyWins(t *testing.T) {
	e, calls := build(t, func(m *cmd.ModuleBuilder[*mod]) {
		m.Group("packages")
		m.Command("", (*mod).Run, cmd.Param[string]("what"))
		m.Command("add", (*mod).Run, cmd.Param[string]("package_id"))
	})

	res := e.Execute(context.Background(), nil, "PACKAGES add Serilog extra")

	require.True(t, res.IsSuccess())
	require.Len(t, *calls, 1)
	assert.Equal(t, "packages add", (*calls)[0].key)
	assert.Equal(t, []cmd.RawValue{{Name: "package_id", Kind: cmd.KindString, Value: "Serilog"}}, (*calls)[0].raw)
}

func TestParseFailureTriesNextCandidate(t *testing.T) {
	e, calls := build(t, func(m *cmd.ModuleBuilder[*mod]) {
		m.Group("packages")
		m.Command("", (*mod).Run, cmd.Param[string]("what"))
		m.Command("add", (*mod).Run, cmd.Param[string]("package_id"))
	})

	res := e.Execute(context.Background(), nil, "packages add bad")

	require.True(t, res.IsSuccess())
	require.Len(t, *calls, 2)
	assert.Equal(t, "packages", (*calls)[1].key)
	assert.Equal(t, "add", (*calls)[1].raw[0].Value)
}

func TestPriorityBeatsLength(t *testing.T) {
	e, calls := build(t, func(m *cmd.ModuleBuilder[*mod]) {
		m.Command("ping", (*mod).Run, cmd.Priority(5), cmd.Param[string]("target"))
		m.Command("ping now", (*mod).Run)
	})

	e.Execute(context.Background(), nil, "ping now")

	require.NotEmpty(t, *calls)
	assert.Equal(t, "ping", (*calls)[0].key)
}

func TestRemainderAndMultiple(t *testing.T) {
	e, calls := build(t, func(m *cmd.ModuleBuilder[*mod]) {
		m.Command("say", (*mod).Run, cmd.Param[string]("to"), cmd.Param[string]("text").Remainder())
		m.Command("sum", (*mod).Run, cmd.Param[int]("n").Multiple())
	})

	e.Execute(context.Background(), nil, `say bob "hello there" friend`)
	e.Execute(context.Background(), nil, "sum 1 2 3")

	require.Len(t, *calls, 2)
	assert.Equal(t, "hello there friend", (*calls)[0].raw[1].Value)
	assert.Equal(t, []string{"1", "2", "3"}, (*calls)[1].raw[0].Value)
}

func TestUnknownAndMalformed(t *testing.T) {
	e, _ := build(t, func(m *cmd.ModuleBuilder[*mod]) {
		m.Command("ping", (*mod).Run)
	})

	assert.Equal(t, cmd.ResultUnknownCommand, e.Execute(context.Background(), nil, "pong").Kind)
	assert.Equal(t, cmd.ResultParseFailure, e.Execute(context.Background(), nil, `ping "unterminated`).Kind)
	assert.ErrorIs(t, e.Register("  ", nil, nil), textengine.ErrEmptyKey)
}

func TestForgetDropsModuleEntries(t *testing.T) {
	e, calls := build(t, func(m *cmd.ModuleBuilder[*mod]) {
		m.Command("ping", (*mod).Run)
	})

	e.Forget(reflect.TypeFor[*string]())
	require.True(t, e.Execute(context.Background(), nil, "ping").IsSuccess())

	e.Forget(reflect.TypeFor[*mod]())
	assert.Equal(t, cmd.ResultUnknownCommand, e.Execute(context.Background(), nil, "ping").Kind)
	assert.Len(t, *calls, 1)
}
