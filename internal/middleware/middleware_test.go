package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/keshon/nuget-tracker/internal/middleware"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/cmdtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noop struct{ cmd.Base }

func (noop) Run(context.Context, cmd.Args) error { return nil }

func command(t *testing.T) *cmd.Command {
	t.Helper()
	reg := cmd.NewRegistry(zerolog.Nop())
	_, err := reg.Register(cmd.Define(func() *noop { return &noop{} }, func(m *cmd.ModuleBuilder[*noop]) {
		m.Name("core").Group("core")
		m.Command("ping", (*noop).Run)
	}))
	require.NoError(t, err)
	c, ok := reg.Lookup("core ping")
	require.True(t, ok)
	return c
}

func fixed(res cmd.Result) cmd.Executor {
	return func(context.Context, *cmd.Invocation, *cmd.Command, cmd.Args) cmd.Result { return res }
}

type failingStore struct{}

func (failingStore) AppendCommandToHistory(string, storage.CommandHistory) error {
	return errors.New("disk full")
}

func TestCommandHistoryRecordsGuildCommands(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "db.json"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	c := command(t)
	exec := cmd.Apply(fixed(cmd.Failure(cmd.ResultParseFailure, "bad", nil)), middleware.WithCommandHistory(store, zerolog.Nop()))

	inv := cmdtest.Interaction(&cmdtest.Transport{})
	res := exec(context.Background(), inv, c, cmd.Args{})
	assert.Equal(t, cmd.ResultParseFailure, res.Kind)

	dm := cmdtest.Text(&cmdtest.Transport{})
	dm.GuildID = ""
	exec(context.Background(), dm, c, cmd.Args{})

	history, err := store.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "core ping", history[0].Command)
	assert.Equal(t, "interaction", history[0].Surface)
	assert.Equal(t, "parse failure", history[0].Result)
	assert.Equal(t, "tester", history[0].Username)
	assert.Equal(t, []string{"g1"}, store.GuildIDs())
}

func TestCommandHistoryIgnoresStoreErrors(t *testing.T) {
	exec := cmd.Apply(fixed(cmd.Success()), middleware.WithCommandHistory(failingStore{}, zerolog.Nop()))
	res := exec(context.Background(), cmdtest.Text(&cmdtest.Transport{}), command(t), cmd.Args{})
	assert.True(t, res.IsSuccess())
}

func TestLoggingWritesResult(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	exec := cmd.Apply(fixed(cmd.Failure(cmd.ResultException, "boom", errors.New("boom"))), middleware.WithLogging(log))

	exec(context.Background(), cmdtest.Text(&cmdtest.Transport{}), command(t), cmd.Args{})

	out := buf.String()
	assert.Contains(t, out, `"command":"core ping"`)
	assert.Contains(t, out, `"result":"exception"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"surface":"text"`)
}
