package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keshon/nuget-tracker/internal/app"
	"github.com/keshon/nuget-tracker/internal/config"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmbedAndAttachment(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf, cmd.Message{
		Embed: &cmd.Embed{
			Author:      "Serilog by Serilog Contributors",
			Title:       "Downloads",
			Description: "Total downloads: 600",
			Fields:      []cmd.EmbedField{{Name: "a", Value: "b"}},
			Footer:      "Versions published since 2023-01-01",
		},
		Files: []cmd.File{{Name: "downloads.csv", Reader: strings.NewReader("package,version\n")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "[Serilog by Serilog Contributors]\n"+
		"== Downloads ==\n"+
		"Total downloads: 600\n"+
		"a\nb\n"+
		"-- Versions published since 2023-01-01\n"+
		"--- downloads.csv ---\n"+
		"package,version\n", buf.String())
}

func newConsoleApp(t *testing.T) (*app.App, *console, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	con := &console{out: &out}
	cfg := &config.Config{
		StoragePath:     filepath.Join(t.TempDir(), "datastore.json"),
		TrackerInterval: time.Hour,
	}
	a, err := app.New(cfg, zerolog.Nop(), dispatch.WithResultFunc(con.report))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, con, &out
}

func TestReplRunsLinesUntilExit(t *testing.T) {
	a, con, out := newConsoleApp(t)
	who := caller{UserID: "u1", GuildID: "g1", Admin: true}

	in := strings.NewReader("ping\n\nnosuchcommand\nmodules status\nexit\nping\n")
	require.NoError(t, con.repl(context.Background(), a.Dispatcher, who, in))

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "== Pong! =="))
	assert.Contains(t, text, "! unknown command: unknown command")
	assert.Contains(t, text, "All modules are enabled.")
}

func TestReplStopsAtEOF(t *testing.T) {
	a, con, out := newConsoleApp(t)

	require.NoError(t, con.repl(context.Background(), a.Dispatcher, caller{GuildID: "g1"}, strings.NewReader("help statistics")))
	assert.Contains(t, out.String(), "statistics downloads")
}
