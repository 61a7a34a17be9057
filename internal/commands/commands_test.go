package commands_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keshon/nuget-tracker/internal/commands"
	"github.com/keshon/nuget-tracker/internal/nuget"
	"github.com/keshon/nuget-tracker/internal/preconditions"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/cmdtest"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/keshon/nuget-tracker/pkg/cmd/textengine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

type fakeNuGet map[string]nuget.Package

func (f fakeNuGet) Get(_ context.Context, id string) (nuget.Package, error) {
	if p, ok := f[strings.ToLower(id)]; ok {
		return p, nil
	}
	return nuget.Package{}, nuget.ErrNotFound
}

type harness struct {
	d     *dispatch.Dispatcher
	store *storage.Storage

	mu      sync.Mutex
	results []cmd.Result
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "db.json"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	src := fakeNuGet{"serilog": {
		SearchResult: nuget.SearchResult{ID: "Serilog", Title: "Serilog", Authors: []string{"Serilog Contributors"}, TotalDownloads: 1000},
		Versions: []nuget.Version{
			{Version: "1.0.0", Downloads: 400, Published: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)},
			{Version: "2.0.0", Downloads: 600, Published: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
		},
	}}

	h := &harness{store: store}
	reg := cmd.NewRegistry(zerolog.Nop())
	h.d = dispatch.New(reg,
		dispatch.WithEngine(textengine.New()),
		dispatch.WithResultFunc(func(_ context.Context, _ *cmd.Invocation, res cmd.Result) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.results = append(h.results, res)
		}),
	)
	require.NoError(t, h.d.Register(commands.Blueprints(commands.Deps{
		Store:       store,
		NuGet:       src,
		Registry:    reg,
		DeveloperID: "dev",
		Latency:     func() time.Duration { return 42 * time.Millisecond },
		Now:         func() time.Time { return now },
		Log:         zerolog.Nop(),
	})...))
	return h
}

func sub(name string, opts ...cmd.RawValue) cmd.RawValue {
	return cmd.RawValue{Name: name, Kind: cmd.KindSubCommand, Options: opts}
}

func str(name, value string) cmd.RawValue {
	return cmd.RawValue{Name: name, Kind: cmd.KindString, Value: value}
}

func admin(tr *cmdtest.Transport) *cmd.Invocation {
	inv := cmdtest.Interaction(tr)
	inv.IsAdmin = true
	return inv
}

func (h *harness) addSerilog(t *testing.T) {
	t.Helper()
	res := h.d.ExecuteInteraction(context.Background(), admin(&cmdtest.Transport{}),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("add", str("package_id", "Serilog"))}})
	require.True(t, res.IsSuccess(), res.Describe())
}

func TestPackagesAdd(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}

	res := h.d.ExecuteInteraction(context.Background(), admin(tr),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("add", str("package_id", "serilog"))}})
	require.True(t, res.IsSuccess(), res.Describe())

	direct, defers, followUps := tr.Calls()
	assert.Equal(t, []int{0, 1, 1}, []int{direct, defers, followUps})
	assert.Equal(t, "Package Added", tr.FollowUps[0].Embed.Title)
	assert.Equal(t, "Serilog by Serilog Contributors", tr.FollowUps[0].Embed.Author)

	pkg, ok, err := h.store.GetPackage("g1", "SERILOG")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", pkg.AddedBy)
	assert.Equal(t, now, pkg.LastUpdated)
	assert.Len(t, pkg.Versions, 2)
}

func TestPackagesAddRejectsDuplicatesAndUnknown(t *testing.T) {
	h := newHarness(t)
	h.addSerilog(t)

	tr := &cmdtest.Transport{}
	res := h.d.ExecuteInteraction(context.Background(), admin(tr),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("add", str("package_id", "Serilog"))}})
	require.True(t, res.IsSuccess())
	assert.Contains(t, tr.FollowUps[0].Embed.Description, "already tracked")

	tr = &cmdtest.Transport{}
	h.d.ExecuteInteraction(context.Background(), admin(tr),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("add", str("package_id", "NoSuchPackage"))}})
	assert.Equal(t, cmd.ColorDanger, tr.FollowUps[0].Embed.Color)
	assert.Contains(t, tr.FollowUps[0].Embed.Description, "doesn't exist")
}

func TestPackagesRequireAdmin(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}

	res := h.d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("add", str("package_id", "Serilog"))}})

	assert.Equal(t, cmd.ResultPreconditionFailure, res.Kind)
	assert.Equal(t, preconditions.ErrNotAdmin.Error(), res.Reason)
	direct, defers, followUps := tr.Calls()
	assert.Zero(t, direct+defers+followUps)
}

func TestPackagesBlankIDFailsPrecondition(t *testing.T) {
	h := newHarness(t)
	res := h.d.ExecuteInteraction(context.Background(), admin(&cmdtest.Transport{}),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("add", str("package_id", "   "))}})
	assert.Equal(t, cmd.ResultPreconditionFailure, res.Kind)
	assert.ErrorIs(t, res.Err, preconditions.ErrBlank)
}

func TestPackagesRemove(t *testing.T) {
	h := newHarness(t)
	h.addSerilog(t)

	tr := &cmdtest.Transport{}
	h.d.ExecuteInteraction(context.Background(), admin(tr),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("remove", str("package_id", "Serilog"))}})
	assert.Equal(t, "Package Removed", tr.FollowUps[0].Embed.Title)

	_, ok, err := h.store.GetPackage("g1", "Serilog")
	require.NoError(t, err)
	assert.False(t, ok)

	tr = &cmdtest.Transport{}
	h.d.ExecuteInteraction(context.Background(), admin(tr),
		dispatch.Interaction{Name: "packages", Options: []cmd.RawValue{sub("remove", str("package_id", "Serilog"))}})
	assert.Contains(t, tr.FollowUps[0].Embed.Description, "isn't in the tracker")
}

func TestStatisticsWithoutPackages(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}
	res := h.d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr),
		dispatch.Interaction{Name: "statistics", Options: []cmd.RawValue{sub("downloads")}})
	require.True(t, res.IsSuccess(), res.Describe())
	assert.Equal(t, "No packages found", tr.FollowUps[0].Embed.Title)
}

func TestStatisticsTextWithWindow(t *testing.T) {
	h := newHarness(t)
	h.addSerilog(t)

	tr := &cmdtest.Transport{}
	res := h.d.ExecuteText(context.Background(), cmdtest.Text(tr), "statistics downloads Serilog 2023-01-01")
	require.True(t, res.IsSuccess(), res.Describe())

	direct, defers, followUps := tr.Calls()
	assert.Equal(t, []int{1, 0, 0}, []int{direct, defers, followUps})
	msg := tr.Direct[0]
	assert.Contains(t, msg.Embed.Description, "Total downloads: 1000")
	assert.Contains(t, msg.Embed.Description, "Current version: 2.0.0 - 600")
	assert.Contains(t, msg.Embed.Description, "Downloads per day: 1")
	assert.Equal(t, "Versions published since 2023-01-01", msg.Embed.Footer)

	require.Len(t, msg.Files, 1)
	report, err := io.ReadAll(msg.Files[0].Reader)
	require.NoError(t, err)
	assert.Equal(t, "package,version,published,downloads\nSerilog,2.0.0,2023-06-01,600\n", string(report))
}

func TestStatisticsRejectsInvertedRange(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}
	h.d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr),
		dispatch.Interaction{Name: "statistics", Options: []cmd.RawValue{sub("downloads",
			str("from", "2024-01-01"), str("to", "2023-01-01"))}})
	assert.Equal(t, "Invalid range", tr.FollowUps[0].Embed.Title)
}

func TestStatisticsBadDateIsParseFailure(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}
	res := h.d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr),
		dispatch.Interaction{Name: "statistics", Options: []cmd.RawValue{sub("downloads", str("from", "yesterday-ish"))}})
	assert.Equal(t, cmd.ResultParseFailure, res.Kind)
	direct, defers, followUps := tr.Calls()
	assert.Zero(t, direct+defers+followUps)
}

func TestModuleToggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	toggle := func(action, module string) *cmdtest.Transport {
		tr := &cmdtest.Transport{}
		res := h.d.ExecuteInteraction(ctx, admin(tr),
			dispatch.Interaction{Name: "modules", Options: []cmd.RawValue{sub(action, str("module", module))}})
		require.True(t, res.IsSuccess(), res.Describe())
		return tr
	}

	tr := toggle("disable", "Statistics")
	assert.Equal(t, "Module disabled", tr.Direct[0].Embed.Title)

	res := h.d.ExecuteInteraction(ctx, cmdtest.Interaction(&cmdtest.Transport{}),
		dispatch.Interaction{Name: "statistics", Options: []cmd.RawValue{sub("downloads")}})
	assert.Equal(t, cmd.ResultPreconditionFailure, res.Kind)
	assert.ErrorIs(t, res.Err, preconditions.ErrModuleDisabled)

	tr = toggle("disable", "core")
	assert.Equal(t, "Unknown module", tr.Direct[0].Embed.Title)
	assert.Contains(t, tr.Direct[0].Embed.Description, "packages")

	toggle("enable", "statistics")
	res = h.d.ExecuteInteraction(ctx, cmdtest.Interaction(&cmdtest.Transport{}),
		dispatch.Interaction{Name: "statistics", Options: []cmd.RawValue{sub("downloads")}})
	assert.True(t, res.IsSuccess(), res.Describe())
}

func TestHelpOrdersModulesByWeight(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}
	res := h.d.ExecuteText(context.Background(), cmdtest.Text(tr), "help")
	require.True(t, res.IsSuccess(), res.Describe())

	desc := tr.Direct[0].Embed.Description
	core, stats, pkgs := strings.Index(desc, "**core**"), strings.Index(desc, "**statistics**"), strings.Index(desc, "**packages**")
	assert.True(t, core >= 0 && core < stats && stats < pkgs, desc)
	assert.Contains(t, desc, "`statistics downloads [package_id] [from] [to]`")
	assert.Contains(t, desc, "`packages add <package_id>`")
	assert.Contains(t, desc, "`modules disable <module>`")
}

func TestHelpSingleModule(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}
	h.d.ExecuteText(context.Background(), cmdtest.Text(tr), "help packages")
	desc := tr.Direct[0].Embed.Description
	assert.Contains(t, desc, "**packages**")
	assert.NotContains(t, desc, "**core**")
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	tr := &cmdtest.Transport{}
	res := h.d.ExecuteInteraction(context.Background(), cmdtest.Interaction(tr), dispatch.Interaction{Name: "ping"})
	require.True(t, res.IsSuccess(), res.Describe())
	assert.Equal(t, "Latency: 42ms", tr.Direct[0].Embed.Description)
	assert.True(t, tr.Direct[0].Ephemeral)
}
