package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/keshon/nuget-tracker/internal/nuget"
	"github.com/keshon/nuget-tracker/internal/preconditions"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/internal/tracker"
	"github.com/keshon/nuget-tracker/pkg/cmd"
)

// Packages manages the guild's tracked package list.
type Packages struct {
	cmd.Base
	deps Deps
}

func packagesBlueprint(d Deps) *cmd.Blueprint {
	return cmd.Define(func() *Packages { return &Packages{deps: d} }, func(m *cmd.ModuleBuilder[*Packages]) {
		m.Group("packages").
			Summary("Manage the tracked packages of this server").
			Require(
				preconditions.RequireGuild(),
				preconditions.RequireAdmin(d.DeveloperID),
				preconditions.RequireModuleEnabled(d.Store),
			)
		m.Command("add", (*Packages).Add,
			cmd.Summary("Start tracking a NuGet package"),
			cmd.Param[string]("package_id").Summary("NuGet package id").Required().Require(preconditions.NotBlank()),
		)
		m.Command("remove", (*Packages).Remove,
			cmd.Summary("Stop tracking a NuGet package"),
			cmd.Param[string]("package_id").Summary("Tracked package id").Required().Require(preconditions.NotBlank()),
		)
	})
}

func (p *Packages) Add(ctx context.Context, args cmd.Args) error {
	if err := p.Defer(ctx); err != nil {
		return err
	}
	inv := p.Invocation()
	id, _ := cmd.Arg[string](args, "package_id")

	if _, ok, err := p.deps.Store.GetPackage(inv.GuildID, id); err != nil {
		return err
	} else if ok {
		return p.Reply(ctx, errorEmbed("Error", fmt.Sprintf("The package `%s` is already tracked.", id)))
	}

	pkg, err := p.deps.NuGet.Get(ctx, id)
	if errors.Is(err, nuget.ErrNotFound) {
		return p.Reply(ctx, errorEmbed("Error", "Package doesn't exist, please enter a valid package id!"))
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", id, err)
	}

	tracked := tracker.Snapshot(pkg, p.deps.now())
	tracked.AddedBy = inv.UserID
	if err := p.deps.Store.AddPackage(inv.GuildID, tracked); errors.Is(err, storage.ErrPackageTracked) {
		return p.Reply(ctx, errorEmbed("Error", fmt.Sprintf("The package `%s` is already tracked.", id)))
	} else if err != nil {
		return err
	}

	p.deps.Log.Info().Str("guild", inv.GuildID).Str("package", tracked.PackageID).Msg("package tracked")
	return p.Reply(ctx, cmd.Message{Embed: &cmd.Embed{
		Author:       byline(tracked),
		ThumbnailURL: tracked.IconURL,
		Title:        "Package Added",
		Description:  "The package was successfully added to the tracker.",
		Color:        cmd.ColorPrimary,
	}})
}

func (p *Packages) Remove(ctx context.Context, args cmd.Args) error {
	if err := p.Defer(ctx); err != nil {
		return err
	}
	inv := p.Invocation()
	id, _ := cmd.Arg[string](args, "package_id")

	tracked, ok, err := p.deps.Store.GetPackage(inv.GuildID, id)
	if err != nil {
		return err
	}
	if !ok {
		return p.Reply(ctx, errorEmbed("Error", fmt.Sprintf("The package `%s` isn't in the tracker!", id)))
	}
	if err := p.deps.Store.RemovePackage(inv.GuildID, id); err != nil && !errors.Is(err, storage.ErrPackageNotTracked) {
		return err
	}

	return p.Reply(ctx, cmd.Message{Embed: &cmd.Embed{
		Author:       byline(tracked),
		ThumbnailURL: tracked.IconURL,
		Title:        "Package Removed",
		Description:  "The package was successfully removed from the tracker.",
		Color:        cmd.ColorPrimary,
	}})
}
