// Package commands holds the bot's handler modules.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/nuget-tracker/internal/nuget"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/rs/zerolog"
)

// PackageSource fetches package data from NuGet.
type PackageSource interface {
	Get(ctx context.Context, id string) (nuget.Package, error)
}

// Deps are the services handler modules share.
type Deps struct {
	Store       *storage.Storage
	NuGet       PackageSource
	Registry    *cmd.Registry
	DeveloperID string
	Latency     func() time.Duration
	Now         func() time.Time
	Log         zerolog.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Blueprints returns every module of the bot.
func Blueprints(d Deps) []*cmd.Blueprint {
	return []*cmd.Blueprint{
		coreBlueprint(d),
		statisticsBlueprint(d),
		packagesBlueprint(d),
	}
}

func errorEmbed(title, description string) cmd.Message {
	return cmd.Message{Embed: &cmd.Embed{
		Title:       title,
		Description: description,
		Color:       cmd.ColorDanger,
	}}
}

func byline(p storage.TrackedPackage) string {
	name := p.Name
	if name == "" {
		name = p.PackageID
	}
	if len(p.Authors) == 0 {
		return name
	}
	return fmt.Sprintf("%s by %s", name, strings.Join(p.Authors, ", "))
}
