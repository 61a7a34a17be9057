package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/nuget-tracker/internal/nuget"
	"github.com/keshon/nuget-tracker/internal/storage"
)

const (
	packageOption  = "package_id"
	searchTake     = 20
	maxChoices     = 25
	maxChoiceLabel = 100
)

// Searcher finds packages on NuGet.
type Searcher interface {
	Search(ctx context.Context, query string, take int) ([]nuget.SearchResult, error)
}

// PackageLister lists the packages a guild tracks.
type PackageLister interface {
	ListPackages(guildID string) ([]storage.TrackedPackage, error)
}

// completer suggests package ids. Adding a package searches NuGet; every
// other command offers the guild's tracked packages.
type completer struct {
	search Searcher
	store  PackageLister
}

// IsAutocompleted reports whether a parameter named name gets suggestions.
func IsAutocompleted(name string) bool { return name == packageOption }

func (c *completer) choices(ctx context.Context, guildID, path, option, typed string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	if !IsAutocompleted(option) {
		return nil, nil
	}
	typed = strings.TrimSpace(typed)

	var out []*discordgo.ApplicationCommandOptionChoice
	if path == "packages add" {
		if typed == "" || c.search == nil {
			return nil, nil
		}
		hits, err := c.search.Search(ctx, typed, searchTake)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			out = append(out, choice(h.Title, h.ID))
		}
		return out, nil
	}

	if c.store == nil || guildID == "" {
		return nil, nil
	}
	pkgs, err := c.store.ListPackages(guildID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(typed)
	for _, p := range pkgs {
		if len(out) == maxChoices {
			break
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.PackageID), needle) {
			continue
		}
		out = append(out, choice(p.Name, p.PackageID))
	}
	return out, nil
}

func choice(label, id string) *discordgo.ApplicationCommandOptionChoice {
	if label == "" || strings.EqualFold(label, id) {
		label = id
	} else {
		label = label + " (" + id + ")"
	}
	if r := []rune(label); len(r) > maxChoiceLabel {
		label = string(r[:maxChoiceLabel])
	}
	return &discordgo.ApplicationCommandOptionChoice{Name: label, Value: id}
}
