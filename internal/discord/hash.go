package discord

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// stableOption is the part of an option definition Discord persists.
type stableOption struct {
	Name         string                                 `json:"name"`
	Description  string                                 `json:"description"`
	Type         discordgo.ApplicationCommandOptionType `json:"type"`
	Required     bool                                   `json:"required"`
	Autocomplete bool                                   `json:"autocomplete,omitempty"`
	Choices      [][2]any                               `json:"choices,omitempty"`
	Options      []stableOption                         `json:"options,omitempty"`
}

// hashCommand returns a deterministic digest of a command definition.
// IDs and versions assigned by Discord are ignored.
func hashCommand(c *discordgo.ApplicationCommand) string {
	data, _ := json.Marshal(struct {
		Name        string                           `json:"name"`
		Description string                           `json:"description"`
		Type        discordgo.ApplicationCommandType `json:"type"`
		Options     []stableOption                   `json:"options,omitempty"`
	}{c.Name, c.Description, c.Type, stableOptions(c.Options)})
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func stableOptions(opts []*discordgo.ApplicationCommandOption) []stableOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]stableOption, 0, len(opts))
	for _, o := range opts {
		so := stableOption{
			Name:         o.Name,
			Description:  o.Description,
			Type:         o.Type,
			Required:     o.Required,
			Autocomplete: o.Autocomplete,
			Options:      stableOptions(o.Options),
		}
		for _, ch := range o.Choices {
			so.Choices = append(so.Choices, [2]any{ch.Name, ch.Value})
		}
		out = append(out, so)
	}
	slices.SortFunc(out, func(a, b stableOption) int { return strings.Compare(a.Name, b.Name) })
	return out
}
