package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
)

// maxOptionDepth bounds every walk of an option tree: the deepest
// sub-command the dispatcher accepts plus the level holding its values.
const maxOptionDepth = dispatch.DefaultMaxPathDepth + 1

// rawOptions converts interaction options into the dispatcher's loosely
// typed form. Integers arrive as JSON numbers and are narrowed to int64.
func rawOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) []cmd.RawValue {
	return rawOptionsAt(opts, 1)
}

func rawOptionsAt(opts []*discordgo.ApplicationCommandInteractionDataOption, level int) []cmd.RawValue {
	if len(opts) == 0 || level > maxOptionDepth {
		return nil
	}
	out := make([]cmd.RawValue, 0, len(opts))
	for _, o := range opts {
		rv := cmd.RawValue{
			Name:    o.Name,
			Kind:    optionKind(o.Type),
			Value:   o.Value,
			Options: rawOptionsAt(o.Options, level+1),
		}
		if f, ok := o.Value.(float64); ok && o.Type == discordgo.ApplicationCommandOptionInteger {
			rv.Value = int64(f)
		}
		out = append(out, rv)
	}
	return out
}

func optionKind(t discordgo.ApplicationCommandOptionType) cmd.OptionKind {
	switch t {
	case discordgo.ApplicationCommandOptionSubCommand:
		return cmd.KindSubCommand
	case discordgo.ApplicationCommandOptionSubCommandGroup:
		return cmd.KindSubCommandGroup
	case discordgo.ApplicationCommandOptionString:
		return cmd.KindString
	case discordgo.ApplicationCommandOptionInteger:
		return cmd.KindInteger
	case discordgo.ApplicationCommandOptionBoolean:
		return cmd.KindBoolean
	case discordgo.ApplicationCommandOptionUser:
		return cmd.KindUser
	case discordgo.ApplicationCommandOptionChannel:
		return cmd.KindChannel
	case discordgo.ApplicationCommandOptionRole:
		return cmd.KindRole
	case discordgo.ApplicationCommandOptionMentionable:
		return cmd.KindMentionable
	case discordgo.ApplicationCommandOptionNumber:
		return cmd.KindNumber
	case discordgo.ApplicationCommandOptionAttachment:
		return cmd.KindAttachment
	}
	return cmd.KindUnknown
}

// focusedOption returns the option the user is typing into.
func focusedOption(opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return focusedOptionAt(opts, 1)
}

func focusedOptionAt(opts []*discordgo.ApplicationCommandInteractionDataOption, level int) *discordgo.ApplicationCommandInteractionDataOption {
	if level > maxOptionDepth {
		return nil
	}
	for _, o := range opts {
		if o.Focused {
			return o
		}
		if f := focusedOptionAt(o.Options, level+1); f != nil {
			return f
		}
	}
	return nil
}

// commandPath renders the command name followed by its sub-command chain,
// e.g. "statistics downloads".
func commandPath(data discordgo.ApplicationCommandInteractionData) string {
	parts := []string{data.Name}
	opts := data.Options
	for depth := 0; len(opts) > 0 && depth < dispatch.DefaultMaxPathDepth; depth++ {
		o := opts[0]
		if o.Type != discordgo.ApplicationCommandOptionSubCommand && o.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			break
		}
		parts = append(parts, o.Name)
		opts = o.Options
	}
	return strings.Join(parts, " ")
}
