package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/nuget-tracker/internal/config"
	"github.com/keshon/nuget-tracker/internal/preconditions"
	"github.com/keshon/nuget-tracker/pkg/cmd"
)

const coreModule = "core"

// Core holds the maintenance commands. They cannot be disabled.
type Core struct {
	cmd.Base
	deps Deps
}

func coreBlueprint(d Deps) *cmd.Blueprint {
	return cmd.Define(func() *Core { return &Core{deps: d} }, func(m *cmd.ModuleBuilder[*Core]) {
		m.Name(coreModule).Summary("Bot maintenance")
		m.Command("ping", (*Core).Ping, cmd.Summary("Check bot latency"))
		m.Command("help", (*Core).Help,
			cmd.Summary("Get a list of available commands"),
			cmd.Param[string]("module").Summary("Only list this module"),
		)
		m.Submodule(modulesBlueprint(d))
	})
}

func (c *Core) Ping(ctx context.Context, _ cmd.Args) error {
	desc := "The bot is up."
	if c.deps.Latency != nil {
		desc = fmt.Sprintf("Latency: %dms", c.deps.Latency().Milliseconds())
	}
	return c.Reply(ctx, cmd.Message{
		Embed:     &cmd.Embed{Title: "Pong!", Description: desc, Color: cmd.ColorPrimary},
		Ephemeral: true,
	})
}

func (c *Core) Help(ctx context.Context, args cmd.Args) error {
	only, _ := cmd.Arg[string](args, "module")
	only = strings.ToLower(strings.TrimSpace(only))

	mods := c.deps.Registry.Modules()
	slices.SortStableFunc(mods, func(a, b *cmd.Module) int {
		if wa, wb := config.ModuleWeight(a.Name), config.ModuleWeight(b.Name); wa != wb {
			return wa - wb
		}
		return strings.Compare(a.Name, b.Name)
	})

	var sb strings.Builder
	for _, mod := range mods {
		if only != "" && !strings.EqualFold(mod.Name, only) {
			continue
		}
		fmt.Fprintf(&sb, "**%s**", mod.Name)
		if mod.Summary != "" {
			fmt.Fprintf(&sb, " - %s", mod.Summary)
		}
		sb.WriteString("\n")

		cmds := mod.AllCommands()
		slices.SortFunc(cmds, func(a, b *cmd.Command) int { return strings.Compare(a.Key(), b.Key()) })
		for _, command := range cmds {
			fmt.Fprintf(&sb, "`%s`", usage(command))
			if command.Summary != "" {
				fmt.Fprintf(&sb, " - %s", command.Summary)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return c.Reply(ctx, errorEmbed("Help", fmt.Sprintf("There is no module named `%s`.", only)))
	}

	return c.Reply(ctx, cmd.Message{
		Embed: &cmd.Embed{
			Title:       "NuGet Tracker Help",
			Description: strings.TrimSpace(sb.String()),
			Color:       cmd.ColorPrimary,
		},
		Ephemeral: true,
	})
}

func usage(c *cmd.Command) string {
	parts := []string{c.Key()}
	for _, p := range c.Parameters {
		if p.IsOptional {
			parts = append(parts, "["+p.Name+"]")
		} else {
			parts = append(parts, "<"+p.Name+">")
		}
	}
	return strings.Join(parts, " ")
}

// Modules toggles whole modules per guild.
type Modules struct {
	cmd.Base
	deps Deps
}

func modulesBlueprint(d Deps) *cmd.Blueprint {
	return cmd.Define(func() *Modules { return &Modules{deps: d} }, func(m *cmd.ModuleBuilder[*Modules]) {
		m.Group("modules").
			Summary("Enable or disable modules on this server").
			Require(preconditions.RequireGuild(), preconditions.RequireAdmin(d.DeveloperID))
		m.Command("disable", (*Modules).Disable,
			cmd.Summary("Disable a module"),
			cmd.Param[string]("module").Summary("Module name").Required(),
		)
		m.Command("enable", (*Modules).Enable,
			cmd.Summary("Enable a module"),
			cmd.Param[string]("module").Summary("Module name").Required(),
		)
		m.Command("status", (*Modules).Status, cmd.Summary("List disabled modules"))
	})
}

func (m *Modules) Disable(ctx context.Context, args cmd.Args) error {
	name, ok := m.target(args)
	if !ok {
		return m.Reply(ctx, m.unknownModule(args))
	}
	if err := m.deps.Store.DisableModule(m.Invocation().GuildID, name); err != nil {
		return err
	}
	return m.Reply(ctx, cmd.Message{Embed: &cmd.Embed{
		Title:       "Module disabled",
		Description: fmt.Sprintf("Commands of `%s` are now disabled on this server.", name),
		Color:       cmd.ColorWarning,
	}})
}

func (m *Modules) Enable(ctx context.Context, args cmd.Args) error {
	name, ok := m.target(args)
	if !ok {
		return m.Reply(ctx, m.unknownModule(args))
	}
	if err := m.deps.Store.EnableModule(m.Invocation().GuildID, name); err != nil {
		return err
	}
	return m.Reply(ctx, cmd.Message{Embed: &cmd.Embed{
		Title:       "Module enabled",
		Description: fmt.Sprintf("Commands of `%s` are now enabled on this server.", name),
		Color:       cmd.ColorPrimary,
	}})
}

func (m *Modules) Status(ctx context.Context, _ cmd.Args) error {
	disabled, err := m.deps.Store.DisabledModules(m.Invocation().GuildID)
	if err != nil {
		return err
	}
	desc := "All modules are enabled."
	if len(disabled) > 0 {
		desc = "Disabled: `" + strings.Join(disabled, "`, `") + "`"
	}
	return m.Reply(ctx, cmd.Message{Embed: &cmd.Embed{Title: "Modules", Description: desc, Color: cmd.ColorPrimary}})
}

// target returns the lower-cased name of a module that may be toggled.
func (m *Modules) target(args cmd.Args) (string, bool) {
	name, _ := cmd.Arg[string](args, "module")
	mod, ok := m.deps.Registry.Module(strings.TrimSpace(name))
	if !ok || strings.EqualFold(mod.Name, coreModule) {
		return "", false
	}
	return strings.ToLower(mod.Name), true
}

func (m *Modules) unknownModule(args cmd.Args) cmd.Message {
	name, _ := cmd.Arg[string](args, "module")
	var names []string
	for _, mod := range m.deps.Registry.Modules() {
		if !strings.EqualFold(mod.Name, coreModule) {
			names = append(names, mod.Name)
		}
	}
	slices.Sort(names)
	return errorEmbed("Unknown module",
		fmt.Sprintf("`%s` cannot be toggled. Choose one of: `%s`", name, strings.Join(names, "`, `")))
}
