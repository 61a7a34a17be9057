// Package preconditions holds the access checks shared by the bot's modules.
// Their error text is shown to the user as the failure reason.
package preconditions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/nuget-tracker/pkg/cmd"
)

var (
	ErrGuildOnly      = errors.New("this command can only be used in a server")
	ErrNotAdmin       = errors.New("you need the Administrator permission to run this command")
	ErrModuleDisabled = errors.New("this command is disabled on this server")
	ErrBlank          = errors.New("value must not be blank")
)

// RequireGuild rejects invocations outside a guild.
func RequireGuild() cmd.Precondition {
	return cmd.PreconditionFunc(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Command) error {
		if inv.GuildID == "" {
			return ErrGuildOnly
		}
		return nil
	})
}

// RequireAdmin allows guild administrators and the developer account.
func RequireAdmin(developerID string) cmd.Precondition {
	return cmd.PreconditionFunc(func(_ context.Context, inv *cmd.Invocation, _ *cmd.Command) error {
		if inv.IsAdmin || (developerID != "" && inv.UserID == developerID) {
			return nil
		}
		return ErrNotAdmin
	})
}

// ModuleStore reports per-guild module toggles.
type ModuleStore interface {
	IsModuleDisabled(guildID, module string) (bool, error)
}

// RequireModuleEnabled rejects commands whose root module was disabled in
// the invoking guild. Invocations outside a guild always pass.
func RequireModuleEnabled(store ModuleStore) cmd.Precondition {
	return cmd.PreconditionFunc(func(_ context.Context, inv *cmd.Invocation, c *cmd.Command) error {
		if inv.GuildID == "" || c.Module == nil {
			return nil
		}
		name := c.Module.Root().Name
		disabled, err := store.IsModuleDisabled(inv.GuildID, name)
		if err != nil {
			return fmt.Errorf("check module %s: %w", name, err)
		}
		if disabled {
			return fmt.Errorf("%w (module `%s`)", ErrModuleDisabled, name)
		}
		return nil
	})
}

// NotBlank rejects empty or whitespace-only string arguments.
func NotBlank() cmd.ParameterPrecondition {
	return cmd.ParameterPreconditionFunc(func(_ context.Context, _ *cmd.Invocation, p *cmd.Parameter, value any) error {
		s, ok := value.(string)
		if ok && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s: %w", p.Name, ErrBlank)
		}
		return nil
	})
}
