package middleware

import (
	"context"
	"time"

	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/rs/zerolog"
)

// HistoryStore persists executed commands.
type HistoryStore interface {
	AppendCommandToHistory(guildID string, entry storage.CommandHistory) error
}

// WithCommandHistory records every guild command run, whatever its result.
// A failed write is logged and never changes the result.
func WithCommandHistory(store HistoryStore, log zerolog.Logger) cmd.Middleware {
	return func(next cmd.Executor) cmd.Executor {
		return func(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, args cmd.Args) cmd.Result {
			res := next(ctx, inv, c, args)
			if inv.GuildID == "" {
				return res
			}

			outcome := res.Kind.String()
			if res.Pending {
				outcome = "started"
			}
			err := store.AppendCommandToHistory(inv.GuildID, storage.CommandHistory{
				ChannelID: inv.ChannelID,
				UserID:    inv.UserID,
				Username:  inv.Username,
				Command:   c.Key(),
				Surface:   inv.Surface.String(),
				Result:    outcome,
				Datetime:  time.Now(),
			})
			if err != nil {
				log.Warn().Err(err).Str("command", c.Key()).Str("guild", inv.GuildID).Msg("failed to log command")
			}
			return res
		}
	}
}
