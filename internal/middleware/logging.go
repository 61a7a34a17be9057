// Package middleware wraps command execution with cross-cutting behaviour.
package middleware

import (
	"context"
	"time"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/rs/zerolog"
)

// WithLogging logs each executed command with its duration and outcome.
func WithLogging(log zerolog.Logger) cmd.Middleware {
	return func(next cmd.Executor) cmd.Executor {
		return func(ctx context.Context, inv *cmd.Invocation, c *cmd.Command, args cmd.Args) cmd.Result {
			start := time.Now()
			res := next(ctx, inv, c, args)

			ev := log.Info()
			if !res.IsSuccess() {
				ev = log.Warn().Str("reason", res.Reason)
				if res.Err != nil {
					ev = ev.Err(res.Err)
				}
			}
			ev.Str("invocation", inv.ID).
				Str("command", c.Key()).
				Stringer("surface", inv.Surface).
				Str("user", inv.Username).
				Str("guild", inv.GuildID).
				Stringer("result", res.Kind).
				Bool("pending", res.Pending).
				Dur("took", time.Since(start)).
				Msg("command executed")
			return res
		}
	}
}
