package discord

import (
	"context"
	"fmt"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/rs/zerolog"
)

// Renderer reports failed invocations back to the user. Unknown commands
// are ignored so stray prefixed chatter gets no answer.
func Renderer(log zerolog.Logger) dispatch.ResultFunc {
	return func(ctx context.Context, inv *cmd.Invocation, res cmd.Result) {
		msg, ok := failureMessage(res)
		if !ok {
			return
		}
		if err := inv.Responder().Respond(ctx, msg); err != nil {
			log.Warn().Err(err).Str("invocation", inv.ID).Str("command", res.Key).Msg("failure report not delivered")
		}
	}
}

func failureMessage(res cmd.Result) (cmd.Message, bool) {
	if res.IsSuccess() || res.Pending || res.Kind == cmd.ResultUnknownCommand {
		return cmd.Message{}, false
	}
	desc := fmt.Sprintf("%s: %s", res.Kind, res.Reason)
	if res.Kind == cmd.ResultException && res.Err != nil && res.Err.Error() != res.Reason {
		desc += "\n" + res.Err.Error()
	}
	return cmd.Message{
		Embed: &cmd.Embed{
			Title:       "Command Failed",
			Description: desc,
			Color:       cmd.ColorDanger,
		},
		Ephemeral: true,
	}, true
}
