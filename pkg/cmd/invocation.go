// Package cmd provides a transport-agnostic command core. Handler modules are
// described once at startup (see Define) and the resulting definitions are
// invoked from either surface the bot supports: free-text messages and
// structured interactions. How a reply reaches the user is decided by the
// invocation's Responder, never by the handler.
package cmd

import (
	"context"

	"github.com/google/uuid"
)

// Surface is where an invocation came from.
type Surface uint8

const (
	// SurfaceText is a free-text command message.
	SurfaceText Surface = iota
	// SurfaceInteraction is a structured, schema-described interaction.
	SurfaceInteraction
)

func (s Surface) String() string {
	if s == SurfaceInteraction {
		return "interaction"
	}
	return "text"
}

// Invocation carries everything one command execution knows about its caller.
// Adapters set Data to their own payload (e.g. *discordgo.InteractionCreate).
type Invocation struct {
	ID        string
	Surface   Surface
	UserID    string
	Username  string
	GuildID   string
	ChannelID string
	IsAdmin   bool
	Input     string
	Data      any

	responder *Responder
}

// NewInvocation creates an invocation whose replies go through t.
func NewInvocation(surface Surface, t Transport) *Invocation {
	inv := &Invocation{
		ID:      uuid.NewString(),
		Surface: surface,
	}
	inv.responder = newResponder(inv, t)
	return inv
}

// IsInteraction reports whether the invocation arrived as a structured interaction.
func (inv *Invocation) IsInteraction() bool { return inv.Surface == SurfaceInteraction }

// Responder returns the invocation's response state machine.
func (inv *Invocation) Responder() *Responder { return inv.responder }

// Reply sends msg using whichever primitive the current response state allows.
func (inv *Invocation) Reply(ctx context.Context, msg Message) error {
	return inv.responder.Reply(ctx, msg)
}
