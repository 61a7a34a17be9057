// Package cmdtest provides a recording Transport for tests.
package cmdtest

import (
	"context"
	"sync"

	"github.com/keshon/nuget-tracker/pkg/cmd"
)

// Transport records every primitive call. Set Err to make calls fail.
type Transport struct {
	mu        sync.Mutex
	Direct    []cmd.Message
	FollowUps []cmd.Message
	Defers    int
	Err       error
}

func (t *Transport) SendDirect(_ context.Context, _ *cmd.Invocation, msg cmd.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.Direct = append(t.Direct, msg)
	return nil
}

func (t *Transport) Defer(context.Context, *cmd.Invocation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.Defers++
	return nil
}

func (t *Transport) SendFollowUp(_ context.Context, _ *cmd.Invocation, msg cmd.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.FollowUps = append(t.FollowUps, msg)
	return nil
}

// Calls returns the number of direct sends, defers and follow-ups.
func (t *Transport) Calls() (direct, defers, followUps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Direct), t.Defers, len(t.FollowUps)
}

// Messages returns every message sent, in order of primitive.
func (t *Transport) Messages() []cmd.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]cmd.Message(nil), t.Direct...)
	return append(out, t.FollowUps...)
}

// Interaction returns an invocation on the structured surface.
func Interaction(t *Transport) *cmd.Invocation {
	inv := cmd.NewInvocation(cmd.SurfaceInteraction, t)
	inv.UserID, inv.Username, inv.GuildID, inv.ChannelID = "u1", "tester", "g1", "c1"
	return inv
}

// Text returns an invocation on the free-text surface.
func Text(t *Transport) *cmd.Invocation {
	inv := cmd.NewInvocation(cmd.SurfaceText, t)
	inv.UserID, inv.Username, inv.GuildID, inv.ChannelID = "u1", "tester", "g1", "c1"
	return inv
}
