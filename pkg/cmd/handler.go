package cmd

import "context"

// Handler is implemented by embedding Base in a module struct.
type Handler interface {
	bind(inv *Invocation)
}

// BeforeExecuter is an optional hook run after binding and before the
// command method.
type BeforeExecuter interface {
	BeforeExecute(ctx context.Context) error
}

// Base gives handler modules access to their invocation. Embed it by value.
type Base struct {
	inv *Invocation
}

func (b *Base) bind(inv *Invocation) { b.inv = inv }

// Invocation returns the invocation being handled.
func (b *Base) Invocation() *Invocation { return b.inv }

// Reply answers the invocation. See Responder.Reply.
func (b *Base) Reply(ctx context.Context, msg Message) error {
	return b.inv.responder.Reply(ctx, msg)
}

// ReplyText answers with plain content.
func (b *Base) ReplyText(ctx context.Context, content string) error {
	return b.Reply(ctx, Text(content))
}

// Defer acknowledges the invocation so a slow command can reply later.
func (b *Base) Defer(ctx context.Context) error {
	return b.inv.responder.Defer(ctx)
}

// FollowUp sends an additional message after acknowledgement.
func (b *Base) FollowUp(ctx context.Context, msg Message) error {
	return b.inv.responder.FollowUp(ctx, msg)
}
