package cmd

import (
	"context"
	"sync"
)

// Transport is the set of primitives a chat platform offers for answering
// an invocation. The Responder picks which one to call.
type Transport interface {
	// SendDirect answers the invocation directly. For interactions this is
	// the single allowed initial response; for text it is a channel send.
	SendDirect(ctx context.Context, inv *Invocation, msg Message) error
	// Defer acknowledges an interaction without content.
	Defer(ctx context.Context, inv *Invocation) error
	// SendFollowUp sends an additional message after acknowledgement.
	SendFollowUp(ctx context.Context, inv *Invocation, msg Message) error
}

// ResponseState is the acknowledgement state of an invocation.
type ResponseState uint8

const (
	// NotInteractive is the free-text path. Direct sends are always legal.
	NotInteractive ResponseState = iota
	// InteractiveFresh is an interaction nobody has answered yet.
	InteractiveFresh
	// InteractiveDeferred is an acknowledged interaction awaiting follow-ups.
	InteractiveDeferred
	// InteractiveResponded is an interaction that got its direct response.
	InteractiveResponded
)

func (s ResponseState) String() string {
	switch s {
	case NotInteractive:
		return "not-interactive"
	case InteractiveFresh:
		return "fresh"
	case InteractiveDeferred:
		return "deferred"
	case InteractiveResponded:
		return "responded"
	}
	return "unknown"
}

// Responder gates an invocation's transport calls by response state.
// It is safe for concurrent use.
type Responder struct {
	mu    sync.Mutex
	state ResponseState
	inv   *Invocation
	t     Transport
}

func newResponder(inv *Invocation, t Transport) *Responder {
	r := &Responder{inv: inv, t: t, state: NotInteractive}
	if inv.Surface == SurfaceInteraction {
		r.state = InteractiveFresh
	}
	return r
}

// State returns the current state.
func (r *Responder) State() ResponseState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Defer acknowledges a fresh interaction. Deferring again is a no-op, as is
// deferring a free-text invocation.
func (r *Responder) Defer(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case NotInteractive, InteractiveDeferred:
		return nil
	case InteractiveResponded:
		return ErrAlreadyResponded
	}
	if r.t == nil {
		return ErrNoTransport
	}
	if err := r.t.Defer(ctx, r.inv); err != nil {
		return err
	}
	r.state = InteractiveDeferred
	return nil
}

// Reply sends msg with the primitive the current state requires. A second
// direct response to an interaction is refused with ErrAlreadyResponded.
func (r *Responder) Reply(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reply(ctx, msg)
}

// FollowUp sends an additional message. Interactions must be acknowledged
// first; free-text invocations fall back to a direct send.
func (r *Responder) FollowUp(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.followUp(ctx, msg)
}

// Respond is Reply for a fresh or free-text invocation and FollowUp once
// the direct response has been used. The primitive is chosen and sent
// under one lock.
func (r *Responder) Respond(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == InteractiveResponded {
		return r.followUp(ctx, msg)
	}
	return r.reply(ctx, msg)
}

// reply and followUp expect r.mu to be held.
func (r *Responder) reply(ctx context.Context, msg Message) error {
	if r.t == nil {
		return ErrNoTransport
	}
	switch r.state {
	case NotInteractive:
		return r.t.SendDirect(ctx, r.inv, msg)
	case InteractiveFresh:
		if err := r.t.SendDirect(ctx, r.inv, msg); err != nil {
			return err
		}
		r.state = InteractiveResponded
		return nil
	case InteractiveDeferred:
		return r.t.SendFollowUp(ctx, r.inv, msg)
	}
	return ErrAlreadyResponded
}

func (r *Responder) followUp(ctx context.Context, msg Message) error {
	if r.t == nil {
		return ErrNoTransport
	}
	switch r.state {
	case NotInteractive:
		return r.t.SendDirect(ctx, r.inv, msg)
	case InteractiveFresh:
		return ErrNotAcknowledged
	}
	return r.t.SendFollowUp(ctx, r.inv, msg)
}
