package cmd_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/cmdtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyFreshInteractionSendsDirectOnce(t *testing.T) {
	tr := &cmdtest.Transport{}
	inv := cmdtest.Interaction(tr)
	ctx := context.Background()

	require.NoError(t, inv.Reply(ctx, cmd.Text("hi")))

	direct, defers, followUps := tr.Calls()
	assert.Equal(t, 1, direct)
	assert.Equal(t, 0, defers)
	assert.Equal(t, 0, followUps)
	assert.Equal(t, cmd.InteractiveResponded, inv.Responder().State())

	err := inv.Reply(ctx, cmd.Text("again"))
	assert.ErrorIs(t, err, cmd.ErrAlreadyResponded)
	direct, _, _ = tr.Calls()
	assert.Equal(t, 1, direct)
}

func TestReplyAfterDeferUsesFollowUp(t *testing.T) {
	tr := &cmdtest.Transport{}
	inv := cmdtest.Interaction(tr)
	ctx := context.Background()
	r := inv.Responder()

	require.NoError(t, r.Defer(ctx))
	require.NoError(t, r.Defer(ctx))
	require.NoError(t, r.Reply(ctx, cmd.Text("hi")))
	require.NoError(t, r.Reply(ctx, cmd.Text("more")))

	direct, defers, followUps := tr.Calls()
	assert.Equal(t, 0, direct)
	assert.Equal(t, 1, defers)
	assert.Equal(t, 2, followUps)
	assert.Equal(t, cmd.InteractiveDeferred, r.State())
}

func TestTextSurfaceRepliesRepeatably(t *testing.T) {
	tr := &cmdtest.Transport{}
	inv := cmdtest.Text(tr)
	ctx := context.Background()
	r := inv.Responder()

	require.NoError(t, r.Defer(ctx))
	require.NoError(t, r.Reply(ctx, cmd.Text("one")))
	require.NoError(t, r.Reply(ctx, cmd.Text("two")))
	require.NoError(t, r.FollowUp(ctx, cmd.Text("three")))

	direct, defers, followUps := tr.Calls()
	assert.Equal(t, 3, direct)
	assert.Equal(t, 0, defers)
	assert.Equal(t, 0, followUps)
	assert.Equal(t, cmd.NotInteractive, r.State())
}

func TestFollowUpRequiresAcknowledgement(t *testing.T) {
	tr := &cmdtest.Transport{}
	r := cmdtest.Interaction(tr).Responder()
	ctx := context.Background()

	assert.ErrorIs(t, r.FollowUp(ctx, cmd.Text("x")), cmd.ErrNotAcknowledged)

	require.NoError(t, r.Reply(ctx, cmd.Text("first")))
	require.NoError(t, r.FollowUp(ctx, cmd.Text("second")))
	assert.ErrorIs(t, r.Defer(ctx), cmd.ErrAlreadyResponded)

	direct, _, followUps := tr.Calls()
	assert.Equal(t, 1, direct)
	assert.Equal(t, 1, followUps)
}

func TestRespondSwitchesToFollowUp(t *testing.T) {
	tr := &cmdtest.Transport{}
	r := cmdtest.Interaction(tr).Responder()
	ctx := context.Background()

	require.NoError(t, r.Respond(ctx, cmd.Text("a")))
	require.NoError(t, r.Respond(ctx, cmd.Text("b")))

	direct, _, followUps := tr.Calls()
	assert.Equal(t, 1, direct)
	assert.Equal(t, 1, followUps)
}

func TestFailedDirectSendKeepsStateFresh(t *testing.T) {
	tr := &cmdtest.Transport{Err: errors.New("network down")}
	r := cmdtest.Interaction(tr).Responder()

	assert.Error(t, r.Reply(context.Background(), cmd.Text("hi")))
	assert.Equal(t, cmd.InteractiveFresh, r.State())
}

func TestNilTransport(t *testing.T) {
	inv := cmd.NewInvocation(cmd.SurfaceInteraction, nil)
	assert.ErrorIs(t, inv.Reply(context.Background(), cmd.Text("x")), cmd.ErrNoTransport)
}

func TestConcurrentRespondUsesDirectResponseOnce(t *testing.T) {
	tr := &cmdtest.Transport{}
	inv := cmdtest.Interaction(tr)
	ctx := context.Background()

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = inv.Responder().Respond(ctx, cmd.Text("hi"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	direct, defers, followUps := tr.Calls()
	assert.Equal(t, 1, direct)
	assert.Equal(t, 0, defers)
	assert.Equal(t, n-1, followUps)
}
