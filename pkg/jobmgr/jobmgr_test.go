package jobmgr_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keshon/nuget-tracker/pkg/jobmgr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAsyncRejectsDuplicates(t *testing.T) {
	jm := jobmgr.NewManager(zerolog.Nop())
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	require.NoError(t, jm.StartAsync(context.Background(), "a", block))
	assert.ErrorIs(t, jm.StartAsync(context.Background(), "a", block), jobmgr.ErrRunning)
	assert.Equal(t, []string{"a"}, jm.List())
	assert.Equal(t, "Running jobs: a", jm.Status())

	require.NoError(t, jm.Stop("a"))
	assert.Empty(t, jm.List())
	assert.ErrorIs(t, jm.Stop("a"), jobmgr.ErrNotRunning)
	assert.Equal(t, "No jobs are running.", jm.Status())
}

func TestFinishedJobIsForgotten(t *testing.T) {
	jm := jobmgr.NewManager(zerolog.Nop())
	done := make(chan struct{})
	require.NoError(t, jm.StartAsync(context.Background(), "once", func(context.Context) error {
		defer close(done)
		return errors.New("fails")
	}))
	<-done
	assert.Eventually(t, func() bool { return len(jm.List()) == 0 }, time.Second, time.Millisecond)
}

func TestEveryRunsImmediatelyAndRepeats(t *testing.T) {
	jm := jobmgr.NewManager(zerolog.Nop())
	var runs atomic.Int32
	require.NoError(t, jm.Every(context.Background(), "tick", 5*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	}))
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	jm.StopAll()
	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}

func TestEveryRejectsBadInterval(t *testing.T) {
	jm := jobmgr.NewManager(zerolog.Nop())
	assert.Error(t, jm.Every(context.Background(), "x", 0, func(context.Context) error { return nil }))
}

func TestParentCancelStopsJob(t *testing.T) {
	jm := jobmgr.NewManager(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, jm.StartAsync(ctx, "child", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel()
	assert.Eventually(t, func() bool { return len(jm.List()) == 0 }, time.Second, time.Millisecond)
}
