// Package app wires storage, the NuGet client, the command dispatcher and
// the tracker together for the bot and the console.
package app

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/keshon/nuget-tracker/internal/commands"
	"github.com/keshon/nuget-tracker/internal/config"
	"github.com/keshon/nuget-tracker/internal/middleware"
	"github.com/keshon/nuget-tracker/internal/nuget"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/internal/tracker"
	"github.com/keshon/nuget-tracker/pkg/cmd"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/keshon/nuget-tracker/pkg/cmd/textengine"
	"github.com/keshon/nuget-tracker/pkg/jobmgr"
	"github.com/rs/zerolog"
)

type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	Store      *storage.Storage
	NuGet      *nuget.Client
	Dispatcher *dispatch.Dispatcher
	Jobs       *jobmgr.Manager
	Tracker    *tracker.Tracker

	latency atomic.Pointer[func() time.Duration]
}

// New opens storage and registers every command module. Extra dispatcher
// options (usually a result renderer) are applied after the defaults.
func New(cfg *config.Config, log zerolog.Logger, opts ...dispatch.Option) (*App, error) {
	store, err := storage.New(cfg.StoragePath, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Store:  store,
		NuGet: nuget.New(nuget.Options{
			SearchURL:       cfg.NugetSearchURL,
			RegistrationURL: cfg.NugetRegistrationURL,
			Timeout:         cfg.NugetTimeout,
			Logger:          log,
		}),
		Jobs: jobmgr.NewManager(log.With().Str("component", "jobs").Logger()),
	}
	a.Tracker = tracker.New(a.NuGet, store, a.Jobs, cfg.TrackerInterval, log)

	defaults := []dispatch.Option{
		dispatch.WithEngine(textengine.New()),
		dispatch.WithLogger(log.With().Str("component", "dispatch").Logger()),
		dispatch.WithResolveTimeout(cfg.ResolveTimeout),
		dispatch.WithMiddleware(
			middleware.WithLogging(log),
			middleware.WithCommandHistory(store, log),
		),
	}
	a.Dispatcher = dispatch.New(cmd.NewRegistry(log), append(defaults, opts...)...)

	err = a.Dispatcher.Register(commands.Blueprints(commands.Deps{
		Store:       store,
		NuGet:       a.NuGet,
		Registry:    a.Dispatcher.Registry(),
		DeveloperID: cfg.DeveloperID,
		Latency:     a.Latency,
		Log:         log,
	})...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return a, nil
}

// SetLatency installs the source ping reports.
func (a *App) SetLatency(fn func() time.Duration) {
	a.latency.Store(&fn)
}

func (a *App) Latency() time.Duration {
	if fn := a.latency.Load(); fn != nil && *fn != nil {
		return (*fn)()
	}
	return 0
}

// Close stops background jobs, waits for async commands and flushes storage.
func (a *App) Close() error {
	a.Jobs.StopAll()
	a.Dispatcher.Wait()
	return errors.Join(a.Store.Flush(), a.Store.Close())
}
