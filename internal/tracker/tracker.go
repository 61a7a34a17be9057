// Package tracker keeps tracked package statistics fresh.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/nuget-tracker/internal/nuget"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/pkg/jobmgr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	jobName     = "tracker-refresh"
	concurrency = 4
)

// Source fetches current package data.
type Source interface {
	Get(ctx context.Context, id string) (nuget.Package, error)
}

// Store is the part of storage the tracker writes to.
type Store interface {
	StalePackages(cutoff time.Time) ([]storage.StalePackage, error)
	UpdatePackage(guildID string, pkg storage.TrackedPackage) error
}

type Tracker struct {
	src      Source
	store    Store
	jobs     *jobmgr.Manager
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func New(src Source, store Store, jobs *jobmgr.Manager, interval time.Duration, log zerolog.Logger) *Tracker {
	return &Tracker{
		src:      src,
		store:    store,
		jobs:     jobs,
		interval: interval,
		log:      log.With().Str("component", "tracker").Logger(),
		now:      time.Now,
	}
}

// Start schedules Refresh. Packages are checked four times per interval so
// none stays stale much longer than the interval itself.
func (t *Tracker) Start(ctx context.Context) error {
	tick := max(t.interval/4, time.Second)
	return t.jobs.Every(ctx, jobName, tick, func(ctx context.Context) error {
		_, err := t.Refresh(ctx)
		return err
	})
}

func (t *Tracker) Stop() error {
	return t.jobs.Stop(jobName)
}

// Refresh updates every package not refreshed within the interval and
// returns how many were updated. Packages that vanished from NuGet are
// left untouched.
func (t *Tracker) Refresh(ctx context.Context) (int, error) {
	now := t.now()
	stale, err := t.store.StalePackages(now.Add(-t.interval))
	if err != nil {
		return 0, fmt.Errorf("list stale packages: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		updated int
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, sp := range stale {
		g.Go(func() error {
			err := t.refreshOne(ctx, sp, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				updated++
			case errors.Is(err, nuget.ErrNotFound):
				t.log.Warn().Str("guild", sp.GuildID).Str("package", sp.PackageID).Msg("package no longer on nuget")
			default:
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	t.log.Info().Int("stale", len(stale)).Int("updated", updated).Msg("refreshed packages")
	return updated, errors.Join(errs...)
}

func (t *Tracker) refreshOne(ctx context.Context, sp storage.StalePackage, now time.Time) error {
	pkg, err := t.src.Get(ctx, sp.PackageID)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", sp.PackageID, err)
	}
	snap := Snapshot(pkg, now)
	snap.PackageID = sp.PackageID
	if err := t.store.UpdatePackage(sp.GuildID, snap); err != nil {
		return fmt.Errorf("update %s in %s: %w", sp.PackageID, sp.GuildID, err)
	}
	return nil
}

// Snapshot converts fetched package data into its stored form.
func Snapshot(pkg nuget.Package, now time.Time) storage.TrackedPackage {
	versions := make([]storage.VersionStats, 0, len(pkg.Versions))
	for _, v := range pkg.Versions {
		versions = append(versions, storage.VersionStats{
			Version:   v.Version,
			Downloads: v.Downloads,
			Published: v.Published,
		})
	}
	return storage.TrackedPackage{
		PackageID:      pkg.ID,
		Name:           pkg.Title,
		Authors:        pkg.Authors,
		Description:    pkg.Description,
		IconURL:        pkg.IconURL,
		ProjectURL:     pkg.ProjectURL,
		TotalDownloads: pkg.TotalDownloads,
		Versions:       versions,
		LastUpdated:    now,
	}
}
