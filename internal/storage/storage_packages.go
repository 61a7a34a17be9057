package storage

import (
	"fmt"
	"sort"
	"time"
)

// AddPackage starts tracking pkg in a guild.
func (s *Storage) AddPackage(guildID string, pkg TrackedPackage) error {
	key := packageKey(pkg.PackageID)
	return s.update(guildID, func(r *Record) error {
		if _, ok := r.Packages[key]; ok {
			return fmt.Errorf("%s: %w", pkg.PackageID, ErrPackageTracked)
		}
		if pkg.AddedAt.IsZero() {
			pkg.AddedAt = time.Now()
		}
		r.Packages[key] = pkg
		return nil
	})
}

// RemovePackage stops tracking a package.
func (s *Storage) RemovePackage(guildID, packageID string) error {
	key := packageKey(packageID)
	return s.update(guildID, func(r *Record) error {
		if _, ok := r.Packages[key]; !ok {
			return fmt.Errorf("%s: %w", packageID, ErrPackageNotTracked)
		}
		delete(r.Packages, key)
		return nil
	})
}

// UpdatePackage replaces the stored data of a tracked package.
func (s *Storage) UpdatePackage(guildID string, pkg TrackedPackage) error {
	key := packageKey(pkg.PackageID)
	return s.update(guildID, func(r *Record) error {
		old, ok := r.Packages[key]
		if !ok {
			return fmt.Errorf("%s: %w", pkg.PackageID, ErrPackageNotTracked)
		}
		pkg.AddedAt, pkg.AddedBy = old.AddedAt, old.AddedBy
		r.Packages[key] = pkg
		return nil
	})
}

// GetPackage returns a tracked package.
func (s *Storage) GetPackage(guildID, packageID string) (TrackedPackage, bool, error) {
	record, err := s.view(guildID)
	if err != nil {
		return TrackedPackage{}, false, err
	}
	pkg, ok := record.Packages[packageKey(packageID)]
	return pkg, ok, nil
}

// ListPackages returns a guild's tracked packages sorted by id.
func (s *Storage) ListPackages(guildID string) ([]TrackedPackage, error) {
	record, err := s.view(guildID)
	if err != nil {
		return nil, err
	}
	out := make([]TrackedPackage, 0, len(record.Packages))
	for _, p := range record.Packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return packageKey(out[i].PackageID) < packageKey(out[j].PackageID) })
	return out, nil
}

// StalePackage identifies a package due for refresh.
type StalePackage struct {
	GuildID   string
	PackageID string
}

// StalePackages lists packages across all guilds last refreshed before cutoff.
func (s *Storage) StalePackages(cutoff time.Time) ([]StalePackage, error) {
	var out []StalePackage
	for _, guildID := range s.GuildIDs() {
		pkgs, err := s.ListPackages(guildID)
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			if p.LastUpdated.Before(cutoff) {
				out = append(out, StalePackage{GuildID: guildID, PackageID: p.PackageID})
			}
		}
	}
	return out, nil
}
