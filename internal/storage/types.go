package storage

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
)

type CommandHistory struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Surface   string    `json:"surface"`
	Result    string    `json:"result"`
	Datetime  time.Time `json:"datetime"`
}

// VersionStats is the download count of one published package version.
type VersionStats struct {
	Version   string    `json:"version"`
	Downloads int64     `json:"downloads"`
	Published time.Time `json:"published"`
}

// TrackedPackage is a NuGet package followed by a guild.
type TrackedPackage struct {
	PackageID      string         `json:"package_id"`
	Name           string         `json:"name"`
	Authors        []string       `json:"authors"`
	Description    string         `json:"description"`
	IconURL        string         `json:"icon_url"`
	ProjectURL     string         `json:"project_url"`
	TotalDownloads int64          `json:"total_downloads"`
	Versions       []VersionStats `json:"versions"`
	AddedBy        string         `json:"added_by"`
	AddedAt        time.Time      `json:"added_at"`
	LastUpdated    time.Time      `json:"last_updated"`
}

type Record struct {
	CommandsHistory []CommandHistory          `json:"commands_history"`
	ModulesDisabled []string                  `json:"modules_disabled"`
	Packages        map[string]TrackedPackage `json:"packages"` // key = lower-cased package id
}

// AvgTotalDownloads is the mean number of downloads per version.
func (p TrackedPackage) AvgTotalDownloads() int64 {
	if len(p.Versions) == 0 {
		return 0
	}
	var sum int64
	for _, v := range p.Versions {
		sum += v.Downloads
	}
	return sum / int64(len(p.Versions))
}

// CurrentVersion returns the highest semantic version. Versions that do not
// parse are compared as plain strings after every valid one.
func (p TrackedPackage) CurrentVersion() (VersionStats, bool) {
	var (
		best    VersionStats
		bestVer *semver.Version
		found   bool
	)
	for _, v := range p.Versions {
		parsed, err := semver.NewVersion(v.Version)
		switch {
		case err != nil:
			if !found {
				best, found = v, true
			}
		case bestVer == nil || parsed.GreaterThan(bestVer):
			best, bestVer, found = v, parsed, true
		}
	}
	return best, found
}

// MostDownloadedVersion returns the version with the most downloads.
func (p TrackedPackage) MostDownloadedVersion() (VersionStats, bool) {
	if len(p.Versions) == 0 {
		return VersionStats{}, false
	}
	best := p.Versions[0]
	for _, v := range p.Versions[1:] {
		if v.Downloads > best.Downloads {
			best = v
		}
	}
	return best, true
}

// VersionsBetween returns the versions published inside [from, to], oldest
// first. A nil bound is open.
func (p TrackedPackage) VersionsBetween(from, to *time.Time) []VersionStats {
	out := make([]VersionStats, 0, len(p.Versions))
	for _, v := range p.Versions {
		if from != nil && v.Published.Before(*from) {
			continue
		}
		if to != nil && v.Published.After(*to) {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Published.Before(out[j].Published) })
	return out
}
