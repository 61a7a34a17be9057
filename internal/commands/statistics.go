package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/nuget-tracker/internal/preconditions"
	"github.com/keshon/nuget-tracker/internal/storage"
	"github.com/keshon/nuget-tracker/pkg/cmd"
)

const maxEmbedFields = 25

// Statistics reports download numbers of tracked packages.
type Statistics struct {
	cmd.Base
	deps Deps
}

func statisticsBlueprint(d Deps) *cmd.Blueprint {
	return cmd.Define(func() *Statistics { return &Statistics{deps: d} }, func(m *cmd.ModuleBuilder[*Statistics]) {
		m.Group("statistics").
			Summary("Download statistics of tracked packages").
			Require(
				preconditions.RequireGuild(),
				preconditions.RequireModuleEnabled(d.Store),
			)
		m.Command("downloads", (*Statistics).Downloads,
			cmd.Summary("Show downloads of one or all tracked packages"),
			cmd.Param[string]("package_id").Summary("Tracked package id"),
			cmd.Param[*time.Time]("from").Summary("Only versions published on or after this date"),
			cmd.Param[*time.Time]("to").Summary("Only versions published on or before this date"),
		)
	})
}

func (s *Statistics) Downloads(ctx context.Context, args cmd.Args) error {
	if err := s.Defer(ctx); err != nil {
		return err
	}
	inv := s.Invocation()
	from, _ := cmd.Arg[*time.Time](args, "from")
	to, _ := cmd.Arg[*time.Time](args, "to")
	if from != nil && to != nil && from.After(*to) {
		return s.Reply(ctx, errorEmbed("Invalid range", "`from` must not be after `to`."))
	}

	var pkgs []storage.TrackedPackage
	if id, _ := cmd.Arg[string](args, "package_id"); strings.TrimSpace(id) != "" {
		pkg, ok, err := s.deps.Store.GetPackage(inv.GuildID, id)
		if err != nil {
			return err
		}
		if ok {
			pkgs = append(pkgs, pkg)
		}
	} else {
		all, err := s.deps.Store.ListPackages(inv.GuildID)
		if err != nil {
			return err
		}
		pkgs = all
	}
	if len(pkgs) == 0 {
		return s.Reply(ctx, errorEmbed("No packages found", "There are currently no packages configured yet to track!"))
	}

	now := s.deps.now()
	embed := &cmd.Embed{Color: cmd.ColorPrimary, Footer: window(from, to)}
	if len(pkgs) == 1 {
		embed.Author = byline(pkgs[0])
		embed.ThumbnailURL = pkgs[0].IconURL
		embed.Description = summary(pkgs[0], now, "")
	} else {
		embed.Title = "Tracked packages"
		for _, p := range pkgs[:min(len(pkgs), maxEmbedFields)] {
			embed.Fields = append(embed.Fields, cmd.EmbedField{Name: byline(p), Value: summary(p, now, "> ")})
		}
	}

	report, err := versionReport(pkgs, from, to)
	if err != nil {
		return err
	}
	return s.Reply(ctx, cmd.Message{
		Embed: embed,
		Files: []cmd.File{{Name: "downloads.csv", ContentType: "text/csv", Reader: report}},
	})
}

func summary(p storage.TrackedPackage, now time.Time, prefix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sTotal downloads: %d\n", prefix, p.TotalDownloads)
	if cur, ok := p.CurrentVersion(); ok {
		fmt.Fprintf(&b, "%sCurrent version: %s - %d\n", prefix, cur.Version, cur.Downloads)
	}
	if top, ok := p.MostDownloadedVersion(); ok {
		fmt.Fprintf(&b, "%sMost downloaded version: %s - %d\n", prefix, top.Version, top.Downloads)
	}
	fmt.Fprintf(&b, "%sAverage per version: %d\n", prefix, p.AvgTotalDownloads())
	fmt.Fprintf(&b, "%sDownloads per day: %d", prefix, perDay(p, now))
	return b.String()
}

// perDay spreads total downloads over the days since the first publish.
func perDay(p storage.TrackedPackage, now time.Time) int64 {
	var first time.Time
	for _, v := range p.Versions {
		if !v.Published.IsZero() && (first.IsZero() || v.Published.Before(first)) {
			first = v.Published
		}
	}
	if first.IsZero() {
		return 0
	}
	days := math.Ceil(now.Sub(first).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return p.TotalDownloads / int64(days)
}

func window(from, to *time.Time) string {
	switch {
	case from != nil && to != nil:
		return fmt.Sprintf("Versions published %s to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	case from != nil:
		return "Versions published since " + from.Format(time.DateOnly)
	case to != nil:
		return "Versions published until " + to.Format(time.DateOnly)
	}
	return ""
}

func versionReport(pkgs []storage.TrackedPackage, from, to *time.Time) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"package", "version", "published", "downloads"})
	for _, p := range pkgs {
		for _, v := range p.VersionsBetween(from, to) {
			published := ""
			if !v.Published.IsZero() {
				published = v.Published.Format(time.DateOnly)
			}
			_ = w.Write([]string{p.PackageID, v.Version, published, strconv.FormatInt(v.Downloads, 10)})
		}
	}
	w.Flush()
	return &buf, w.Error()
}
