// Package nuget is a small client for the public NuGet v3 search and
// registration APIs.
package nuget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/keshon/nuget-tracker/pkg/retrylimit"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	DefaultSearchURL       = "https://azuresearch-usnc.nuget.org/query"
	DefaultRegistrationURL = "https://api.nuget.org/v3/registration5-gz-semver2"
	flatContainerURL       = "https://api.nuget.org/v3-flatcontainer"
	maxBody                = 8 << 20
)

var ErrNotFound = errors.New("package not found")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string   { return fmt.Sprintf("GET %s: status %d", e.URL, e.Code) }
func (e *StatusError) StatusCode() int { return e.Code }

// SearchResult is one hit of a search query.
type SearchResult struct {
	ID             string
	Title          string
	Version        string
	Description    string
	Authors        []string
	IconURL        string
	ProjectURL     string
	TotalDownloads int64
	Verified       bool
}

// Version is a published version with its download count.
type Version struct {
	Version   string
	Downloads int64
	Published time.Time
}

// Package is the full view of one package.
type Package struct {
	SearchResult
	Versions []Version // ascending by semver
}

// Options configures a Client.
type Options struct {
	SearchURL       string
	RegistrationURL string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Retry           *retrylimit.Retrier
	Logger          zerolog.Logger
}

type Client struct {
	http            *http.Client
	searchURL       string
	registrationURL string
	retry           *retrylimit.Retrier
	log             zerolog.Logger
}

func New(opts Options) *Client {
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultSearchURL
	}
	if opts.RegistrationURL == "" {
		opts.RegistrationURL = DefaultRegistrationURL
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	log := opts.Logger.With().Str("component", "nuget").Logger()
	if opts.Retry == nil {
		opts.Retry = retrylimit.New(retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5), retrylimit.DefaultPolicy(), log)
	}
	return &Client{
		http:            opts.HTTPClient,
		searchURL:       strings.TrimRight(opts.SearchURL, "/"),
		registrationURL: strings.TrimRight(opts.RegistrationURL, "/"),
		retry:           opts.Retry,
		log:             log,
	}
}

// Search returns up to take packages matching query, prereleases included.
func (c *Client) Search(ctx context.Context, query string, take int) ([]SearchResult, error) {
	if take <= 0 {
		take = 20
	}
	body, err := c.query(ctx, query, take)
	if err != nil {
		return nil, err
	}
	hits := gjson.GetBytes(body, "data").Array()
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, parseHit(h))
	}
	return out, nil
}

// Exists reports whether a package id is published.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	_, _, err := c.lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get returns the package with per-version downloads and publish dates.
func (c *Client) Get(ctx context.Context, id string) (Package, error) {
	hit, raw, err := c.lookup(ctx, id)
	if err != nil {
		return Package{}, err
	}

	published, err := c.publishDates(ctx, hit.ID)
	if err != nil {
		return Package{}, err
	}

	pkg := Package{SearchResult: hit}
	for _, v := range raw.Get("versions").Array() {
		ver := v.Get("version").String()
		pkg.Versions = append(pkg.Versions, Version{
			Version:   ver,
			Downloads: v.Get("downloads").Int(),
			Published: published[strings.ToLower(ver)],
		})
	}
	sortVersions(pkg.Versions)
	if pkg.IconURL == "" && len(pkg.Versions) > 0 {
		latest := pkg.Versions[len(pkg.Versions)-1].Version
		pkg.IconURL = fmt.Sprintf("%s/%s/%s/icon", flatContainerURL, strings.ToLower(hit.ID), strings.ToLower(latest))
	}
	return pkg, nil
}

func (c *Client) lookup(ctx context.Context, id string) (SearchResult, gjson.Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SearchResult{}, gjson.Result{}, ErrNotFound
	}
	body, err := c.query(ctx, "packageid:"+id, 1)
	if err != nil {
		return SearchResult{}, gjson.Result{}, err
	}
	for _, h := range gjson.GetBytes(body, "data").Array() {
		if strings.EqualFold(h.Get("id").String(), id) {
			return parseHit(h), h, nil
		}
	}
	return SearchResult{}, gjson.Result{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

func (c *Client) query(ctx context.Context, q string, take int) ([]byte, error) {
	v := url.Values{}
	v.Set("q", q)
	v.Set("take", fmt.Sprint(take))
	v.Set("prerelease", "true")
	v.Set("semVerLevel", "2.0.0")
	return c.get(ctx, c.searchURL+"?"+v.Encode())
}

// publishDates maps lower-cased versions to their publish time. Unlisted
// versions and packages missing from the registration are skipped.
func (c *Client) publishDates(ctx context.Context, id string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	index, err := c.get(ctx, fmt.Sprintf("%s/%s/index.json", c.registrationURL, strings.ToLower(id)))
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		c.log.Debug().Str("package", id).Msg("no registration index")
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	for _, page := range gjson.GetBytes(index, "items").Array() {
		items := page.Get("items")
		if !items.Exists() {
			body, err := c.get(ctx, page.Get("@id").String())
			if err != nil {
				return nil, err
			}
			items = gjson.GetBytes(body, "items")
		}
		for _, leaf := range items.Array() {
			entry := leaf.Get("catalogEntry")
			if entry.Get("listed").Exists() && !entry.Get("listed").Bool() {
				continue
			}
			ts, err := time.Parse(time.RFC3339, entry.Get("published").String())
			if err != nil {
				continue
			}
			out[strings.ToLower(entry.Get("version").String())] = ts.UTC()
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := c.retry.Do(ctx, "nuget get", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return retrylimit.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &StatusError{URL: rawURL, Code: resp.StatusCode}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(body) {
			return retrylimit.Permanent(fmt.Errorf("GET %s: invalid JSON", rawURL))
		}
		return nil
	})
	return body, err
}

func parseHit(h gjson.Result) SearchResult {
	r := SearchResult{
		ID:             h.Get("id").String(),
		Title:          h.Get("title").String(),
		Version:        h.Get("version").String(),
		Description:    h.Get("description").String(),
		IconURL:        h.Get("iconUrl").String(),
		ProjectURL:     h.Get("projectUrl").String(),
		TotalDownloads: h.Get("totalDownloads").Int(),
		Verified:       h.Get("verified").Bool(),
	}
	if r.Title == "" {
		r.Title = r.ID
	}
	authors := h.Get("authors")
	if authors.IsArray() {
		for _, a := range authors.Array() {
			r.Authors = append(r.Authors, a.String())
		}
	} else if s := authors.String(); s != "" {
		for _, a := range strings.Split(s, ",") {
			if a = strings.TrimSpace(a); a != "" {
				r.Authors = append(r.Authors, a)
			}
		}
	}
	return r
}

// sortVersions orders by semver; unparsable versions go first in string order.
func sortVersions(vs []Version) {
	parsed := make(map[string]*semver.Version, len(vs))
	for _, v := range vs {
		if sv, err := semver.NewVersion(v.Version); err == nil {
			parsed[v.Version] = sv
		}
	}
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := parsed[vs[i].Version], parsed[vs[j].Version]
		switch {
		case a == nil && b == nil:
			return vs[i].Version < vs[j].Version
		case a == nil:
			return true
		case b == nil:
			return false
		}
		return a.LessThan(b)
	})
}
