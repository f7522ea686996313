package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/ashby"
	"jobscout-engine/internal/scrape/atlassian"
	"jobscout-engine/internal/scrape/eightfold"
	"jobscout-engine/internal/scrape/google"
	"jobscout-engine/internal/scrape/greenhouse"
	"jobscout-engine/internal/scrape/lever"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/uber"
	"jobscout-engine/internal/scrape/workday"
)

// Registry holds the platform adapters. It is built once at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	scrapers   []types.Scraper
	byPlatform map[types.Platform]types.Scraper
}

func NewRegistry() *Registry {
	return &Registry{byPlatform: make(map[types.Platform]types.Scraper)}
}

func (r *Registry) Register(s types.Scraper) {
	r.scrapers = append(r.scrapers, s)
	r.byPlatform[s.Platform()] = s
}

// ScraperForURL runs validators in registration order and returns the first
// adapter that claims the URL, or nil.
func (r *Registry) ScraperForURL(rawURL string) types.Scraper {
	for _, s := range r.scrapers {
		if s.Validate(rawURL) {
			return s
		}
	}
	return nil
}

func (r *Registry) ScraperByPlatform(p types.Platform) types.Scraper {
	return r.byPlatform[p]
}

// Platforms lists the registered platforms in registration order.
func (r *Registry) Platforms() []types.Platform {
	out := make([]types.Platform, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		out = append(out, s.Platform())
	}
	return out
}

// Scrape dispatches to the adapter for the given platform, falling back to
// URL validation when the platform is unset or unknown. No adapter at all
// yields an error result naming the supported platforms.
func (r *Registry) Scrape(ctx context.Context, rawURL string, platform types.Platform, opts types.ScrapeOptions) types.ScraperResult {
	s := r.ScraperByPlatform(platform)
	if s == nil {
		s = r.ScraperForURL(rawURL)
	}
	if s == nil {
		names := make([]string, 0, len(r.scrapers))
		for _, p := range r.Platforms() {
			names = append(names, string(p))
		}
		return types.ErrorResult(types.ErrInvalidURL,
			fmt.Sprintf("no scraper for %q; supported platforms: %s", rawURL, strings.Join(names, ", ")))
	}
	return s.Scrape(ctx, rawURL, opts)
}

// BuildRegistry wires every adapter against one shared HTTP client and one
// shared browser client.
func BuildRegistry(hc *httpclient.Client, br browser.Client, log arbor.ILogger) *Registry {
	r := NewRegistry()
	r.Register(greenhouse.New(hc, log))
	r.Register(lever.New(hc, log))
	r.Register(ashby.New(hc, log))
	r.Register(workday.New(hc, br, log))
	r.Register(eightfold.New(hc, br, log))
	r.Register(uber.New(hc, log))
	r.Register(google.New(hc, log))
	r.Register(atlassian.New(hc, log))
	return r
}
