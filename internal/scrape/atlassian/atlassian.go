package atlassian

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/hydrate"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

// Scraper reads Atlassian's careers endpoint. One listings call returns the
// whole board; most rows carry overview/responsibilities/qualifications
// inline, and only the ones that don't need a per-id details fetch.
type Scraper struct {
	hc  *httpclient.Client
	log arbor.ILogger

	apiBase    string
	hydrateCfg hydrate.Config
}

func New(hc *httpclient.Client, log arbor.ILogger) *Scraper {
	return &Scraper{
		hc:      hc,
		log:     log,
		apiBase: "https://www.atlassian.com",
		hydrateCfg: hydrate.Config{
			InitialBatch: 3,
			MinBatch:     1,
			MaxBatch:     3,
			InitialDelay: 250 * time.Millisecond,
			MinDelay:     100 * time.Millisecond,
			MaxDelay:     3 * time.Second,
		},
	}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformAtlassian }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "atlassian.com")
}

// ExtractIdentifier returns "" — Atlassian has one global board.
func (s *Scraper) ExtractIdentifier(rawURL string) string { return "" }

type listing struct {
	ID               json.Number `json:"id"`
	Title            string      `json:"title"`
	Category         string      `json:"category"`
	Locations        []string    `json:"locations"`
	Overview         string      `json:"overview"`
	Responsibilities string      `json:"responsibilities"`
	Qualifications   string      `json:"qualifications"`
	ApplyURL         string      `json:"applyUrl"`
}

func (l listing) hasInlineContent() bool {
	return strings.TrimSpace(l.Overview) != "" ||
		strings.TrimSpace(l.Responsibilities) != "" ||
		strings.TrimSpace(l.Qualifications) != ""
}

// preFilter narrows the full board to what the configured careers URL would
// show: ?team= matches the category, ?location= any location, ?search= the
// title. The site applies these server-side; we mirror it on the full set.
type preFilter struct {
	team     string
	location string
	search   string
}

func parsePreFilter(rawURL string) preFilter {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return preFilter{}
	}
	q := u.Query()
	return preFilter{
		team:     strings.ToLower(strings.TrimSpace(q.Get("team"))),
		location: strings.ToLower(strings.TrimSpace(q.Get("location"))),
		search:   strings.ToLower(strings.TrimSpace(q.Get("search"))),
	}
}

func (f preFilter) keep(l listing) bool {
	if f.team != "" && strings.ToLower(strings.TrimSpace(l.Category)) != f.team {
		return false
	}
	if f.location != "" {
		found := false
		for _, loc := range l.Locations {
			if strings.Contains(strings.ToLower(loc), f.location) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.search != "" && !strings.Contains(strings.ToLower(l.Title), f.search) {
		return false
	}
	return true
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	all, err := s.fetchListings(ctx)
	if err != nil {
		return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("atlassian listings: %v", err))
	}

	pf := parsePreFilter(rawURL)
	kept := make([]listing, 0, len(all))
	for _, l := range all {
		if l.ID.String() == "" || util.CleanText(l.Title) == "" {
			continue
		}
		if pf.keep(l) {
			kept = append(kept, l)
		}
	}

	jobs := make([]types.ScrapedJob, len(kept))
	openIDs := make([]string, len(kept))
	var needDetail []int
	for i, l := range kept {
		jobs[i] = mapListing(l)
		openIDs[i] = jobs[i].ExternalID
		if !l.hasInlineContent() && !opts.ExistingExternalIDs[jobs[i].ExternalID] {
			needDetail = append(needDetail, i)
		}
	}

	detailFailures := 0
	if len(needDetail) > 0 {
		failed := hydrate.Run(ctx, len(needDetail), s.hydrateCfg, func(ctx context.Context, n int) bool {
			i := needDetail[n]
			det, err := s.fetchDetail(ctx, kept[i].ID.String())
			if err != nil {
				s.log.Debug().Str("id", kept[i].ID.String()).Err(err).Msg("atlassian detail failed")
				return false
			}
			merged := kept[i]
			merged.Overview = det.Overview
			merged.Responsibilities = det.Responsibilities
			merged.Qualifications = det.Qualifications
			jobs[i] = mapListing(merged)
			return true
		})
		detailFailures = len(failed)
	}

	outcome := types.OutcomeSuccess
	if detailFailures > 0 {
		outcome = types.OutcomePartial
	}
	return types.ScraperResult{
		Success:                 outcome == types.OutcomeSuccess,
		Outcome:                 outcome,
		Jobs:                    jobs,
		OpenExternalIDs:         openIDs,
		OpenExternalIDsComplete: true,
	}
}

func (s *Scraper) fetchListings(ctx context.Context) ([]listing, error) {
	res, err := s.hc.Get(ctx, s.apiBase+"/endpoint/careers/listings", httpclient.Options{})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("listings status %d", res.StatusCode))
	}
	var out []listing
	if err := res.JSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scraper) fetchDetail(ctx context.Context, id string) (listing, error) {
	res, err := s.hc.Get(ctx, fmt.Sprintf("%s/endpoint/careers/details/%s", s.apiBase, url.PathEscape(id)), httpclient.Options{})
	if err != nil {
		return listing{}, err
	}
	if !res.OK() {
		return listing{}, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("detail status %d", res.StatusCode))
	}
	var out listing
	if err := res.JSON(&out); err != nil {
		return listing{}, err
	}
	return out, nil
}

func mapListing(l listing) types.ScrapedJob {
	id := l.ID.String()
	loc, locType := util.NormalizeLocation(strings.Join(l.Locations, ", "))

	desc := ""
	format := types.FormatPlain
	var sections []string
	for _, part := range []string{l.Overview, l.Responsibilities, l.Qualifications} {
		if strings.TrimSpace(part) != "" {
			sections = append(sections, strings.TrimSpace(part))
		}
	}
	if len(sections) > 0 {
		desc, format = util.NormalizeDescription(strings.Join(sections, "\n\n"))
	}

	jobURL := strings.TrimSpace(l.ApplyURL)
	if jobURL == "" {
		jobURL = fmt.Sprintf("https://www.atlassian.com/company/careers/details/%s", id)
	}

	return types.ScrapedJob{
		ExternalID:        util.GenerateExternalID(types.PlatformAtlassian, id),
		Title:             util.CleanText(l.Title),
		URL:               jobURL,
		Location:          loc,
		LocationType:      locType,
		Department:        util.CleanText(l.Category),
		Description:       desc,
		DescriptionFormat: format,
	}
}
