package workday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/filter"
	"jobscout-engine/internal/scrape/hydrate"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

const (
	pageSize     = 20
	listParallel = 2
	maxPages     = 50
)

// Scraper drives Workday's CXS API. Tenants sit behind cookie + CSRF checks,
// so a browser bootstrap primes the session before the listing POSTs; list
// pages run two at a time with a stagger, and each posting needs its own
// detail GET for the description.
type Scraper struct {
	hc  *httpclient.Client
	br  browser.Client
	log arbor.ILogger

	// hostOverride redirects CXS calls in tests
	hostOverride string
	staggerStep  time.Duration
	hydrateCfg   hydrate.Config
}

func New(hc *httpclient.Client, br browser.Client, log arbor.ILogger) *Scraper {
	return &Scraper{
		hc:          hc,
		br:          br,
		log:         log,
		staggerStep: 300 * time.Millisecond,
		hydrateCfg: hydrate.Config{
			InitialBatch: 4,
			MinBatch:     1,
			MaxBatch:     4,
			InitialDelay: 400 * time.Millisecond,
			MinDelay:     100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformWorkday }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), ".myworkdayjobs.com")
}

// ExtractIdentifier returns the board site slug (the last path segment after
// an optional locale segment).
func (s *Scraper) ExtractIdentifier(rawURL string) string {
	b, err := parseBoardURL(rawURL)
	if err != nil {
		return ""
	}
	return b.Site
}

type board struct {
	Scheme string
	Host   string
	Tenant string
	Site   string
	Locale string
}

func parseBoardURL(raw string) (board, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return board{}, errors.New("empty board url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return board{}, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return board{}, fmt.Errorf("missing host in %q", raw)
	}

	parts := strings.Split(u.Host, ".")
	if len(parts) < 3 {
		return board{}, fmt.Errorf("unexpected host %q", u.Host)
	}
	tenant := parts[0]

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return board{}, fmt.Errorf("unexpected path %q", u.Path)
	}

	locale := ""
	if len(segs) >= 2 && looksLikeLocale(segs[0]) {
		locale = normalizeLocale(segs[0])
		segs = segs[1:]
	}

	// job deep links keep the site as their first segment
	site := segs[0]
	if site == "" {
		return board{}, fmt.Errorf("could not derive site from path %q", u.Path)
	}

	return board{Scheme: u.Scheme, Host: u.Host, Tenant: tenant, Site: site, Locale: locale}, nil
}

func looksLikeLocale(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	return isAlpha(s[0:2]) && isAlpha(s[3:5])
}

func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 5 && s[2] == '-' {
		return strings.ToLower(s[0:2]) + "-" + strings.ToUpper(s[3:5])
	}
	return s
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func (b board) origin() string {
	return fmt.Sprintf("%s://%s", b.Scheme, b.Host)
}

func (b board) cxsBase(hostOverride string) string {
	origin := b.origin()
	if hostOverride != "" {
		origin = hostOverride
	}
	return fmt.Sprintf("%s/wday/cxs/%s/%s", origin, b.Tenant, b.Site)
}

type WDRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type WDResponse struct {
	Total       int         `json:"total"`
	JobPostings []WDPosting `json:"jobPostings"`
}

type WDPosting struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

type WDDetailResponse struct {
	JobPostingInfo struct {
		ID                  string `json:"id"`
		Title               string `json:"title"`
		JobDescription      string `json:"jobDescription"`
		Location            string `json:"location"`
		AdditionalLocations string `json:"additionalLocations"`
		TimeType            string `json:"timeType"`
		PostedOn            string `json:"postedOn"`
		StartDate           string `json:"startDate"`
		JobPostingID        string `json:"jobPostingId"`
		ExternalURL         string `json:"externalUrl"`
	} `json:"jobPostingInfo"`
}

// jobPostingID digs the requisition id out of a listing: tenants put it in
// bulletFields, otherwise it is the trailing _JR123 chunk of the path.
func (p WDPosting) jobPostingID() string {
	for _, f := range p.BulletFields {
		if v := strings.TrimSpace(f); v != "" {
			return v
		}
	}
	path := strings.TrimSpace(p.ExternalPath)
	if i := strings.LastIndex(path, "_"); i >= 0 && i+1 < len(path) {
		return path[i+1:]
	}
	if i := strings.LastIndex(path, "/"); i >= 0 && i+1 < len(path) {
		return path[i+1:]
	}
	return path
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	b, err := parseBoardURL(rawURL)
	if err != nil {
		return types.ErrorResult(types.ErrInvalidURL, fmt.Sprintf("workday: %v", err))
	}
	detected := ""
	if strings.TrimSpace(opts.BoardToken) != "" {
		b.Site = strings.TrimSpace(opts.BoardToken)
	} else {
		detected = b.Site
	}

	headers := s.sessionHeaders(ctx, rawURL, b)

	first, err := s.fetchListPage(ctx, b, headers, 0)
	if err != nil {
		code := types.CodeOf(err)
		if code == types.ErrAuthRequired && headers["X-Calypso-Csrf-Token"] == "" {
			code = types.ErrCSRF
		}
		return types.ErrorResult(code, fmt.Sprintf("workday %s/%s: %v", b.Tenant, b.Site, err))
	}

	pageCount := (first.Total + pageSize - 1) / pageSize
	if pageCount > maxPages {
		pageCount = maxPages
	}

	pages := make([]*WDResponse, pageCount)
	if pageCount > 0 {
		pages[0] = first
	}
	var failedPages int32

	if pageCount > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(listParallel)
		for i := 1; i < pageCount; i++ {
			i := i
			g.Go(func() error {
				// linear stagger with jitter keeps the tenant happy
				delay := time.Duration(i-1)*s.staggerStep + time.Duration(rand.Int63n(int64(s.staggerStep)+1))
				select {
				case <-gctx.Done():
					atomic.AddInt32(&failedPages, 1)
					return nil
				case <-time.After(delay):
				}
				page, err := s.fetchListPage(gctx, b, headers, i*pageSize)
				if err != nil {
					s.log.Warn().Int("offset", i*pageSize).Err(err).Msg("workday list page failed")
					atomic.AddInt32(&failedPages, 1)
					return nil
				}
				pages[i] = page
				return nil
			})
		}
		_ = g.Wait()
	}

	var listings []WDPosting
	for _, p := range pages {
		if p != nil {
			listings = append(listings, p.JobPostings...)
		}
	}
	complete := atomic.LoadInt32(&failedPages) == 0

	openIDs := make([]string, 0, len(listings))
	for _, l := range listings {
		openIDs = append(openIDs, util.GenerateExternalID(types.PlatformWorkday, b.Site, l.jobPostingID()))
	}

	kept := listings
	var early *types.EarlyFilterStats
	if filter.HasEarlyFilters(opts.Filters) {
		kept, early = filterListings(listings, opts.Filters)
	}

	type slot struct {
		job types.ScrapedJob
		ok  bool
	}
	slots := make([]slot, len(kept))
	var needDetail []int
	for i, l := range kept {
		sj := listingJob(b, l)
		if opts.ExistingExternalIDs[sj.ExternalID] {
			slots[i] = slot{job: sj, ok: true}
			continue
		}
		slots[i] = slot{job: sj}
		needDetail = append(needDetail, i)
	}

	detailFailures := 0
	if len(needDetail) > 0 {
		failed := hydrate.Run(ctx, len(needDetail), s.hydrateCfg, func(ctx context.Context, n int) bool {
			i := needDetail[n]
			det, err := s.fetchDetail(ctx, b, headers, kept[i], slots[i].job)
			if err != nil {
				s.log.Debug().Str("path", kept[i].ExternalPath).Err(err).Msg("workday detail failed")
				return false
			}
			slots[i].job = det
			slots[i].ok = true
			return true
		})
		detailFailures = len(failed)
	}

	// details that never resolved drop out; the listing alone has no
	// description and workday postings without one are not worth keeping
	jobs := make([]types.ScrapedJob, 0, len(slots))
	for _, sl := range slots {
		if sl.ok {
			jobs = append(jobs, sl.job)
		}
	}

	outcome := types.OutcomeSuccess
	if !complete || detailFailures > 0 {
		outcome = types.OutcomePartial
	}
	return types.ScraperResult{
		Success:                 outcome == types.OutcomeSuccess,
		Outcome:                 outcome,
		Jobs:                    jobs,
		DetectedBoardToken:      detected,
		EarlyFiltered:           early,
		OpenExternalIDs:         openIDs,
		OpenExternalIDsComplete: complete,
	}
}

// sessionHeaders bootstraps the tenant session once per scrape. A failed
// bootstrap is not fatal: many tenants accept anonymous CXS reads.
func (s *Scraper) sessionHeaders(ctx context.Context, rawURL string, b board) map[string]string {
	headers := map[string]string{
		"Accept":          "application/json",
		"Origin":          b.origin(),
		"Referer":         strings.TrimRight(rawURL, "/"),
		"Accept-Language": firstNonEmpty(b.Locale, "en-US"),
	}
	if s.br == nil {
		return headers
	}
	sess, err := s.br.Bootstrap(ctx, rawURL)
	if err != nil || sess == nil {
		s.log.Warn().Str("tenant", b.Tenant).Err(err).Msg("workday bootstrap failed, trying anonymous")
		return headers
	}
	if ck := sess.CookieHeader(); ck != "" {
		headers["Cookie"] = ck
	}
	if sess.CSRFToken != "" {
		headers["X-Calypso-Csrf-Token"] = sess.CSRFToken
	}
	return headers
}

func (s *Scraper) fetchListPage(ctx context.Context, b board, headers map[string]string, offset int) (*WDResponse, error) {
	payload, err := json.Marshal(WDRequest{
		AppliedFacets: map[string]any{},
		Limit:         pageSize,
		Offset:        offset,
		SearchText:    "",
	})
	if err != nil {
		return nil, err
	}

	endpoint := b.cxsBase(s.hostOverride) + "/jobs"
	if b.Locale != "" {
		endpoint += "?locale=" + url.QueryEscape(b.Locale)
	}
	res, err := s.hc.Post(ctx, endpoint, payload, httpclient.Options{Headers: headers})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("list status %d", res.StatusCode))
	}

	var body WDResponse
	if err := res.JSON(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (s *Scraper) fetchDetail(ctx context.Context, b board, headers map[string]string, l WDPosting, base types.ScrapedJob) (types.ScrapedJob, error) {
	path := strings.TrimSpace(l.ExternalPath)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	res, err := s.hc.Get(ctx, b.cxsBase(s.hostOverride)+path, httpclient.Options{Headers: headers})
	if err != nil {
		return base, err
	}
	if !res.OK() {
		return base, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("detail status %d", res.StatusCode))
	}

	var body WDDetailResponse
	if err := res.JSON(&body); err != nil {
		return base, err
	}
	info := body.JobPostingInfo

	if strings.TrimSpace(info.JobDescription) != "" {
		base.Description, base.DescriptionFormat = util.NormalizeDescription(info.JobDescription)
	}
	if t := util.CleanText(info.Title); t != "" {
		base.Title = t
	}
	loc := strings.TrimSpace(info.Location)
	if info.AdditionalLocations != "" {
		loc = strings.TrimSpace(loc + ", " + info.AdditionalLocations)
	}
	if loc != "" {
		base.Location, base.LocationType = util.NormalizeLocation(loc)
	}
	base.EmploymentType = util.ParseEmploymentType(info.TimeType)
	if base.PostedAt == nil {
		base.PostedAt = util.NormalizePostedDate(firstNonEmpty(info.StartDate, info.PostedOn))
	}
	if u := strings.TrimSpace(info.ExternalURL); u != "" {
		base.URL = u
	}
	return base, nil
}

// listingJob builds the pre-detail record with the human-facing posting URL.
func listingJob(b board, l WDPosting) types.ScrapedJob {
	path := strings.TrimSpace(l.ExternalPath)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	jobURL := b.origin()
	if b.Locale != "" {
		jobURL += "/" + b.Locale
	}
	jobURL += "/" + b.Site + path
	loc, locType := util.NormalizeLocation(l.LocationsText)
	return types.ScrapedJob{
		ExternalID:   util.GenerateExternalID(types.PlatformWorkday, b.Site, l.jobPostingID()),
		Title:        util.CleanText(l.Title),
		URL:          jobURL,
		Location:     loc,
		LocationType: locType,
		PostedAt:     util.NormalizePostedDate(l.PostedOn),
	}
}

func filterListings(listings []WDPosting, f types.JobFilters) ([]WDPosting, *types.EarlyFilterStats) {
	stats := &types.EarlyFilterStats{}
	kept := make([]WDPosting, 0, len(listings))
	for _, l := range listings {
		loc := util.CleanText(l.LocationsText)
		title := util.CleanText(l.Title)
		switch {
		case !filter.MatchesPreferredCountry(loc, f.Country):
			stats.Total++
			stats.Country++
		case !filter.MatchesPreferredCity(loc, f.City):
			stats.Total++
			stats.City++
		case !filter.MatchesTitleKeywords(title, f.TitleKeywords):
			stats.Total++
			stats.Title++
		default:
			kept = append(kept, l)
		}
	}
	return kept, stats
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
