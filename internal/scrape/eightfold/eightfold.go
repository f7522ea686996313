package eightfold

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
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
	pageSize     = 10
	listParallel = 2
	maxPages     = 100
)

// domainJSONRe catches the pcsx domain embedded in careers-page config blobs.
var domainJSONRe = regexp.MustCompile(`"domain"\s*:\s*"([^"]+)"`)

// Scraper talks to Eightfold's PCSX API. Everything hangs off the tenant
// "domain" parameter, which rarely appears in the board URL itself; the
// scraper digs it out of the URL, the browser session, the job_cart config,
// or the page HTML, in that order.
type Scraper struct {
	hc  *httpclient.Client
	br  browser.Client
	log arbor.ILogger

	staggerStep time.Duration
	hydrateCfg  hydrate.Config
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

func (s *Scraper) Platform() types.Platform { return types.PlatformEightfold }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "eightfold.ai")
}

// ExtractIdentifier returns the pcsx domain when the board URL carries it as
// a query parameter.
func (s *Scraper) ExtractIdentifier(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(u.Query().Get("domain")))
}

type searchResponse struct {
	Count     int        `json:"count"`
	Positions []position `json:"positions"`
}

type position struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	Location     string      `json:"location"`
	Locations    []string    `json:"locations"`
	Department   string      `json:"department"`
	TUpdate      json.Number `json:"t_update"`
	TCreate      json.Number `json:"t_create"`
	CanonicalURL string      `json:"canonicalPositionUrl"`
}

type positionDetail struct {
	ID                 json.Number `json:"id"`
	Name               string      `json:"name"`
	JobDescription     string      `json:"job_description"`
	Location           string      `json:"location"`
	Locations          []string    `json:"locations"`
	Department         string      `json:"department"`
	WorkLocationOption string      `json:"work_location_option"`
	CanonicalURL       string      `json:"canonicalPositionUrl"`
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	origin, err := originOf(rawURL)
	if err != nil {
		return types.ErrorResult(types.ErrInvalidURL, fmt.Sprintf("eightfold: %v", err))
	}

	headers := map[string]string{"Accept": "application/json"}
	domain := strings.ToLower(strings.TrimSpace(opts.BoardToken))
	detected := ""
	if domain == "" {
		domain = s.discoverDomain(ctx, rawURL, origin, headers)
		detected = domain
	}
	if domain == "" {
		return types.ErrorResult(types.ErrParse, "eightfold: could not determine pcsx domain")
	}

	first, err := s.fetchSearchPage(ctx, origin, domain, headers, 0)
	if err != nil {
		return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("eightfold %s: %v", domain, err))
	}

	pageCount := (first.Count + pageSize - 1) / pageSize
	complete := true
	if pageCount > maxPages {
		pageCount = maxPages
		complete = false
	}

	pages := make([]*searchResponse, pageCount)
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
				delay := time.Duration(i-1)*s.staggerStep + time.Duration(rand.Int63n(int64(s.staggerStep)+1))
				select {
				case <-gctx.Done():
					atomic.AddInt32(&failedPages, 1)
					return nil
				case <-time.After(delay):
				}
				page, err := s.fetchSearchPage(gctx, origin, domain, headers, i*pageSize)
				if err != nil {
					s.log.Warn().Int("start", i*pageSize).Err(err).Msg("eightfold search page failed")
					atomic.AddInt32(&failedPages, 1)
					return nil
				}
				pages[i] = page
				return nil
			})
		}
		_ = g.Wait()
	}

	var listings []position
	for _, p := range pages {
		if p != nil {
			listings = append(listings, p.Positions...)
		}
	}
	if atomic.LoadInt32(&failedPages) > 0 {
		complete = false
	}

	openIDs := make([]string, 0, len(listings))
	for _, p := range listings {
		openIDs = append(openIDs, util.GenerateExternalID(types.PlatformEightfold, domain, p.ID.String()))
	}

	kept := listings
	var early *types.EarlyFilterStats
	if filter.HasEarlyFilters(opts.Filters) {
		kept, early = filterPositions(listings, opts.Filters)
	}

	jobs := make([]types.ScrapedJob, len(kept))
	var needDetail []int
	for i, p := range kept {
		jobs[i] = mapPosition(origin, domain, p)
		if opts.ExistingExternalIDs[jobs[i].ExternalID] {
			continue
		}
		needDetail = append(needDetail, i)
	}

	detailFailures := 0
	if len(needDetail) > 0 {
		failed := hydrate.Run(ctx, len(needDetail), s.hydrateCfg, func(ctx context.Context, n int) bool {
			i := needDetail[n]
			det, err := s.fetchDetail(ctx, origin, domain, headers, kept[i].ID.String())
			if err != nil {
				s.log.Debug().Str("position", kept[i].ID.String()).Err(err).Msg("eightfold detail failed")
				return false
			}
			applyDetail(&jobs[i], det)
			return true
		})
		detailFailures = len(failed)
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

// discoverDomain works down the ladder: URL query, browser session, job_cart
// config, raw page HTML. Session cookies, when a bootstrap happens, ride
// along for the API calls.
func (s *Scraper) discoverDomain(ctx context.Context, rawURL, origin string, headers map[string]string) string {
	if d := s.ExtractIdentifier(rawURL); d != "" {
		return d
	}

	if s.br != nil {
		sess, err := s.br.Bootstrap(ctx, rawURL)
		if err != nil {
			s.log.Warn().Err(err).Msg("eightfold bootstrap failed")
		} else if sess != nil {
			if ck := sess.CookieHeader(); ck != "" {
				headers["Cookie"] = ck
			}
			if d := strings.ToLower(strings.TrimSpace(sess.Domain)); d != "" {
				return d
			}
		}
	}

	if d := s.domainFromJobCart(ctx, origin, headers); d != "" {
		return d
	}
	return s.domainFromHTML(ctx, rawURL, headers)
}

func (s *Scraper) domainFromJobCart(ctx context.Context, origin string, headers map[string]string) string {
	res, err := s.hc.Get(ctx, origin+"/api/apply/v2/job_cart", httpclient.Options{Headers: headers})
	if err != nil || !res.OK() {
		return ""
	}
	var cart struct {
		Domain string `json:"domain"`
	}
	if err := res.JSON(&cart); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(cart.Domain))
}

func (s *Scraper) domainFromHTML(ctx context.Context, rawURL string, headers map[string]string) string {
	res, err := s.hc.Get(ctx, rawURL, httpclient.Options{Headers: headers})
	if err != nil || !res.OK() {
		return ""
	}
	if m := domainJSONRe.FindStringSubmatch(res.Text()); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return ""
}

func (s *Scraper) fetchSearchPage(ctx context.Context, origin, domain string, headers map[string]string, start int) (*searchResponse, error) {
	endpoint := fmt.Sprintf("%s/api/pcsx/search?domain=%s&start=%d&sort_by=timestamp",
		origin, url.QueryEscape(domain), start)
	res, err := s.hc.Get(ctx, endpoint, httpclient.Options{Headers: headers})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("search status %d", res.StatusCode))
	}
	var body searchResponse
	if err := res.JSON(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (s *Scraper) fetchDetail(ctx context.Context, origin, domain string, headers map[string]string, id string) (*positionDetail, error) {
	endpoint := fmt.Sprintf("%s/api/pcsx/position_details?position_id=%s&domain=%s",
		origin, url.QueryEscape(id), url.QueryEscape(domain))
	res, err := s.hc.Get(ctx, endpoint, httpclient.Options{Headers: headers})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("detail status %d", res.StatusCode))
	}
	var body positionDetail
	if err := res.JSON(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func mapPosition(origin, domain string, p position) types.ScrapedJob {
	id := p.ID.String()
	jobURL := strings.TrimSpace(p.CanonicalURL)
	if jobURL == "" {
		jobURL = fmt.Sprintf("%s/careers/job/%s?domain=%s", origin, id, url.QueryEscape(domain))
	}
	loc, locType := util.NormalizeLocation(positionLocation(p.Location, p.Locations))
	return types.ScrapedJob{
		ExternalID:   util.GenerateExternalID(types.PlatformEightfold, domain, id),
		Title:        util.CleanText(p.Name),
		URL:          jobURL,
		Location:     loc,
		LocationType: locType,
		Department:   util.CleanText(p.Department),
		PostedAt:     util.NormalizePostedDate(firstNumber(p.TUpdate, p.TCreate)),
	}
}

func applyDetail(job *types.ScrapedJob, d *positionDetail) {
	if strings.TrimSpace(d.JobDescription) != "" {
		job.Description, job.DescriptionFormat = util.NormalizeDescription(d.JobDescription)
	}
	if t := util.CleanText(d.Name); t != "" {
		job.Title = t
	}
	if loc := positionLocation(d.Location, d.Locations); loc != "" {
		job.Location, job.LocationType = util.NormalizeLocation(loc)
	}
	switch strings.ToLower(strings.TrimSpace(d.WorkLocationOption)) {
	case "remote":
		job.LocationType = types.LocationRemote
	case "hybrid":
		job.LocationType = types.LocationHybrid
	case "onsite", "on-site":
		job.LocationType = types.LocationOnsite
	}
	if dep := util.CleanText(d.Department); dep != "" {
		job.Department = dep
	}
	if u := strings.TrimSpace(d.CanonicalURL); u != "" {
		job.URL = u
	}
}

func positionLocation(primary string, all []string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return strings.Join(all, ", ")
}

func firstNumber(vals ...json.Number) any {
	for _, v := range vals {
		if strings.TrimSpace(v.String()) != "" {
			return v
		}
	}
	return nil
}

func filterPositions(listings []position, f types.JobFilters) ([]position, *types.EarlyFilterStats) {
	stats := &types.EarlyFilterStats{}
	kept := make([]position, 0, len(listings))
	for _, p := range listings {
		loc := util.CleanText(positionLocation(p.Location, p.Locations))
		title := util.CleanText(p.Name)
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
			kept = append(kept, p)
		}
	}
	return kept, stats
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
