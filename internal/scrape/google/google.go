package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/filter"
	"jobscout-engine/internal/scrape/hydrate"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

const maxPages = 30

// card hrefs look like /jobs/results/123456789-senior-software-engineer
var cardHrefRe = regexp.MustCompile(`/jobs/results/(\d+)-([^/?#]+)`)

// Scraper walks Google's careers search pages. There is no JSON API: listing
// cards are scraped from HTML and details come from each job page, preferring
// the JSON-LD JobPosting block over brittle section selectors. Selectors are
// best effort; a page that stops yielding cards ends pagination.
type Scraper struct {
	hc  *httpclient.Client
	log arbor.ILogger

	hydrateCfg hydrate.Config
}

func New(hc *httpclient.Client, log arbor.ILogger) *Scraper {
	return &Scraper{
		hc:  hc,
		log: log,
		hydrateCfg: hydrate.Config{
			InitialBatch: 3,
			MinBatch:     1,
			MaxBatch:     3,
			InitialDelay: 350 * time.Millisecond,
			MinDelay:     100 * time.Millisecond,
			MaxDelay:     3 * time.Second,
		},
	}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformGoogle }

func (s *Scraper) Validate(rawURL string) bool {
	low := strings.ToLower(rawURL)
	return strings.Contains(low, "careers.google.com") ||
		strings.Contains(low, "google.com/about/careers")
}

// ExtractIdentifier returns "" — Google has one global board.
func (s *Scraper) ExtractIdentifier(rawURL string) string { return "" }

type card struct {
	id       string
	url      string
	title    string
	location string
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	base, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || base.Host == "" {
		return types.ErrorResult(types.ErrInvalidURL, fmt.Sprintf("google: bad url %q", rawURL))
	}
	origin := base.Scheme + "://" + base.Host

	var (
		cards    []card
		seen     = map[string]bool{}
		complete = true
		pageErr  string
	)

	for page := 1; page <= maxPages; page++ {
		pageCards, err := s.fetchListPage(ctx, base, origin, page)
		if err != nil {
			if page == 1 {
				return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("google page 1: %v", err))
			}
			s.log.Warn().Int("page", page).Err(err).Msg("google pagination stopped early")
			complete = false
			pageErr = fmt.Sprintf("page %d: %v", page, err)
			break
		}

		fresh := 0
		for _, c := range pageCards {
			if seen[c.id] {
				continue
			}
			seen[c.id] = true
			cards = append(cards, c)
			fresh++
		}
		// the site repeats the tail page for out-of-range page params
		if len(pageCards) == 0 || fresh == 0 {
			if page == 1 {
				return types.ErrorResult(types.ErrParse, "google: no job cards on first page")
			}
			break
		}
	}

	openIDs := make([]string, len(cards))
	for i, c := range cards {
		openIDs[i] = util.GenerateExternalID(types.PlatformGoogle, c.id)
	}

	// early filter on card title/location saves a detail fetch per drop
	kept := cards
	var early *types.EarlyFilterStats
	if filter.HasEarlyFilters(opts.Filters) {
		kept, early = filterCards(cards, opts.Filters)
	}

	jobs := make([]types.ScrapedJob, len(kept))
	var needDetail []int
	for i, c := range kept {
		jobs[i] = types.ScrapedJob{
			ExternalID: util.GenerateExternalID(types.PlatformGoogle, c.id),
			Title:      c.title,
			URL:        c.url,
		}
		jobs[i].Location, jobs[i].LocationType = util.NormalizeLocation(c.location)
		if !opts.ExistingExternalIDs[jobs[i].ExternalID] {
			needDetail = append(needDetail, i)
		}
	}

	detailFailures := 0
	if len(needDetail) > 0 {
		failed := hydrate.Run(ctx, len(needDetail), s.hydrateCfg, func(ctx context.Context, n int) bool {
			i := needDetail[n]
			return s.hydrateDetail(ctx, &jobs[i])
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
		Error:                   pageErr,
		EarlyFiltered:           early,
		OpenExternalIDs:         openIDs,
		OpenExternalIDsComplete: complete,
	}
}

func (s *Scraper) fetchListPage(ctx context.Context, base *url.URL, origin string, page int) ([]card, error) {
	u := *base
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	res, err := s.hc.Get(ctx, u.String(), httpclient.Options{})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("list status %d", res.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, types.WrapError(types.ErrParse, "parse list html", err)
	}

	var cards []card
	pageSeen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := cardHrefRe.FindStringSubmatch(href)
		if m == nil || pageSeen[m[1]] {
			return
		}
		pageSeen[m[1]] = true

		container := a.Closest("li")
		if container.Length() == 0 {
			container = a.Parent()
		}

		title := util.CleanText(container.Find("h3").First().Text())
		if title == "" {
			title = util.CleanText(a.Text())
		}
		if title == "" {
			title = util.CleanText(strings.ReplaceAll(m[2], "-", " "))
		}

		cards = append(cards, card{
			id:       m[1],
			url:      absoluteJobURL(origin, href),
			title:    title,
			location: cardLocation(container),
		})
	})
	return cards, nil
}

// cardLocation digs a location out of the card container, trying the obvious
// class names before falling back to a "Location:" label in the text.
func cardLocation(container *goquery.Selection) string {
	for _, sel := range []string{"[class*=location]", "[class*=Location]", ".location"} {
		if v := util.CleanText(container.Find(sel).First().Text()); v != "" {
			return strings.TrimPrefix(v, "place") // material icon text node
		}
	}
	return util.ExtractLocationFromLabeledText(container.Text())
}

func absoluteJobURL(origin, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return origin + href
	}
	return origin + "/about/careers/applications/" + href
}

func filterCards(cards []card, f types.JobFilters) ([]card, *types.EarlyFilterStats) {
	stats := &types.EarlyFilterStats{}
	kept := make([]card, 0, len(cards))
	for _, c := range cards {
		switch {
		case !filter.MatchesPreferredCountry(c.location, f.Country):
			stats.Total++
			stats.Country++
		case !filter.MatchesPreferredCity(c.location, f.City):
			stats.Total++
			stats.City++
		case !filter.MatchesTitleKeywords(c.title, f.TitleKeywords):
			stats.Total++
			stats.Title++
		default:
			kept = append(kept, c)
		}
	}
	return kept, stats
}

// jobPosting is the JSON-LD block Google embeds on each job page.
type jobPosting struct {
	Type            json.RawMessage `json:"@type"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DatePosted      string          `json:"datePosted"`
	EmploymentType  json.RawMessage `json:"employmentType"`
	JobLocationType string          `json:"jobLocationType"`
	JobLocation     json.RawMessage `json:"jobLocation"`
}

func (s *Scraper) hydrateDetail(ctx context.Context, job *types.ScrapedJob) bool {
	res, err := s.hc.Get(ctx, job.URL, httpclient.Options{})
	if err != nil || !res.OK() {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return false
	}

	if applyJSONLD(doc, job) {
		return true
	}
	return applySections(doc, job)
}

func applyJSONLD(doc *goquery.Document, job *types.ScrapedJob) bool {
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var jp jobPosting
		if err := json.Unmarshal([]byte(sel.Text()), &jp); err != nil {
			return true
		}
		if !rawContains(jp.Type, "JobPosting") {
			return true
		}

		if strings.TrimSpace(jp.Description) != "" {
			job.Description, job.DescriptionFormat = util.NormalizeDescription(util.DecodeEntities(jp.Description))
		}
		if t := util.CleanText(jp.Title); t != "" {
			job.Title = t
		}
		if job.PostedAt == nil {
			job.PostedAt = util.NormalizePostedDate(jp.DatePosted)
		}
		if et := firstRawString(jp.EmploymentType); et != "" {
			job.EmploymentType = util.ParseEmploymentType(et)
		}
		if job.Location == "" {
			job.Location, job.LocationType = util.NormalizeLocation(ldLocation(jp.JobLocation))
		}
		if strings.EqualFold(jp.JobLocationType, "TELECOMMUTE") {
			job.LocationType = types.LocationRemote
		}

		found = job.Description != ""
		return !found
	})
	return found
}

var sectionNames = []string{
	"about the job",
	"minimum qualifications",
	"preferred qualifications",
	"responsibilities",
}

// applySections is the fallback when a page carries no JSON-LD: stitch the
// known h2/h3 sections into a markdown-ish description.
func applySections(doc *goquery.Document, job *types.ScrapedJob) bool {
	var parts []string
	doc.Find("h2, h3").Each(func(_ int, h *goquery.Selection) {
		heading := util.CleanText(h.Text())
		low := strings.ToLower(heading)
		match := false
		for _, name := range sectionNames {
			if strings.Contains(low, name) {
				match = true
				break
			}
		}
		if !match {
			return
		}
		body := util.CleanText(h.NextUntil("h2, h3").Text())
		if body == "" {
			return
		}
		parts = append(parts, "## "+heading+"\n\n"+body)
	})
	if len(parts) == 0 {
		return false
	}
	job.Description = strings.Join(parts, "\n\n")
	job.DescriptionFormat = types.FormatMarkdown
	return true
}

// rawContains reports whether a JSON-LD value (string or array of strings)
// contains the wanted token.
func rawContains(raw json.RawMessage, want string) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(s, want)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, v := range list {
			if strings.EqualFold(v, want) {
				return true
			}
		}
	}
	return false
}

func firstRawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

type ldAddress struct {
	Address struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
		Country  string `json:"addressCountry"`
	} `json:"address"`
}

func ldLocation(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var one ldAddress
	var many []ldAddress
	if err := json.Unmarshal(raw, &many); err != nil {
		if err := json.Unmarshal(raw, &one); err != nil {
			return ""
		}
		many = []ldAddress{one}
	}
	var parts []string
	for _, l := range many {
		sub := make([]string, 0, 3)
		for _, p := range []string{l.Address.Locality, l.Address.Region, l.Address.Country} {
			if v := util.CleanText(p); v != "" {
				sub = append(sub, v)
			}
		}
		if len(sub) > 0 {
			parts = append(parts, strings.Join(sub, ", "))
		}
	}
	return strings.Join(parts, "; ")
}
