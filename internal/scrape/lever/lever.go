package lever

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

// Scraper reads the public Lever postings API. One request returns every
// open posting with full descriptions, so the adapter never paginates.
type Scraper struct {
	hc  *httpclient.Client
	log arbor.ILogger

	apiBase string
}

func New(hc *httpclient.Client, log arbor.ILogger) *Scraper {
	return &Scraper{hc: hc, log: log, apiBase: "https://api.lever.co"}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformLever }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "lever.co")
}

// ExtractIdentifier pulls the company slug from jobs.lever.co/<slug>/... or
// jobs.eu.lever.co/<slug>.
func (s *Scraper) ExtractIdentifier(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return ""
	}
	return strings.ToLower(segs[0])
}

type posting struct {
	ID         string `json:"id"`
	Text       string `json:"text"` // title
	HostedURL  string `json:"hostedUrl"`
	CreatedAt  int64  `json:"createdAt"` // ms epoch
	Country    string `json:"country"`
	Workplace  string `json:"workplaceType"` // remote | hybrid | on-site
	Categories struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Department string `json:"department"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
	Description      string `json:"description"` // html
	DescriptionPlain string `json:"descriptionPlain"`
	SalaryRange      struct {
		Min      int64  `json:"min"`
		Max      int64  `json:"max"`
		Currency string `json:"currency"`
		Interval string `json:"interval"`
	} `json:"salaryRange"`
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	slug := strings.TrimSpace(opts.BoardToken)
	detected := ""
	if slug == "" {
		slug = s.ExtractIdentifier(rawURL)
		detected = slug
	}
	if slug == "" {
		return types.ErrorResult(types.ErrInvalidURL, fmt.Sprintf("lever: no slug in %q", rawURL))
	}

	endpoint := fmt.Sprintf("%s/v0/postings/%s?mode=json", s.apiBase, url.PathEscape(slug))
	res, err := s.hc.Get(ctx, endpoint, httpclient.Options{})
	if err != nil {
		return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("lever %s: %v", slug, err))
	}
	if res.StatusCode == http.StatusNotFound {
		return types.ErrorResult(types.ErrBoardNotFound, fmt.Sprintf("lever board %s not found", slug))
	}
	if !res.OK() {
		return types.ErrorResult(types.CodeForStatus(res.StatusCode), fmt.Sprintf("lever %s: status %d", slug, res.StatusCode))
	}

	var postings []posting
	if err := res.JSON(&postings); err != nil {
		return types.ErrorResult(types.ErrParse, fmt.Sprintf("lever %s: %v", slug, err))
	}

	jobs := make([]types.ScrapedJob, 0, len(postings))
	openIDs := make([]string, 0, len(postings))
	for _, p := range postings {
		sj, ok := mapPosting(slug, p)
		if !ok {
			continue
		}
		jobs = append(jobs, sj)
		openIDs = append(openIDs, sj.ExternalID)
	}

	return types.ScraperResult{
		Success:                 true,
		Outcome:                 types.OutcomeSuccess,
		Jobs:                    jobs,
		DetectedBoardToken:      detected,
		OpenExternalIDs:         openIDs,
		OpenExternalIDsComplete: true,
	}
}

func mapPosting(slug string, p posting) (types.ScrapedJob, bool) {
	title := util.CleanText(p.Text)
	if p.ID == "" || title == "" || strings.TrimSpace(p.HostedURL) == "" {
		return types.ScrapedJob{}, false
	}

	loc := util.CleanText(p.Categories.Location)
	if loc == "" {
		loc = util.CleanText(p.Country)
	}
	loc, locType := util.NormalizeLocation(loc)
	// workplaceType is authoritative when present
	switch strings.ToLower(strings.TrimSpace(p.Workplace)) {
	case "remote":
		locType = types.LocationRemote
	case "hybrid":
		locType = types.LocationHybrid
	case "onsite", "on-site":
		locType = types.LocationOnsite
	}

	desc := ""
	format := types.FormatPlain
	if strings.TrimSpace(p.Description) != "" {
		desc, format = util.NormalizeDescription(p.Description)
	} else if strings.TrimSpace(p.DescriptionPlain) != "" {
		desc = util.CleanText(p.DescriptionPlain)
	}

	dept := util.CleanText(p.Categories.Team)
	if dept == "" {
		dept = util.CleanText(p.Categories.Department)
	}

	return types.ScrapedJob{
		ExternalID:        util.GenerateExternalID(types.PlatformLever, slug, p.ID),
		Title:             title,
		URL:               strings.TrimSpace(p.HostedURL),
		Location:          loc,
		LocationType:      locType,
		Department:        dept,
		Description:       desc,
		DescriptionFormat: format,
		EmploymentType:    util.ParseEmploymentType(p.Categories.Commitment),
		Salary:            formatSalary(p),
		PostedAt:          util.NormalizePostedDate(p.CreatedAt),
	}, true
}

func formatSalary(p posting) string {
	r := p.SalaryRange
	if r.Min <= 0 && r.Max <= 0 {
		return ""
	}
	out := fmt.Sprintf("%d - %d", r.Min, r.Max)
	if r.Currency != "" {
		out += " " + r.Currency
	}
	if r.Interval != "" {
		out += " / " + strings.ToLower(r.Interval)
	}
	return out
}
