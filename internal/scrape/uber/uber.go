package uber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

const (
	pageSize = 100
	// hard stop so a lying totalResults can never spin us forever
	maxPages = 50
)

// Scraper walks Uber's careers search API page by page. The listing rows
// already carry full descriptions, so there is no detail phase; the cost is
// that the board is huge and pagination must be polite (500ms between pages).
type Scraper struct {
	hc  *httpclient.Client
	log arbor.ILogger

	apiBase   string
	pageDelay time.Duration
}

func New(hc *httpclient.Client, log arbor.ILogger) *Scraper {
	return &Scraper{
		hc:        hc,
		log:       log,
		apiBase:   "https://www.uber.com",
		pageDelay: 500 * time.Millisecond,
	}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformUber }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "uber.com")
}

// ExtractIdentifier returns "" — Uber has one global board, no per-company
// token.
func (s *Scraper) ExtractIdentifier(rawURL string) string { return "" }

type searchRequest struct {
	Params searchParams `json:"params"`
	Limit  int          `json:"limit"`
	Page   int          `json:"page"`
}

type searchParams struct {
	Location           []string `json:"location"`
	Department         []string `json:"department"`
	ProgramAndPlatform []string `json:"programAndPlatform"`
	Team               []string `json:"team"`
}

type searchResponse struct {
	Status string `json:"status"`
	Data   struct {
		Results      []searchResult `json:"results"`
		TotalResults struct {
			Low json.Number `json:"low"`
		} `json:"totalResults"`
	} `json:"data"`
}

type searchResult struct {
	ID             json.Number `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	DepartmentName string      `json:"departmentName"`
	TimeType       string      `json:"timeType"`
	CreationDate   string      `json:"creationDate"`
	UpdatedDate    string      `json:"updatedDate"`
	Location       location    `json:"location"`
	AllLocations   []location  `json:"allLocations"`
}

type location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

func (l location) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.Region, l.Country} {
		if v := util.CleanText(p); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	var (
		jobs     []types.ScrapedJob
		openIDs  []string
		total    = -1
		complete = true
		fetchErr string
	)

	for page := 0; ; page++ {
		if page >= maxPages {
			complete = false
			break
		}

		results, totalLow, err := s.fetchPage(ctx, page)
		if err != nil {
			if page == 0 {
				return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("uber page 0: %v", err))
			}
			s.log.Warn().Int("page", page).Err(err).Msg("uber pagination stopped early")
			complete = false
			fetchErr = fmt.Sprintf("page %d: %v", page, err)
			break
		}
		if totalLow >= 0 {
			total = totalLow
		}
		if len(results) == 0 {
			break
		}

		for _, r := range results {
			sj, ok := mapResult(r)
			if !ok {
				continue
			}
			jobs = append(jobs, sj)
			openIDs = append(openIDs, sj.ExternalID)
		}

		if len(results) < pageSize {
			break
		}
		if total >= 0 && (page+1)*pageSize >= total {
			break
		}

		select {
		case <-ctx.Done():
			complete = false
			fetchErr = ctx.Err().Error()
		case <-time.After(s.pageDelay):
		}
		if !complete {
			break
		}
	}

	outcome := types.OutcomeSuccess
	if !complete {
		outcome = types.OutcomePartial
	}
	return types.ScraperResult{
		Success:                 outcome == types.OutcomeSuccess,
		Outcome:                 outcome,
		Jobs:                    jobs,
		Error:                   fetchErr,
		OpenExternalIDs:         openIDs,
		OpenExternalIDsComplete: complete,
	}
}

func (s *Scraper) fetchPage(ctx context.Context, page int) ([]searchResult, int, error) {
	payload, err := json.Marshal(searchRequest{
		Params: searchParams{
			Location:           []string{},
			Department:         []string{},
			ProgramAndPlatform: []string{},
			Team:               []string{},
		},
		Limit: pageSize,
		Page:  page,
	})
	if err != nil {
		return nil, -1, err
	}

	endpoint := s.apiBase + "/api/loadSearchJobsResults?localeCode=en"
	res, err := s.hc.Post(ctx, endpoint, payload, httpclient.Options{
		Headers: map[string]string{"X-Csrf-Token": "x"},
	})
	if err != nil {
		return nil, -1, err
	}
	if !res.OK() {
		return nil, -1, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("search status %d", res.StatusCode))
	}

	var body searchResponse
	if err := res.JSON(&body); err != nil {
		return nil, -1, err
	}

	total := -1
	if n, err := body.Data.TotalResults.Low.Int64(); err == nil {
		total = int(n)
	}
	return body.Data.Results, total, nil
}

func mapResult(r searchResult) (types.ScrapedJob, bool) {
	id := r.ID.String()
	title := util.CleanText(r.Title)
	if id == "" || title == "" {
		return types.ScrapedJob{}, false
	}

	locParts := []string{r.Location.String()}
	for _, l := range r.AllLocations {
		if v := l.String(); v != "" {
			locParts = append(locParts, v)
		}
	}
	loc, locType := util.NormalizeLocation(strings.Join(locParts, ", "))

	desc := ""
	format := types.FormatPlain
	if strings.TrimSpace(r.Description) != "" {
		desc, format = util.NormalizeDescription(r.Description)
	}

	return types.ScrapedJob{
		ExternalID:        util.GenerateExternalID(types.PlatformUber, id),
		Title:             title,
		URL:               fmt.Sprintf("https://www.uber.com/global/en/careers/list/%s/", id),
		Location:          loc,
		LocationType:      locType,
		Department:        util.CleanText(r.DepartmentName),
		Description:       desc,
		DescriptionFormat: format,
		EmploymentType:    util.ParseEmploymentType(r.TimeType),
		PostedAt:          util.NormalizePostedDate(firstNonEmpty(r.CreationDate, r.UpdatedDate)),
	}, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
