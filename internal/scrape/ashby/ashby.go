package ashby

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

// Scraper reads the public Ashby posting API. Postings come back in one
// response with full descriptions; compensation summaries ride along when
// includeCompensation is set.
type Scraper struct {
	hc  *httpclient.Client
	log arbor.ILogger

	apiBase string
}

func New(hc *httpclient.Client, log arbor.ILogger) *Scraper {
	return &Scraper{hc: hc, log: log, apiBase: "https://api.ashbyhq.com"}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformAshby }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "ashbyhq.com")
}

// ExtractIdentifier pulls the board name from jobs.ashbyhq.com/<board>.
func (s *Scraper) ExtractIdentifier(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return ""
	}
	// board names are case-sensitive slugs on Ashby, keep them as-is
	return segs[0]
}

type boardResponse struct {
	Jobs []boardJob `json:"jobs"`
}

type boardJob struct {
	Title              string `json:"title"`
	Location           string `json:"location"`
	SecondaryLocations []struct {
		Location string `json:"location"`
	} `json:"secondaryLocations"`
	Department      string `json:"department"`
	Team            string `json:"team"`
	IsListed        bool   `json:"isListed"`
	IsRemote        bool   `json:"isRemote"`
	DescriptionHTML string `json:"descriptionHtml"`
	DescriptionText string `json:"descriptionPlain"`
	PublishedAt     string `json:"publishedAt"`
	EmploymentType  string `json:"employmentType"` // FullTime | PartTime | Intern | Contract | Temporary
	JobURL          string `json:"jobUrl"`
	ApplyURL        string `json:"applyUrl"`
	Compensation    struct {
		TierSummary string `json:"compensationTierSummary"`
	} `json:"compensation"`
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	board := strings.TrimSpace(opts.BoardToken)
	detected := ""
	if board == "" {
		board = s.ExtractIdentifier(rawURL)
		detected = board
	}
	if board == "" {
		return types.ErrorResult(types.ErrInvalidURL, fmt.Sprintf("ashby: no board name in %q", rawURL))
	}

	endpoint := fmt.Sprintf("%s/posting-api/job-board/%s?includeCompensation=true", s.apiBase, url.PathEscape(board))
	res, err := s.hc.Get(ctx, endpoint, httpclient.Options{})
	if err != nil {
		return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("ashby %s: %v", board, err))
	}
	if res.StatusCode == http.StatusNotFound {
		return types.ErrorResult(types.ErrBoardNotFound, fmt.Sprintf("ashby board %s not found", board))
	}
	if !res.OK() {
		return types.ErrorResult(types.CodeForStatus(res.StatusCode), fmt.Sprintf("ashby %s: status %d", board, res.StatusCode))
	}

	var body boardResponse
	if err := res.JSON(&body); err != nil {
		return types.ErrorResult(types.ErrParse, fmt.Sprintf("ashby %s: %v", board, err))
	}

	jobs := make([]types.ScrapedJob, 0, len(body.Jobs))
	openIDs := make([]string, 0, len(body.Jobs))
	for i, j := range body.Jobs {
		sj, ok := mapJob(board, i, j)
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

func mapJob(board string, index int, j boardJob) (types.ScrapedJob, bool) {
	title := util.CleanText(j.Title)
	jobURL := strings.TrimSpace(j.JobURL)
	if jobURL == "" {
		jobURL = strings.TrimSpace(j.ApplyURL)
	}
	if title == "" || jobURL == "" || !j.IsListed {
		return types.ScrapedJob{}, false
	}

	// the posting API exposes no stable job id, so the id part falls back
	// through jobUrl, applyUrl, then the board index
	idPart := jobURL
	if idPart == "" {
		idPart = strconv.Itoa(index)
	}

	locParts := []string{util.CleanText(j.Location)}
	for _, sec := range j.SecondaryLocations {
		if v := util.CleanText(sec.Location); v != "" {
			locParts = append(locParts, v)
		}
	}
	loc, locType := util.NormalizeLocation(strings.Join(locParts, ", "))
	if j.IsRemote {
		locType = types.LocationRemote
	}

	desc := ""
	format := types.FormatPlain
	if strings.TrimSpace(j.DescriptionHTML) != "" {
		desc, format = util.NormalizeDescription(j.DescriptionHTML)
	} else if strings.TrimSpace(j.DescriptionText) != "" {
		desc = util.CleanText(j.DescriptionText)
	}

	dept := util.CleanText(j.Department)
	if dept == "" {
		dept = util.CleanText(j.Team)
	}

	return types.ScrapedJob{
		ExternalID:        util.GenerateExternalID(types.PlatformAshby, board, idPart),
		Title:             title,
		URL:               jobURL,
		Location:          loc,
		LocationType:      locType,
		Department:        dept,
		Description:       desc,
		DescriptionFormat: format,
		EmploymentType:    util.ParseEmploymentType(j.EmploymentType),
		Salary:            util.CleanText(j.Compensation.TierSummary),
		PostedAt:          util.NormalizePostedDate(j.PublishedAt),
	}, true
}
