package greenhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

// Scraper reads the public Greenhouse board API. The harvest endpoint returns
// every open posting with full content in one response, so there is no
// pagination and no detail phase.
type Scraper struct {
	hc  *httpclient.Client
	log arbor.ILogger

	apiBase   string
	embedBase string
}

func New(hc *httpclient.Client, log arbor.ILogger) *Scraper {
	return &Scraper{
		hc:        hc,
		log:       log,
		apiBase:   "https://boards-api.greenhouse.io",
		embedBase: "https://boards.greenhouse.io",
	}
}

func (s *Scraper) Platform() types.Platform { return types.PlatformGreenhouse }

func (s *Scraper) Validate(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "greenhouse.io")
}

// ExtractIdentifier pulls the board token out of any of the Greenhouse URL
// shapes: boards.greenhouse.io/<token>, job-boards.greenhouse.io/<token>/...,
// or the embed form with ?for=<token>.
func (s *Scraper) ExtractIdentifier(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if tok := u.Query().Get("for"); tok != "" {
		return strings.ToLower(strings.TrimSpace(tok))
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		switch strings.ToLower(seg) {
		case "", "embed", "job_board", "jobs", "boards":
			continue
		default:
			return strings.ToLower(seg)
		}
	}
	return ""
}

type boardResponse struct {
	Jobs []boardJob `json:"jobs"`
}

type boardJob struct {
	ID             json.Number `json:"id"`
	Title          string      `json:"title"`
	AbsoluteURL    string      `json:"absolute_url"`
	Content        string      `json:"content"`
	UpdatedAt      string      `json:"updated_at"`
	FirstPublished string      `json:"first_published"`
	Location       struct {
		Name string `json:"name"`
	} `json:"location"`
	Metadata    []metadataEntry `json:"metadata"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

// metadata values are free-form: strings, string arrays, sometimes null.
type metadataEntry struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func (m metadataEntry) text() string {
	if len(m.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Value, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(m.Value, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, ", "))
	}
	return ""
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts types.ScrapeOptions) types.ScraperResult {
	token := strings.TrimSpace(opts.BoardToken)
	detected := ""
	if token == "" {
		token = s.ExtractIdentifier(rawURL)
		detected = token
	}
	if token == "" {
		return types.ErrorResult(types.ErrInvalidURL, fmt.Sprintf("greenhouse: no board token in %q", rawURL))
	}

	raw, err := s.fetchBoard(ctx, token)
	if err != nil {
		s.log.Debug().Str("board", token).Err(err).Msg("greenhouse board api failed, trying embed")
		var embedErr error
		raw, embedErr = s.fetchEmbed(ctx, token)
		if embedErr != nil {
			return types.ErrorResult(types.CodeOf(err), fmt.Sprintf("greenhouse board %s: %v", token, err))
		}
	}

	jobs := make([]types.ScrapedJob, 0, len(raw))
	openIDs := make([]string, 0, len(raw))
	for _, j := range raw {
		sj, ok := mapJob(token, j)
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

func (s *Scraper) fetchBoard(ctx context.Context, token string) ([]boardJob, error) {
	endpoint := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", s.apiBase, url.PathEscape(token))
	res, err := s.hc.Get(ctx, endpoint, httpclient.Options{})
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, types.NewError(types.ErrBoardNotFound, fmt.Sprintf("board %s not found", token))
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("board api status %d", res.StatusCode))
	}
	var body boardResponse
	if err := res.JSON(&body); err != nil {
		return nil, err
	}
	return body.Jobs, nil
}

// fetchEmbed is the fallback for boards that disabled the harvest API. The
// embed feed has the same job shape but no content field.
func (s *Scraper) fetchEmbed(ctx context.Context, token string) ([]boardJob, error) {
	endpoint := fmt.Sprintf("%s/%s/embed/job_board/jobs.json", s.embedBase, url.PathEscape(token))
	res, err := s.hc.Get(ctx, endpoint, httpclient.Options{})
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeForStatus(res.StatusCode), fmt.Sprintf("embed feed status %d", res.StatusCode))
	}
	var body boardResponse
	if err := res.JSON(&body); err != nil {
		return nil, err
	}
	return body.Jobs, nil
}

func mapJob(token string, j boardJob) (types.ScrapedJob, bool) {
	title := util.CleanText(util.DecodeEntities(j.Title))
	jobURL := strings.TrimSpace(j.AbsoluteURL)
	if title == "" || jobURL == "" || j.ID.String() == "" {
		return types.ScrapedJob{}, false
	}

	loc, locType := util.NormalizeLocation(mergeLocations(j))

	desc := ""
	format := types.FormatPlain
	if c := strings.TrimSpace(j.Content); c != "" {
		decoded := util.DecodeEntities(c)
		desc, format = util.NormalizeDescription(decoded)
		if format == types.FormatPlain {
			// boards that serve markdown straight through keep the tag
			format = types.FormatMarkdown
		}
	}

	dept := ""
	if len(j.Departments) > 0 {
		dept = util.CleanText(j.Departments[0].Name)
	}

	return types.ScrapedJob{
		ExternalID:        util.GenerateExternalID(types.PlatformGreenhouse, token, j.ID.String()),
		Title:             title,
		URL:               jobURL,
		Location:          loc,
		LocationType:      locType,
		Department:        dept,
		Description:       desc,
		DescriptionFormat: format,
		PostedAt:          util.NormalizePostedDate(firstNonEmpty(j.FirstPublished, j.UpdatedAt)),
	}, true
}

// mergeLocations joins location.name with any metadata entry whose name
// mentions location; multi-office boards stash extra offices there.
func mergeLocations(j boardJob) string {
	parts := []string{strings.TrimSpace(j.Location.Name)}
	for _, m := range j.Metadata {
		if !strings.Contains(strings.ToLower(m.Name), "location") {
			continue
		}
		if v := m.text(); v != "" {
			parts = append(parts, v)
		}
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
