package types

import (
	"context"
	"time"
)

type Platform string

const (
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformAshby      Platform = "ashby"
	PlatformEightfold  Platform = "eightfold"
	PlatformWorkday    Platform = "workday"
	PlatformUber       Platform = "uber"
	PlatformGoogle     Platform = "google"
	PlatformAtlassian  Platform = "atlassian"
	PlatformCustom     Platform = "custom"
)

type LocationType string

const (
	LocationRemote LocationType = "remote"
	LocationHybrid LocationType = "hybrid"
	LocationOnsite LocationType = "onsite"
)

type DescriptionFormat string

const (
	FormatPlain    DescriptionFormat = "plain"
	FormatMarkdown DescriptionFormat = "markdown"
	FormatHTML     DescriptionFormat = "html"
)

type EmploymentType string

const (
	EmploymentFullTime  EmploymentType = "full-time"
	EmploymentPartTime  EmploymentType = "part-time"
	EmploymentContract  EmploymentType = "contract"
	EmploymentIntern    EmploymentType = "intern"
	EmploymentTemporary EmploymentType = "temporary"
)

type SeniorityLevel string

const (
	SeniorityEntry   SeniorityLevel = "entry"
	SeniorityMid     SeniorityLevel = "mid"
	SenioritySenior  SeniorityLevel = "senior"
	SeniorityLead    SeniorityLevel = "lead"
	SeniorityManager SeniorityLevel = "manager"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeError   Outcome = "error"
)

// ScrapedJob is one normalized posting as an adapter saw it on the board.
// ExternalID, Title and URL are always set; everything else is best effort.
type ScrapedJob struct {
	ExternalID        string
	Title             string
	URL               string
	Location          string
	LocationType      LocationType
	Department        string
	Description       string
	DescriptionFormat DescriptionFormat
	EmploymentType    EmploymentType
	Seniority         SeniorityLevel
	Salary            string
	PostedAt          *time.Time
}

// EarlyFilterStats counts jobs an adapter dropped before returning, split by
// which preference axis rejected them.
type EarlyFilterStats struct {
	Total   int
	Country int
	City    int
	Title   int
}

// ScraperResult is the only thing an adapter hands back. Adapters never
// return a Go error from Scrape; failures are folded in here so one bad
// board cannot take down a batch.
//
// Invariants: Outcome==error implies len(Jobs)==0, and callers must not
// archive anything when OpenExternalIDsComplete is false.
type ScraperResult struct {
	Success            bool
	Outcome            Outcome
	Jobs               []ScrapedJob
	Error              string
	ErrorCode          ErrorCode
	DetectedBoardToken string
	EarlyFiltered      *EarlyFilterStats

	// OpenExternalIDs is the full set of external ids currently open on the
	// board, including jobs dropped by early filters. Complete=false means
	// pagination did not finish and the set cannot be trusted for archival.
	OpenExternalIDs         []string
	OpenExternalIDsComplete bool
}

type JobFilters struct {
	Country       string
	City          string
	TitleKeywords []string
}

func (f JobFilters) Empty() bool {
	return f.Country == "" && f.City == "" && len(f.TitleKeywords) == 0
}

type ScrapeOptions struct {
	// BoardToken overrides identifier extraction from the URL when set.
	BoardToken string
	Filters    JobFilters
	// ExistingExternalIDs marks jobs that already carry a description so
	// adapters can skip their detail fetches.
	ExistingExternalIDs map[string]bool
}

type Scraper interface {
	Platform() Platform
	Validate(rawURL string) bool
	ExtractIdentifier(rawURL string) string
	Scrape(ctx context.Context, rawURL string, opts ScrapeOptions) ScraperResult
}

// ErrorResult folds a failure into a terminal result.
func ErrorResult(code ErrorCode, msg string) ScraperResult {
	return ScraperResult{Outcome: OutcomeError, Error: msg, ErrorCode: code}
}
