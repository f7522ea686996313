package domain

import "time"

// Matcher hand-off states recorded on a scraping log row.
const (
	MatcherPending    = "pending"
	MatcherInProgress = "in_progress"
	MatcherCompleted  = "completed"
	MatcherFailed     = "failed"
)

// ScrapingLog is one company's row within a session: what the scrape found,
// what survived the pipeline, and how the background match run went.
type ScrapingLog struct {
	ID           int64  `json:"id"`
	SessionID    string `json:"sessionId,omitempty"`
	CompanyID    int64  `json:"companyId"`
	CompanyName  string `json:"companyName"`
	Platform     string `json:"platform"`
	Status       string `json:"status"` // success|partial|error
	JobsFound    int    `json:"jobsFound"`
	JobsAdded    int    `json:"jobsAdded"`
	JobsUpdated  int    `json:"jobsUpdated"`
	JobsFiltered int    `json:"jobsFiltered"`
	JobsArchived int    `json:"jobsArchived"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	MatcherStatus        string `json:"matcherStatus,omitempty"`
	MatcherJobsTotal     int    `json:"matcherJobsTotal,omitempty"`
	MatcherJobsCompleted int    `json:"matcherJobsCompleted,omitempty"`
	MatcherErrorCount    int    `json:"matcherErrorCount,omitempty"`
	MatcherDurationMS    int64  `json:"matcherDurationMs,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMS  int64      `json:"durationMs"`
}

// ScrapingLogUpdate patches a log row; nil fields are left alone.
type ScrapingLogUpdate struct {
	Status       *string
	JobsFound    *int
	JobsAdded    *int
	JobsUpdated  *int
	JobsFiltered *int
	JobsArchived *int
	ErrorMessage *string

	MatcherStatus        *string
	MatcherJobsTotal     *int
	MatcherJobsCompleted *int
	MatcherErrorCount    *int
	MatcherDurationMS    *int64

	CompletedAt *time.Time
	DurationMS  *int64
}
