package domain

import "time"

// Session trigger sources.
const (
	TriggerManual    = "manual"
	TriggerScheduler = "scheduler"
	TriggerAutoMatch = "auto_match"
)

// Session statuses. in_progress is the only non-terminal one.
const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionPartial    = "partial"
	SessionFailed     = "failed"
	SessionStopped    = "stopped"
)

type Session struct {
	ID                 string     `json:"id"`
	TriggerSource      string     `json:"triggerSource"`
	Status             string     `json:"status"`
	CompaniesTotal     int        `json:"companiesTotal"`
	CompaniesCompleted int        `json:"companiesCompleted"`
	TotalJobsFound     int        `json:"totalJobsFound"`
	TotalJobsAdded     int        `json:"totalJobsAdded"`
	TotalJobsFiltered  int        `json:"totalJobsFiltered"`
	TotalJobsArchived  int        `json:"totalJobsArchived"`
	StartedAt          time.Time  `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

type SessionProgress struct {
	CompaniesCompleted int
	TotalJobsFound     int
	TotalJobsAdded     int
	TotalJobsFiltered  int
	TotalJobsArchived  int
}

// FetchResult is the per-company outcome of one scrape inside a session.
type FetchResult struct {
	CompanyID    int64         `json:"companyId"`
	CompanyName  string        `json:"companyName"`
	Platform     string        `json:"platform"`
	Success      bool          `json:"success"`
	Outcome      string        `json:"outcome"` // success|partial|error
	JobsFound    int           `json:"jobsFound"`
	JobsAdded    int           `json:"jobsAdded"`
	JobsUpdated  int           `json:"jobsUpdated"`
	JobsFiltered int           `json:"jobsFiltered"`
	JobsArchived int           `json:"jobsArchived"`
	LogID        int64         `json:"logId,omitempty"`
	Duration     time.Duration `json:"-"`
	Error        string        `json:"error,omitempty"`
}

// SessionStatusFor maps per-company outcomes to a terminal session status.
// All success -> completed, all error -> failed, anything mixed -> partial.
func SessionStatusFor(results []FetchResult) string {
	if len(results) == 0 {
		return SessionCompleted
	}
	succ, errs := 0, 0
	for _, r := range results {
		switch r.Outcome {
		case "error":
			errs++
		case "success":
			succ++
		}
	}
	switch {
	case succ == len(results):
		return SessionCompleted
	case errs == len(results):
		return SessionFailed
	default:
		return SessionPartial
	}
}
