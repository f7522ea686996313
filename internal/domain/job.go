package domain

import "time"

// Job statuses. A job leaves "archived" only when a scrape sees its
// external id open again, and only if the scraper archived it.
const (
	JobStatusNew        = "new"
	JobStatusViewed     = "viewed"
	JobStatusInterested = "interested"
	JobStatusRejected   = "rejected"
	JobStatusApplied    = "applied"
	JobStatusArchived   = "archived"
)

type Job struct {
	ID                int64      `json:"id"`
	CompanyID         int64      `json:"companyId"`
	ExternalID        string     `json:"externalId"`
	Title             string     `json:"title"`
	URL               string     `json:"url"`
	Location          string     `json:"location,omitempty"`
	LocationType      string     `json:"locationType,omitempty"`
	Department        string     `json:"department,omitempty"`
	Description       string     `json:"description,omitempty"`
	DescriptionFormat string     `json:"descriptionFormat,omitempty"`
	EmploymentType    string     `json:"employmentType,omitempty"`
	Seniority         string     `json:"seniority,omitempty"`
	Salary            string     `json:"salary,omitempty"`
	Status            string     `json:"status"`
	ArchivedByScraper bool       `json:"archivedByScraper"`
	MatchStatus       string     `json:"matchStatus,omitempty"`
	PostedAt          *time.Time `json:"postedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ExistingJob is the slim view the scrape pipeline compares new postings
// against: enough for dedupe and description backfill, nothing more.
type ExistingJob struct {
	ID          int64
	ExternalID  string
	Title       string
	URL         string
	Status      string
	Description string
}

// JobUpdate patches a stored job from a fresh scrape of the same posting.
type JobUpdate struct {
	ID                int64
	Description       string
	DescriptionFormat string
}
