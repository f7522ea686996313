package domain

import "time"

type Company struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	CareerURL     string     `json:"careerUrl"`
	Platform      string     `json:"platform"` // detected platform, empty until first scrape
	BoardToken    string     `json:"boardToken"`
	Active        bool       `json:"active"`
	LastScrapedAt *time.Time `json:"lastScrapedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// CompanyUpdate is a partial update; nil fields are left alone.
type CompanyUpdate struct {
	LastScrapedAt *time.Time
	Platform      *string
	BoardToken    *string
	Active        *bool
}
