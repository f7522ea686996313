package lever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/types"
)

func testScraper(apiBase string) *Scraper {
	s := New(httpclient.New(arbor.NewLogger()).WithRateLimit(1000, 1000), arbor.NewLogger())
	if apiBase != "" {
		s.apiBase = apiBase
	}
	return s
}

const postingsJSON = `[
	{
		"id": "a1b2",
		"text": "Backend Engineer",
		"hostedUrl": "https://jobs.lever.co/acme/a1b2",
		"createdAt": 1735603200000,
		"workplaceType": "remote",
		"categories": {"location": "Bengaluru, India", "team": "Platform", "commitment": "Full Time"},
		"description": "<p>Own the API layer.</p>",
		"salaryRange": {"min": 100, "max": 200, "currency": "USD", "interval": "per-year-salary"}
	},
	{
		"id": "c3d4",
		"text": "Designer",
		"hostedUrl": "https://jobs.lever.co/acme/c3d4",
		"categories": {"location": "London, UK"},
		"descriptionPlain": "Make it pretty."
	}
]`

func TestScrapeMapsPostings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/postings/acme", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("mode"))
		w.Write([]byte(postingsJSON))
	}))
	defer srv.Close()

	res := testScraper(srv.URL).Scrape(context.Background(), "https://jobs.lever.co/acme", types.ScrapeOptions{})

	require.True(t, res.Success)
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Jobs, 2)

	be := res.Jobs[0]
	assert.Equal(t, "lever-acme-a1b2", be.ExternalID)
	assert.Equal(t, "Backend Engineer", be.Title)
	assert.Equal(t, types.LocationRemote, be.LocationType, "workplaceType beats the location text")
	assert.Equal(t, "Platform", be.Department)
	assert.Equal(t, types.EmploymentFullTime, be.EmploymentType)
	assert.Equal(t, "Own the API layer.", be.Description)
	assert.Equal(t, types.FormatMarkdown, be.DescriptionFormat)
	assert.Equal(t, "100 - 200 USD / per-year-salary", be.Salary)
	require.NotNil(t, be.PostedAt)
	assert.Equal(t, 2024, be.PostedAt.Year())

	dz := res.Jobs[1]
	assert.Equal(t, "lever-acme-c3d4", dz.ExternalID)
	assert.Equal(t, "Make it pretty.", dz.Description)
	assert.Equal(t, types.FormatPlain, dz.DescriptionFormat)
	assert.Nil(t, dz.PostedAt)

	assert.Equal(t, []string{"lever-acme-a1b2", "lever-acme-c3d4"}, res.OpenExternalIDs)
	assert.True(t, res.OpenExternalIDsComplete)
	assert.Equal(t, "acme", res.DetectedBoardToken)
}

func TestScrapeBoardNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := testScraper(srv.URL).Scrape(context.Background(), "https://jobs.lever.co/ghost", types.ScrapeOptions{})

	assert.False(t, res.Success)
	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Equal(t, types.ErrBoardNotFound, res.ErrorCode)
}

func TestScrapeRejectsURLWithoutSlug(t *testing.T) {
	res := testScraper("").Scrape(context.Background(), "https://jobs.lever.co/", types.ScrapeOptions{})

	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Equal(t, types.ErrInvalidURL, res.ErrorCode)
}

func TestExtractIdentifier(t *testing.T) {
	s := testScraper("")
	assert.Equal(t, "acme", s.ExtractIdentifier("https://jobs.lever.co/acme/123-abc"))
	assert.Equal(t, "acme", s.ExtractIdentifier("https://jobs.eu.lever.co/Acme"))
	assert.Equal(t, "", s.ExtractIdentifier("https://jobs.lever.co/"))
}
