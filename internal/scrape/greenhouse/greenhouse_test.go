package greenhouse

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

func testScraper(apiBase, embedBase string) *Scraper {
	s := New(httpclient.New(arbor.NewLogger()).WithRateLimit(1000, 1000), arbor.NewLogger())
	if apiBase != "" {
		s.apiBase = apiBase
	}
	if embedBase != "" {
		s.embedBase = embedBase
	}
	return s
}

const boardJSON = `{
	"jobs": [
		{
			"id": 1,
			"title": "SE",
			"absolute_url": "u1",
			"location": {"name": "Remote - India"},
			"updated_at": "2024-01-01T00:00:00Z",
			"content": "<p>Build things</p>"
		},
		{
			"id": 2,
			"title": "SRE",
			"absolute_url": "u2",
			"location": {"name": "Berlin, DE"},
			"updated_at": "2024-01-02T00:00:00Z",
			"metadata": [{"name": "Additional Location", "value": "Munich, DE"}]
		}
	]
}`

func TestScrapeMapsBoardJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/acme/jobs", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("content"))
		w.Write([]byte(boardJSON))
	}))
	defer srv.Close()

	res := testScraper(srv.URL, "").Scrape(context.Background(), "https://boards.greenhouse.io/acme", types.ScrapeOptions{})

	require.True(t, res.Success)
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Jobs, 2)

	assert.Equal(t, "greenhouse-acme-1", res.Jobs[0].ExternalID)
	assert.Equal(t, "greenhouse-acme-2", res.Jobs[1].ExternalID)
	assert.Equal(t, types.LocationRemote, res.Jobs[0].LocationType)
	assert.Equal(t, "Build things", res.Jobs[0].Description)
	assert.Equal(t, types.FormatMarkdown, res.Jobs[0].DescriptionFormat)
	assert.Contains(t, res.Jobs[1].Location, "Munich", "metadata locations merge in")
	require.NotNil(t, res.Jobs[1].PostedAt)

	assert.Equal(t, []string{"greenhouse-acme-1", "greenhouse-acme-2"}, res.OpenExternalIDs)
	assert.True(t, res.OpenExternalIDsComplete)
	assert.Equal(t, "acme", res.DetectedBoardToken)
}

func TestScrapeFallsBackToEmbedFeed(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer api.Close()

	embed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/embed/job_board/jobs.json", r.URL.Path)
		w.Write([]byte(`{"jobs":[{"id":7,"title":"PM","absolute_url":"u7","location":{"name":"NYC"}}]}`))
	}))
	defer embed.Close()

	res := testScraper(api.URL, embed.URL).Scrape(context.Background(), "https://boards.greenhouse.io/acme", types.ScrapeOptions{})

	require.True(t, res.Success)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "greenhouse-acme-7", res.Jobs[0].ExternalID)
	assert.Empty(t, res.Jobs[0].Description, "embed feed has no content")
}

func TestScrapeErrorsWhenBothEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := testScraper(srv.URL, srv.URL).Scrape(context.Background(), "https://boards.greenhouse.io/ghost", types.ScrapeOptions{})

	assert.False(t, res.Success)
	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Equal(t, types.ErrBoardNotFound, res.ErrorCode)
	assert.Empty(t, res.Jobs)
}

func TestScrapePrefersBoardTokenOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/override/jobs", r.URL.Path)
		w.Write([]byte(`{"jobs":[]}`))
	}))
	defer srv.Close()

	res := testScraper(srv.URL, "").Scrape(context.Background(), "https://boards.greenhouse.io/acme", types.ScrapeOptions{BoardToken: "override"})

	require.True(t, res.Success)
	assert.Empty(t, res.DetectedBoardToken, "token came from options, not the url")
}

func TestExtractIdentifier(t *testing.T) {
	s := testScraper("", "")
	cases := []struct {
		url  string
		want string
	}{
		{"https://boards.greenhouse.io/acme", "acme"},
		{"https://job-boards.greenhouse.io/Acme/jobs/123", "acme"},
		{"https://boards.greenhouse.io/embed/job_board?for=acme", "acme"},
		{"https://boards.greenhouse.io/", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.ExtractIdentifier(tc.url), tc.url)
	}
}
