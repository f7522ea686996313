package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
	"jobscout-engine/internal/scrape/types"
)

func testScraper() *Scraper {
	s := New(httpclient.New(arbor.NewLogger()).WithRateLimit(1000, 1000), arbor.NewLogger())
	s.hydrateCfg.InitialDelay = time.Millisecond
	s.hydrateCfg.MinDelay = time.Millisecond
	return s
}

const listHTML = `<html><body><ul>
<li>
  <a href="jobs/results/111-senior-software-engineer"><h3>Senior Software Engineer</h3></a>
  <span class="location">Bengaluru, India</span>
</li>
<li>
  <a href="/about/careers/applications/jobs/results/222-product-manager"><h3>Product Manager</h3></a>
  <span class="location">Sydney, Australia</span>
</li>
</ul></body></html>`

const detail111 = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org/","@type":"JobPosting","title":"Senior Software Engineer","description":"&lt;p&gt;Build search.&lt;/p&gt;","datePosted":"2024-04-01","employmentType":"FULL_TIME","jobLocation":[{"@type":"Place","address":{"addressLocality":"Bengaluru","addressCountry":"IN"}}]}</script>
</head><body></body></html>`

const detail222 = `<html><body>
<h2>About the job</h2><p>Lead the roadmap.</p>
<h2>Responsibilities</h2><p>Own planning.</p>
<h2>Benefits</h2><p>Snacks.</p>
</body></html>`

func listServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/jobs/results/111-"):
			w.Write([]byte(detail111))
		case strings.Contains(r.URL.Path, "/jobs/results/222-"):
			w.Write([]byte(detail222))
		case r.URL.Query().Get("page") == "1":
			w.Write([]byte(listHTML))
		default:
			w.Write([]byte("<html><body>no more results</body></html>"))
		}
	}))
}

func TestScrapeParsesCardsAndHydrates(t *testing.T) {
	srv := listServer(t)
	defer srv.Close()

	res := testScraper().Scrape(context.Background(), srv.URL+"/about/careers/applications/jobs/results/", types.ScrapeOptions{})

	require.True(t, res.Success)
	assert.Equal(t, types.OutcomeSuccess, res.Outcome)
	require.Len(t, res.Jobs, 2)

	se := res.Jobs[0]
	assert.Equal(t, "google-111", se.ExternalID)
	assert.Equal(t, "Senior Software Engineer", se.Title)
	assert.Equal(t, srv.URL+"/about/careers/applications/jobs/results/111-senior-software-engineer", se.URL, "relative hrefs resolve against the applications base")
	assert.Equal(t, "Bengaluru, India", se.Location)
	assert.Equal(t, "Build search.", se.Description)
	assert.Equal(t, types.EmploymentFullTime, se.EmploymentType)
	require.NotNil(t, se.PostedAt)

	pm := res.Jobs[1]
	assert.Equal(t, "google-222", pm.ExternalID)
	assert.Contains(t, pm.Description, "## About the job")
	assert.Contains(t, pm.Description, "Lead the roadmap.")
	assert.Contains(t, pm.Description, "Own planning.")
	assert.NotContains(t, pm.Description, "Snacks", "unknown sections stay out")

	assert.Equal(t, []string{"google-111", "google-222"}, res.OpenExternalIDs)
	assert.True(t, res.OpenExternalIDsComplete)
}

func TestScrapeEarlyFiltersCardsBeforeDetail(t *testing.T) {
	var detailPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/jobs/results/111-"):
			detailPaths = append(detailPaths, r.URL.Path)
			w.Write([]byte(detail111))
		case strings.Contains(r.URL.Path, "/jobs/results/222-"):
			detailPaths = append(detailPaths, r.URL.Path)
			w.Write([]byte(detail222))
		case r.URL.Query().Get("page") == "1":
			w.Write([]byte(listHTML))
		default:
			w.Write([]byte("<html></html>"))
		}
	}))
	defer srv.Close()

	res := testScraper().Scrape(context.Background(), srv.URL+"/about/careers/applications/jobs/results/", types.ScrapeOptions{
		Filters: types.JobFilters{TitleKeywords: []string{"engineer"}},
	})

	require.True(t, res.Success)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "google-111", res.Jobs[0].ExternalID)

	require.NotNil(t, res.EarlyFiltered)
	assert.Equal(t, 1, res.EarlyFiltered.Total)
	assert.Equal(t, 1, res.EarlyFiltered.Title)

	require.Len(t, detailPaths, 1, "filtered cards never fetch detail")
	assert.Contains(t, detailPaths[0], "111")

	assert.Len(t, res.OpenExternalIDs, 2, "open ids still include early-filtered jobs")
}

func TestScrapeDetailFailureKeepsListingRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/jobs/results/111-"):
			w.Write([]byte(detail111))
		case strings.Contains(r.URL.Path, "/jobs/results/222-"):
			w.WriteHeader(http.StatusForbidden)
		case r.URL.Query().Get("page") == "1":
			w.Write([]byte(listHTML))
		default:
			w.Write([]byte("<html></html>"))
		}
	}))
	defer srv.Close()

	res := testScraper().Scrape(context.Background(), srv.URL+"/about/careers/applications/jobs/results/", types.ScrapeOptions{})

	assert.False(t, res.Success)
	assert.Equal(t, types.OutcomePartial, res.Outcome)
	require.Len(t, res.Jobs, 2)
	assert.Empty(t, res.Jobs[1].Description)
	assert.Equal(t, "Product Manager", res.Jobs[1].Title, "listing fields survive")
	assert.True(t, res.OpenExternalIDsComplete)
}

func TestScrapeNoCardsOnFirstPageIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>nothing here</body></html>"))
	}))
	defer srv.Close()

	res := testScraper().Scrape(context.Background(), srv.URL+"/about/careers/applications/jobs/results/", types.ScrapeOptions{})

	assert.Equal(t, types.OutcomeError, res.Outcome)
	assert.Equal(t, types.ErrParse, res.ErrorCode)
}

func TestScrapeSkipsDetailForExistingIDs(t *testing.T) {
	var detailCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/jobs/results/"):
			detailCalls++
			w.Write([]byte(detail111))
		case r.URL.Query().Get("page") == "1":
			w.Write([]byte(listHTML))
		default:
			w.Write([]byte("<html></html>"))
		}
	}))
	defer srv.Close()

	res := testScraper().Scrape(context.Background(), srv.URL+"/about/careers/applications/jobs/results/", types.ScrapeOptions{
		ExistingExternalIDs: map[string]bool{"google-111": true, "google-222": true},
	})

	require.True(t, res.Success)
	assert.Equal(t, 0, detailCalls)
	require.Len(t, res.Jobs, 2)
	assert.Empty(t, res.Jobs[0].Description)
}
