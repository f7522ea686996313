package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/config"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/store"
)

type fakeRunner struct {
	added     int
	err       error
	startOnce sync.Once
	started   chan struct{} // closed when the first run begins
	release   chan struct{} // runs block on this when non-nil
}

func (f *fakeRunner) begin() {
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeRunner) ScrapeCompany(ctx context.Context, companyID int64, opts scrape.CompanyRunOptions) domain.FetchResult {
	f.begin()
	return domain.FetchResult{CompanyID: companyID, Success: true, JobsAdded: f.added}
}

func (f *fakeRunner) ScrapeCompanies(ctx context.Context, ids []int64, trigger string) (string, []domain.FetchResult, error) {
	f.begin()
	var results []domain.FetchResult
	for _, id := range ids {
		results = append(results, domain.FetchResult{CompanyID: id, Success: true, JobsAdded: f.added})
	}
	return "session-batch", results, f.err
}

func (f *fakeRunner) ScrapeAllCompanies(ctx context.Context, trigger string) (string, []domain.FetchResult, error) {
	f.begin()
	return "session-all", []domain.FetchResult{{CompanyID: 1, Success: true, JobsAdded: f.added}}, f.err
}

func newTestServer(t *testing.T, runner ScrapeRunner) (*httptest.Server, *store.DB) {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfgVal := &atomic.Value{}
	cfgVal.Store(config.Default())
	statusVal := &atomic.Value{}
	statusVal.Store(ScrapeStatus{})

	mux := NewMux(Deps{
		DB:           db,
		Hub:          events.NewHub(),
		Log:          arbor.NewLogger(),
		Runner:       runner,
		CfgVal:       cfgVal,
		ScrapeStatus: statusVal,
		UserCfgPath:  t.TempDir() + "/config.yml",
		LoadCfg:      func() (config.Config, error) { return config.Default(), nil },
	})

	srv := httptest.NewServer(Chain(mux, Cors, RequestID, Recover(arbor.NewLogger())))
	t.Cleanup(srv.Close)
	return srv, db
}

func seedCompany(t *testing.T, db *store.DB, name string) *domain.Company {
	t.Helper()
	c := &domain.Company{
		Name:      name,
		CareerURL: "https://boards.greenhouse.io/" + name,
		Platform:  "greenhouse",
		Active:    true,
	}
	require.NoError(t, db.CreateCompany(context.Background(), c))
	return c
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestJobsListAndGet(t *testing.T) {
	srv, db := newTestServer(t, &fakeRunner{})
	company := seedCompany(t, db, "acme")

	ids, err := db.InsertJobs(context.Background(), company.ID, []types.ScrapedJob{
		{ExternalID: "j1", Title: "Backend Engineer", URL: "https://acme.example/j1"},
		{ExternalID: "j2", Title: "Data Engineer", URL: "https://acme.example/j2"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	resp, err := http.Get(srv.URL + "/jobs")
	require.NoError(t, err)
	jobs := decode[[]store.JobRow](t, resp)
	require.Len(t, jobs, 2)
	assert.Equal(t, "acme", jobs[0].CompanyName)

	resp, err = http.Get(srv.URL + "/jobs?search=backend")
	require.NoError(t, err)
	jobs = decode[[]store.JobRow](t, resp)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Backend Engineer", jobs[0].Title)

	resp, err = http.Get(srv.URL + "/jobs/" + itoa(ids[0]))
	require.NoError(t, err)
	job := decode[store.JobRow](t, resp)
	assert.Equal(t, "Backend Engineer", job.Title)

	resp, err = http.Get(srv.URL + "/jobs/99999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobStatusPatch(t *testing.T) {
	srv, db := newTestServer(t, &fakeRunner{})
	company := seedCompany(t, db, "acme")

	ids, err := db.InsertJobs(context.Background(), company.ID, []types.ScrapedJob{
		{ExternalID: "j1", Title: "Backend Engineer", URL: "https://acme.example/j1"},
	})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/jobs/"+itoa(ids[0])+"/status", map[string]string{"status": "applied"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	job, err := db.GetJob(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusApplied, job.Status)

	// unknown status is rejected
	resp = doJSON(t, http.MethodPatch, srv.URL+"/jobs/"+itoa(ids[0])+"/status", map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPatch, srv.URL+"/jobs/99999/status", map[string]string{"status": "viewed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCompaniesCRUD(t *testing.T) {
	srv, db := newTestServer(t, &fakeRunner{})

	resp := doJSON(t, http.MethodPost, srv.URL+"/companies", map[string]any{
		"name":      "Stripe",
		"careerUrl": "https://boards.greenhouse.io/stripe",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.Company](t, resp)
	assert.Equal(t, "greenhouse", created.Platform) // detected from the URL
	assert.True(t, created.Active)

	// duplicate names conflict, case-insensitively
	resp = doJSON(t, http.MethodPost, srv.URL+"/companies", map[string]any{
		"name":      "stripe",
		"careerUrl": "https://boards.greenhouse.io/stripe",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/companies", map[string]any{
		"name":      "NoURL",
		"careerUrl": "not-a-url",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/companies")
	require.NoError(t, err)
	list := decode[[]domain.Company](t, resp)
	require.Len(t, list, 1)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/companies/"+itoa(created.ID), map[string]any{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decode[domain.Company](t, resp)
	assert.False(t, patched.Active)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/companies/"+itoa(created.ID), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	gone, err := db.GetCompany(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestScrapeRunAsync(t *testing.T) {
	runner := &fakeRunner{added: 7, started: make(chan struct{})}
	srv, _ := newTestServer(t, runner)

	resp := doJSON(t, http.MethodPost, srv.URL+"/scrape/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["ok"])

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never started")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/scrape/status")
		if err != nil {
			return false
		}
		st := decode[struct {
			Status ScrapeStatus `json:"status"`
		}](t, resp)
		return !st.Status.Running && st.Status.LastAdded == 7
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/scrape/status")
	require.NoError(t, err)
	st := decode[struct {
		Status ScrapeStatus `json:"status"`
	}](t, resp)
	assert.Equal(t, "session-all", st.Status.LastSessionID)
	assert.Empty(t, st.Status.LastError)
	assert.NotEmpty(t, st.Status.LastOkAt)
}

func TestScrapeRunConflictWhileRunning(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv, _ := newTestServer(t, runner)

	resp := doJSON(t, http.MethodPost, srv.URL+"/scrape/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never started")
	}

	// second run while the first is still in flight
	resp = doJSON(t, http.MethodPost, srv.URL+"/scrape/run", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	close(runner.release)

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/scrape/status")
		if err != nil {
			return false
		}
		st := decode[struct {
			Status ScrapeStatus `json:"status"`
		}](t, resp)
		return !st.Status.Running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionsEndpoints(t *testing.T) {
	srv, db := newTestServer(t, &fakeRunner{})

	s := &domain.Session{
		ID:             "11111111-2222-3333-4444-555555555555",
		TriggerSource:  domain.TriggerManual,
		Status:         domain.SessionInProgress,
		CompaniesTotal: 2,
		StartedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.CreateSession(context.Background(), s))

	logID, err := db.CreateScrapingLog(context.Background(), &domain.ScrapingLog{
		SessionID:   s.ID,
		CompanyID:   1,
		CompanyName: "acme",
		Platform:    "greenhouse",
		Status:      "success",
		StartedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotZero(t, logID)

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	sessions := decode[[]domain.Session](t, resp)
	require.Len(t, sessions, 1)

	resp, err = http.Get(srv.URL + "/sessions/" + s.ID)
	require.NoError(t, err)
	detail := decode[struct {
		Session domain.Session       `json:"session"`
		Logs    []domain.ScrapingLog `json:"logs"`
	}](t, resp)
	assert.Equal(t, s.ID, detail.Session.ID)
	require.Len(t, detail.Logs, 1)
	assert.Equal(t, "acme", detail.Logs[0].CompanyName)

	resp = doJSON(t, http.MethodPost, srv.URL+"/sessions/"+s.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stopBody := decode[map[string]any](t, resp)
	assert.Equal(t, true, stopBody["stopped"])

	// stopping twice is a no-op
	resp = doJSON(t, http.MethodPost, srv.URL+"/sessions/"+s.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stopBody = decode[map[string]any](t, resp)
	assert.Equal(t, false, stopBody["stopped"])

	resp, err = http.Get(srv.URL + "/sessions/unknown-id")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsWhitelist(t *testing.T) {
	srv, db := newTestServer(t, &fakeRunner{})

	resp := doJSON(t, http.MethodPut, srv.URL+"/settings", map[string]string{
		scrape.SettingFilterCountry:       "Australia",
		scrape.SettingFilterTitleKeywords: `["engineer","developer"]`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[map[string]string](t, resp)
	assert.Equal(t, "Australia", saved[scrape.SettingFilterCountry])

	got, err := db.GetSetting(context.Background(), scrape.SettingFilterCountry)
	require.NoError(t, err)
	assert.Equal(t, "Australia", got)

	// unknown keys are rejected
	resp = doJSON(t, http.MethodPut, srv.URL+"/settings", map[string]string{"random_key": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// keywords must be a JSON array
	resp = doJSON(t, http.MethodPut, srv.URL+"/settings", map[string]string{
		scrape.SettingFilterTitleKeywords: "engineer, developer",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// parallelism is clamped to 1..10
	resp = doJSON(t, http.MethodPut, srv.URL+"/settings", map[string]string{
		scrape.SettingMaxParallelScrapes: "50",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/settings")
	require.NoError(t, err)
	all := decode[map[string]string](t, resp)
	assert.Contains(t, all, scrape.SettingMaxParallelScrapes)
	assert.Len(t, all, 4)
}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["ok"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp := doJSON(t, http.MethodDelete, srv.URL+"/settings", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
