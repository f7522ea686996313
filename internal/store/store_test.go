package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/types"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func seedCompany(t *testing.T, d *DB, name string) int64 {
	t.Helper()
	c := &domain.Company{Name: name, CareerURL: "https://boards.greenhouse.io/" + name, Platform: "greenhouse", Active: true}
	require.NoError(t, d.CreateCompany(context.Background(), c))
	return c.ID
}

func TestInsertJobsIgnoresDuplicates(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	cid := seedCompany(t, d, "acme")

	posted := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ids, err := d.InsertJobs(ctx, cid, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "Engineer", URL: "https://x/1", Location: "Pune, India", Description: "build things", DescriptionFormat: types.FormatMarkdown, PostedAt: &posted},
		{ExternalID: "greenhouse-acme-2", Title: "Designer", URL: "https://x/2"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// same external id again: ignored, no id returned
	again, err := d.InsertJobs(ctx, cid, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "Engineer", URL: "https://x/1"},
		{ExternalID: "greenhouse-acme-3", Title: "Analyst", URL: "https://x/3"},
	})
	require.NoError(t, err)
	require.Len(t, again, 1)

	existing, err := d.GetExistingJobs(ctx, cid)
	require.NoError(t, err)
	assert.Len(t, existing, 3)

	row, err := d.GetJob(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Engineer", row.Title)
	assert.Equal(t, "acme", row.CompanyName)
	assert.Equal(t, domain.JobStatusNew, row.Status)
	assert.Equal(t, string(types.FormatMarkdown), row.DescriptionFormat)
	require.NotNil(t, row.PostedAt)
	assert.True(t, row.PostedAt.Equal(posted))
}

func TestArchiveAndReopenRoundTrip(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	cid := seedCompany(t, d, "acme")

	ids, err := d.InsertJobs(ctx, cid, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "A", URL: "https://x/1"},
		{ExternalID: "greenhouse-acme-2", Title: "B", URL: "https://x/2"},
		{ExternalID: "greenhouse-acme-3", Title: "C", URL: "https://x/3"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	// job 3 archived by hand: the scraper must never touch it again
	found, err := d.UpdateJobStatus(ctx, ids[2], domain.JobStatusArchived)
	require.NoError(t, err)
	assert.True(t, found)

	archivable := []string{domain.JobStatusNew, domain.JobStatusViewed, domain.JobStatusInterested, domain.JobStatusRejected}
	n, err := d.ArchiveMissingJobs(ctx, cid, []string{"greenhouse-acme-1"}, archivable)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only job 2 is archivable and missing")

	reopened, err := d.ReopenScraperArchivedJobs(ctx, cid, []string{"greenhouse-acme-2", "greenhouse-acme-3"})
	require.NoError(t, err)
	assert.Equal(t, 1, reopened, "manual archive stays archived")

	existing, err := d.GetExistingJobs(ctx, cid)
	require.NoError(t, err)
	byExt := make(map[string]string, len(existing))
	for _, j := range existing {
		byExt[j.ExternalID] = j.Status
	}
	assert.Equal(t, domain.JobStatusNew, byExt["greenhouse-acme-1"])
	assert.Equal(t, domain.JobStatusNew, byExt["greenhouse-acme-2"])
	assert.Equal(t, domain.JobStatusArchived, byExt["greenhouse-acme-3"])
}

func TestHydrationUpdatesDescriptions(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	cid := seedCompany(t, d, "acme")

	ids, err := d.InsertJobs(ctx, cid, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "A", URL: "https://x/1"},
	})
	require.NoError(t, err)

	n, err := d.UpdateExistingJobsFromScrape(ctx, []domain.JobUpdate{
		{ID: ids[0], Description: "now described", DescriptionFormat: string(types.FormatMarkdown)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, err := d.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "now described", row.Description)
}

func TestGetMatchableJobIDs(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	cid := seedCompany(t, d, "acme")

	ids, err := d.InsertJobs(ctx, cid, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "A", URL: "https://x/1", Description: "full text"},
		{ExternalID: "greenhouse-acme-2", Title: "B", URL: "https://x/2"},
		{ExternalID: "greenhouse-acme-3", Title: "C", URL: "https://x/3", Description: "  "},
	})
	require.NoError(t, err)

	matchable, err := d.GetMatchableJobIDs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, matchable, "blank and whitespace descriptions are not matchable")
}

func TestListJobsFilters(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	acme := seedCompany(t, d, "acme")
	globex := seedCompany(t, d, "globex")

	_, err := d.InsertJobs(ctx, acme, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "Platform Engineer", URL: "https://x/1", LocationType: types.LocationRemote},
		{ExternalID: "greenhouse-acme-2", Title: "Designer", URL: "https://x/2"},
	})
	require.NoError(t, err)
	gids, err := d.InsertJobs(ctx, globex, []types.ScrapedJob{
		{ExternalID: "greenhouse-globex-1", Title: "Sales Engineer", URL: "https://x/3"},
	})
	require.NoError(t, err)

	all, err := d.ListJobs(ctx, JobQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	remote, err := d.ListJobs(ctx, JobQuery{LocationType: string(types.LocationRemote)})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "Platform Engineer", remote[0].Title)

	search, err := d.ListJobs(ctx, JobQuery{Search: "engineer", Sort: "title"})
	require.NoError(t, err)
	require.Len(t, search, 2)
	assert.Equal(t, "Platform Engineer", search[0].Title)
	assert.Equal(t, "Sales Engineer", search[1].Title)

	// archived rows disappear from the default listing but stay reachable
	// by status
	_, err = d.UpdateJobStatus(ctx, gids[0], domain.JobStatusArchived)
	require.NoError(t, err)
	all, err = d.ListJobs(ctx, JobQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	archived, err := d.ListJobs(ctx, JobQuery{Status: domain.JobStatusArchived})
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestSessionLifecycle(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	s := &domain.Session{ID: "sess-1", TriggerSource: domain.TriggerManual, Status: domain.SessionInProgress, CompaniesTotal: 2}
	require.NoError(t, d.CreateSession(ctx, s))

	inProgress, err := d.IsSessionInProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, inProgress)

	require.NoError(t, d.UpdateSessionProgress(ctx, "sess-1", domain.SessionProgress{
		CompaniesCompleted: 1, TotalJobsFound: 7, TotalJobsAdded: 3,
	}))

	stopped, err := d.StopSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, stopped)

	inProgress, err = d.IsSessionInProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, inProgress)

	// a second stop and a late complete both leave the stop in place
	stopped, err = d.StopSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, stopped)
	require.NoError(t, d.CompleteSession(ctx, "sess-1", domain.SessionCompleted))

	got, err := d.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.SessionStopped, got.Status)
	assert.Equal(t, 1, got.CompaniesCompleted)
	assert.Equal(t, 7, got.TotalJobsFound)
	require.NotNil(t, got.CompletedAt)

	missing, err := d.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScrapingLogPatch(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	id, err := d.CreateScrapingLog(ctx, &domain.ScrapingLog{
		SessionID: "sess-1", CompanyID: 1, CompanyName: "Acme", Platform: "greenhouse",
		Status: "success", JobsFound: 5, JobsAdded: 2,
	})
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	pending := domain.MatcherPending
	total := 2
	require.NoError(t, d.UpdateScrapingLog(ctx, id, domain.ScrapingLogUpdate{
		MatcherStatus: &pending, MatcherJobsTotal: &total,
	}))
	done := domain.MatcherCompleted
	completedJobs := 2
	dur := int64(1234)
	require.NoError(t, d.UpdateScrapingLog(ctx, id, domain.ScrapingLogUpdate{
		MatcherStatus: &done, MatcherJobsCompleted: &completedJobs, MatcherDurationMS: &dur,
	}))

	logs, err := d.GetSessionLogs(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.MatcherCompleted, logs[0].MatcherStatus)
	assert.Equal(t, 2, logs[0].MatcherJobsTotal)
	assert.Equal(t, 2, logs[0].MatcherJobsCompleted)
	assert.Equal(t, int64(1234), logs[0].MatcherDurationMS)
	assert.Equal(t, 5, logs[0].JobsFound, "untouched fields keep their values")
}

func TestSettingsRoundTrip(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	v, err := d.GetSetting(ctx, "scraper_filter_country")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, d.SetSetting(ctx, "scraper_filter_country", "India"))
	require.NoError(t, d.SetSetting(ctx, "scraper_filter_country", "Canada"))

	v, err = d.GetSetting(ctx, "scraper_filter_country")
	require.NoError(t, err)
	assert.Equal(t, "Canada", v)

	all, err := d.AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"scraper_filter_country": "Canada"}, all)
}

func TestSchedulerLock(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	ok, err := d.AcquireSchedulerLock(ctx, "scrape", "node-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.AcquireSchedulerLock(ctx, "scrape", "node-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lock rejects other owners")

	ok, err = d.AcquireSchedulerLock(ctx, "scrape", "node-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "re-acquire by the holder is fine")

	ok, err = d.RefreshSchedulerLock(ctx, "scrape", "node-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = d.RefreshSchedulerLock(ctx, "scrape", "node-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, d.ReleaseSchedulerLock(ctx, "scrape", "node-a"))
	ok, err = d.AcquireSchedulerLock(ctx, "scrape", "node-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released lock is free")

	// expiry: node-b's lock runs out immediately, node-a may take it
	ok, err = d.AcquireSchedulerLock(ctx, "scrape", "node-b", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = d.AcquireSchedulerLock(ctx, "scrape", "node-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is up for grabs")
}

func TestUpdateCompanyPartialPatch(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	cid := seedCompany(t, d, "acme")

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	token := "acme-board"
	require.NoError(t, d.UpdateCompany(ctx, cid, domain.CompanyUpdate{
		LastScrapedAt: &now,
		BoardToken:    &token,
	}))

	c, err := d.GetCompany(ctx, cid)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "acme-board", c.BoardToken)
	assert.Equal(t, "greenhouse", c.Platform, "unpatched field untouched")
	require.NotNil(t, c.LastScrapedAt)
	assert.True(t, c.LastScrapedAt.Equal(now))
	assert.True(t, c.Active)
}

func TestPruneArchivedJobs(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	cid := seedCompany(t, d, "acme")

	ids, err := d.InsertJobs(ctx, cid, []types.ScrapedJob{
		{ExternalID: "greenhouse-acme-1", Title: "A", URL: "https://x/1"},
		{ExternalID: "greenhouse-acme-2", Title: "B", URL: "https://x/2"},
	})
	require.NoError(t, err)

	// scraper-archive job 1, hand-archive job 2
	n, err := d.ArchiveMissingJobs(ctx, cid, []string{"greenhouse-acme-2"},
		[]string{domain.JobStatusNew})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = d.UpdateJobStatus(ctx, ids[1], domain.JobStatusArchived)
	require.NoError(t, err)

	// negative window puts the cutoff in the future, so age never saves a row
	deleted, err := d.PruneArchivedJobs(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "only the scraper-archived row is pruned")

	existing, err := d.GetExistingJobs(ctx, cid)
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, "greenhouse-acme-2", existing[0].ExternalID)
}

// the store must satisfy the orchestrator's repository contract
var _ scrape.Repository = (*DB)(nil)
