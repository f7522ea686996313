package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

type fakeRepo struct {
	company  *domain.Company
	existing []domain.ExistingJob
	settings map[string]string
	inserted []types.ScrapedJob
	creates  int
	nextID   int64
}

func (f *fakeRepo) GetCompanyByName(_ context.Context, name string) (*domain.Company, error) {
	if f.company != nil && strings.EqualFold(f.company.Name, name) {
		return f.company, nil
	}
	return nil, nil
}

func (f *fakeRepo) CreateCompany(_ context.Context, c *domain.Company) error {
	f.creates++
	f.nextID++
	c.ID = f.nextID
	f.company = c
	return nil
}

func (f *fakeRepo) GetExistingJobs(_ context.Context, _ int64) ([]domain.ExistingJob, error) {
	return f.existing, nil
}

func (f *fakeRepo) InsertJobs(_ context.Context, _ int64, jobs []types.ScrapedJob) ([]int64, error) {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		f.nextID++
		ids[i] = f.nextID
		f.inserted = append(f.inserted, j)
	}
	return ids, nil
}

func (f *fakeRepo) GetSetting(_ context.Context, key string) (string, error) {
	return f.settings[key], nil
}

func newTestIngestor(repo Repository, cfg Config) *Ingestor {
	return NewIngestor(repo, nil, arbor.NewLogger(), cfg)
}

func rawAlertEmail(t *testing.T, subject, from, html string) []byte {
	t.Helper()
	return []byte(strings.Join([]string{
		"From: " + from,
		"To: me@example.com",
		"Subject: " + subject,
		"Date: Thu, 20 Aug 2026 09:00:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"View these jobs in your browser.",
		"--b1",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		qpEncode(t, html),
		"--b1--",
		"",
	}, "\r\n"))
}

func TestCollectJobs(t *testing.T) {
	const sender = "LinkedIn Job Alerts <jobalerts-noreply@linkedin.com>"
	received := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	in := newTestIngestor(&fakeRepo{}, Config{SubjectAny: []string{"new jobs for"}})

	msgs := []Message{
		{
			UID:     7,
			From:    sender,
			Subject: `30+ new jobs for "software engineer"`,
			Date:    received,
			Raw:     rawAlertEmail(t, `30+ new jobs for "software engineer"`, sender, alertHTML),
		},
		{
			UID:     8,
			From:    "promo@shop.example",
			Subject: "Fresh new jobs for less at ShopCo",
			Raw:     rawAlertEmail(t, "Fresh new jobs for less at ShopCo", "promo@shop.example", "<p>buy things</p>"),
		},
		{
			UID:     9,
			From:    sender,
			Subject: "Your weekly digest",
			Raw:     rawAlertEmail(t, "Your weekly digest", sender, alertHTML),
		},
	}

	jobs, scanned, stats := in.collectJobs(msgs)

	assert.Equal(t, []imap.UID{7, 8, 9}, scanned, "every message gets scanned, matching or not")
	assert.Equal(t, 3, stats.Emails)
	assert.Equal(t, 1, stats.Alerts, "digest fails the subject allowlist, promo fails the alert sniff")
	assert.Equal(t, 3, stats.Jobs)

	require.Len(t, jobs, 3)
	assert.Equal(t, "email-4021337766", jobs[0].ExternalID)
	assert.Equal(t, "https://www.linkedin.com/jobs/view/4021337766", jobs[0].URL)
	assert.Equal(t, "Senior Software Engineer", jobs[0].Title)
	require.NotNil(t, jobs[0].PostedAt)
	assert.Equal(t, received, *jobs[0].PostedAt)
	assert.Equal(t, "email-4021337767", jobs[1].ExternalID)
	assert.Equal(t, "email-555", jobs[2].ExternalID)
}

func TestIngestPipeline(t *testing.T) {
	repo := &fakeRepo{
		company: &domain.Company{ID: 4, Name: CompanyName, Platform: "custom", Active: true},
		existing: []domain.ExistingJob{
			{
				ID:          1,
				ExternalID:  "email-4021337766",
				Title:       "Senior Software Engineer",
				URL:         "https://www.linkedin.com/jobs/view/4021337766",
				Status:      domain.JobStatusNew,
				Description: "Acme Corp · Bengaluru, Karnataka, India",
			},
		},
		settings: map[string]string{scrape.SettingFilterCountry: "India"},
	}
	in := newTestIngestor(repo, Config{})

	scraped := []types.ScrapedJob{
		{ExternalID: "email-4021337766", Title: "Senior Software Engineer", URL: "https://www.linkedin.com/jobs/view/4021337766", Location: "Bengaluru, Karnataka, India"},
		{ExternalID: "email-4021337767", Title: "Backend Developer", URL: "https://www.linkedin.com/jobs/view/4021337767", Location: "Pune, Maharashtra, India"},
		{ExternalID: "email-555", Title: "Data Analyst", URL: "https://www.linkedin.com/jobs/view/555", Location: "Austin, Texas, United States"},
	}

	var stats Stats
	require.NoError(t, in.ingest(context.Background(), scraped, &stats))

	assert.Equal(t, 1, stats.Duplicates, "already-stored posting")
	assert.Equal(t, 1, stats.Filtered, "texas posting fails the country setting")
	assert.Equal(t, 1, stats.Added)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "email-4021337767", repo.inserted[0].ExternalID)
	assert.Equal(t, 0, repo.creates, "company already existed")
}

func TestEnsureCompanyCreatesThenReuses(t *testing.T) {
	repo := &fakeRepo{}
	in := newTestIngestor(repo, Config{})

	c1, err := in.ensureCompany(context.Background())
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Equal(t, CompanyName, c1.Name)
	assert.Equal(t, "custom", c1.Platform, "custom platform keeps batch scrapes away")
	assert.True(t, c1.Active)

	c2, err := in.ensureCompany(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, 1, repo.creates)
}

func TestScrapedJobConversion(t *testing.T) {
	received := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	withID := alertJob{
		Title:    "Senior Software Engineer",
		Company:  "Acme Corp",
		Location: "Bengaluru, Karnataka, India (Remote)",
		Salary:   "$120,000 - $150,000 / year",
		URL:      "https://www.linkedin.com/comm/jobs/view/4021337766/?trackingId=abc",
		JobID:    "4021337766",
	}
	j := withID.scrapedJob(received)
	assert.Equal(t, "email-4021337766", j.ExternalID)
	assert.Equal(t, "https://www.linkedin.com/jobs/view/4021337766", j.URL,
		"tracking hop replaced by the bare job page")
	assert.Equal(t, types.LocationRemote, j.LocationType)
	assert.Equal(t, "Acme Corp · Bengaluru, Karnataka, India (Remote)\n$120,000 - $150,000 / year", j.Description)
	assert.Equal(t, types.FormatPlain, j.DescriptionFormat)
	require.NotNil(t, j.PostedAt)
	assert.Equal(t, received, *j.PostedAt)

	noID := alertJob{Title: "Engineer", URL: "https://www.linkedin.com/jobs/view/senior-eng-at-acme?utm_source=email"}
	k := noID.scrapedJob(time.Time{})
	canon := util.CanonicalizeURL(noID.URL)
	assert.Equal(t, "email-"+hashString(canon), k.ExternalID, "no numeric id falls back to a url hash")
	assert.Equal(t, canon, k.URL)
	assert.Nil(t, k.PostedAt)
	assert.Empty(t, k.Description, "no card fields, no synthetic description")
}

func TestRunOnceRequiresHost(t *testing.T) {
	in := newTestIngestor(&fakeRepo{}, Config{})
	_, err := in.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imap host")
}

func TestRunOnceSurfacesPasswordError(t *testing.T) {
	in := newTestIngestor(&fakeRepo{}, Config{Host: "imap.example.com", Username: "me@example.com"})
	in.password = func(string, string) (string, error) { return "", errors.New("keyring locked") }

	_, err := in.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyring locked")
}
