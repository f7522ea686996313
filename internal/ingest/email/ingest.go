package email

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/dedup"
	"jobscout-engine/internal/scrape/filter"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
	"jobscout-engine/internal/secrets"
)

// CompanyName is the synthetic company every alert posting lands under. It
// stays on the custom platform so batch scrapes never pick it up.
const CompanyName = "LinkedIn Alerts"

const (
	companyURL = "https://www.linkedin.com/jobs/"
	idPrefix   = "email"
	maxEmails  = 200
)

// EventIngested is published after every run that fetched mail.
const EventIngested = "email.ingest.completed"

// Repository is the slice of the store the ingest needs.
type Repository interface {
	GetCompanyByName(ctx context.Context, name string) (*domain.Company, error)
	CreateCompany(ctx context.Context, c *domain.Company) error
	GetExistingJobs(ctx context.Context, companyID int64) ([]domain.ExistingJob, error)
	InsertJobs(ctx context.Context, companyID int64, jobs []types.ScrapedJob) ([]int64, error)
	GetSetting(ctx context.Context, key string) (string, error)
}

// EventSink receives ingest lifecycle events. A nil sink is fine.
type EventSink interface {
	Publish(event string, payload any)
}

type Config struct {
	Host     string
	Port     int
	Username string

	// Mailbox should be a folder or label dedicated to the alerts: every
	// unseen message in it is marked read once a poll has scanned it,
	// matching or not, so the next poll starts where this one ended.
	Mailbox string

	// SubjectAny admits a message when any entry appears in its subject,
	// case-insensitively. Empty admits everything.
	SubjectAny []string

	// DefaultFilters overlay the persisted filter settings, mirroring the
	// orchestrator's precedence.
	DefaultFilters types.JobFilters
}

// Stats summarizes one ingest run.
type Stats struct {
	Emails     int `json:"emails"`
	Alerts     int `json:"alerts"`
	Jobs       int `json:"jobs"`
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Filtered   int `json:"filtered"`
}

type Ingestor struct {
	repo   Repository
	events EventSink
	log    arbor.ILogger
	cfg    Config

	// password is resolved per run so a credential update through the API
	// takes effect without a restart.
	password func(username, host string) (string, error)
}

func NewIngestor(repo Repository, events EventSink, log arbor.ILogger, cfg Config) *Ingestor {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Ingestor{
		repo:   repo,
		events: events,
		log:    log,
		cfg:    cfg,
		password: func(username, host string) (string, error) {
			return secrets.GetIMAPPassword(secrets.IMAPAccount(username, host))
		},
	}
}

// RunOnce drains unseen alert mail once: fetch, parse, dedup, filter,
// insert, then mark the scanned messages read. Messages are marked read only
// after their postings are safely stored, so a failed run is retried whole
// on the next poll; duplicate inserts from such retries are absorbed by the
// external-id dedup.
func (in *Ingestor) RunOnce(ctx context.Context) (Stats, error) {
	if in.cfg.Host == "" || in.cfg.Username == "" {
		return Stats{}, errors.New("email ingest needs an imap host and username")
	}
	password, err := in.password(in.cfg.Username, in.cfg.Host)
	if err != nil {
		return Stats{}, fmt.Errorf("imap password: %w", err)
	}

	c, err := dial(ctx, in.cfg.Host, in.cfg.Port, in.cfg.Username, password)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if err := c.Logout().Wait(); err != nil {
			in.log.Debug().Err(err).Msg("imap logout")
		}
		_ = c.Close()
	}()

	msgs, err := fetchUnseen(ctx, c, in.cfg.Mailbox, maxEmails)
	if err != nil {
		return Stats{}, err
	}
	if len(msgs) == 0 {
		return Stats{}, nil
	}

	jobs, scanned, stats := in.collectJobs(msgs)

	if len(jobs) > 0 {
		if err := in.ingest(ctx, jobs, &stats); err != nil {
			return stats, err
		}
	}

	if err := markSeen(c, scanned); err != nil {
		return stats, err
	}

	in.log.Info().
		Int("emails", stats.Emails).
		Int("alerts", stats.Alerts).
		Int("added", stats.Added).
		Int("duplicates", stats.Duplicates).
		Int("filtered", stats.Filtered).
		Msg("email ingest complete")
	if in.events != nil {
		in.events.Publish(EventIngested, stats)
	}
	return stats, nil
}

// collectJobs parses every fetched message into postings and reports which
// UIDs were scanned. Non-alert messages are scanned too; they just
// contribute nothing.
func (in *Ingestor) collectJobs(msgs []Message) ([]types.ScrapedJob, []imap.UID, Stats) {
	stats := Stats{Emails: len(msgs)}
	scanned := make([]imap.UID, 0, len(msgs))
	var jobs []types.ScrapedJob

	for _, m := range msgs {
		scanned = append(scanned, m.UID)

		subject, _, htmlBody := messageParts(m.Raw, m.Subject)
		if len(in.cfg.SubjectAny) > 0 && !matchesAny(subject, in.cfg.SubjectAny) {
			continue
		}
		if !isAlert(m.From, subject, htmlBody) {
			continue
		}

		cards, err := parseAlert(htmlBody)
		if err != nil {
			in.log.Debug().Str("subject", subject).Err(err).Msg("alert parse failed")
			continue
		}
		if len(cards) == 0 {
			continue
		}

		stats.Alerts++
		for _, card := range cards {
			jobs = append(jobs, card.scrapedJob(m.Date))
		}
	}

	stats.Jobs = len(jobs)
	return jobs, scanned, stats
}

// ingest routes postings through the shared pipeline: dedup against the
// synthetic company's stored jobs (and each other), preference filters,
// then insert.
func (in *Ingestor) ingest(ctx context.Context, scraped []types.ScrapedJob, stats *Stats) error {
	company, err := in.ensureCompany(ctx)
	if err != nil {
		return err
	}

	existing, err := in.repo.GetExistingJobs(ctx, company.ID)
	if err != nil {
		return fmt.Errorf("existing jobs: %w", err)
	}

	res := dedup.BatchDeduplicate(scraped, existing, 0)
	stats.Duplicates = len(res.Duplicates)

	kept, breakdown := filter.ApplyFilters(res.NewJobs, in.loadFilters(ctx))
	stats.Filtered = len(res.NewJobs) - breakdown.FinalCount

	if len(kept) == 0 {
		return nil
	}
	ids, err := in.repo.InsertJobs(ctx, company.ID, kept)
	if err != nil {
		return fmt.Errorf("insert jobs: %w", err)
	}
	stats.Added = len(ids)
	return nil
}

// ensureCompany finds or creates the synthetic company.
func (in *Ingestor) ensureCompany(ctx context.Context) (*domain.Company, error) {
	c, err := in.repo.GetCompanyByName(ctx, CompanyName)
	if err != nil {
		return nil, fmt.Errorf("company lookup: %w", err)
	}
	if c != nil {
		return c, nil
	}

	c = &domain.Company{
		Name:      CompanyName,
		CareerURL: companyURL,
		Platform:  string(types.PlatformCustom),
		Active:    true,
	}
	if err := in.repo.CreateCompany(ctx, c); err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	in.log.Info().Int64("company_id", c.ID).Msg("created alerts company")
	return c, nil
}

// loadFilters reads the persisted filter settings and overlays the
// configured defaults, the same precedence scrapes use.
func (in *Ingestor) loadFilters(ctx context.Context) types.JobFilters {
	var f types.JobFilters
	if v, err := in.repo.GetSetting(ctx, scrape.SettingFilterCountry); err == nil {
		f.Country = strings.TrimSpace(v)
	}
	if v, err := in.repo.GetSetting(ctx, scrape.SettingFilterCity); err == nil {
		f.City = strings.TrimSpace(v)
	}
	if v, err := in.repo.GetSetting(ctx, scrape.SettingFilterTitleKeywords); err == nil && strings.TrimSpace(v) != "" {
		var kws []string
		if err := json.Unmarshal([]byte(v), &kws); err == nil {
			f.TitleKeywords = kws
		}
	}
	return filter.Overlay(f, in.cfg.DefaultFilters)
}

// scrapedJob converts a parsed card to the scraper wire shape. Alerts carry
// no real description, so one is assembled from the card fields; external
// ids are email-{linkedin id} when the link exposes the id and a url hash
// otherwise, either way stable across re-sent alerts.
func (c alertJob) scrapedJob(received time.Time) types.ScrapedJob {
	jobURL := util.CanonicalizeURL(c.URL)
	id := c.JobID
	if id != "" {
		// tracking hops vary per email; the bare job page does not
		jobURL = "https://www.linkedin.com/jobs/view/" + id
	} else {
		id = hashString(jobURL)
	}

	loc, locType := util.NormalizeLocation(c.Location)

	var lines []string
	if c.Company != "" || c.Location != "" {
		lines = append(lines, strings.TrimSpace(strings.Trim(c.Company+" · "+c.Location, " ·")))
	}
	if c.Salary != "" {
		lines = append(lines, c.Salary)
	}

	var posted *time.Time
	if !received.IsZero() {
		t := received.UTC()
		posted = &t
	}

	return types.ScrapedJob{
		ExternalID:        idPrefix + "-" + id,
		Title:             c.Title,
		URL:               jobURL,
		Location:          loc,
		LocationType:      locType,
		Description:       strings.Join(lines, "\n"),
		DescriptionFormat: types.FormatPlain,
		Salary:            c.Salary,
		PostedAt:          posted,
	}
}

func matchesAny(s string, any []string) bool {
	low := strings.ToLower(s)
	for _, a := range any {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(low, a) {
			return true
		}
	}
	return false
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
