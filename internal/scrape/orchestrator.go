package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/matcher"
	"jobscout-engine/internal/scrape/dedup"
	"jobscout-engine/internal/scrape/filter"
	"jobscout-engine/internal/scrape/types"
)

// Persisted settings keys the orchestrator reads.
const (
	SettingFilterCountry       = "scraper_filter_country"
	SettingFilterCity          = "scraper_filter_city"
	SettingFilterTitleKeywords = "scraper_filter_title_keywords"
	SettingMaxParallelScrapes  = "scraper_max_parallel_scrapes"
)

// Event names published to the sink as scrapes progress.
const (
	EventSessionStarted   = "scrape.session.started"
	EventCompanyCompleted = "scrape.company.completed"
	EventSessionCompleted = "scrape.session.completed"
)

// Repository is the persistence contract the orchestrator drives. The store
// package implements it; tests substitute fakes.
type Repository interface {
	GetCompany(ctx context.Context, id int64) (*domain.Company, error)
	GetActiveCompanies(ctx context.Context) ([]domain.Company, error)
	GetExistingJobs(ctx context.Context, companyID int64) ([]domain.ExistingJob, error)
	GetSetting(ctx context.Context, key string) (string, error)

	InsertJobs(ctx context.Context, companyID int64, jobs []types.ScrapedJob) ([]int64, error)
	UpdateExistingJobsFromScrape(ctx context.Context, updates []domain.JobUpdate) (int, error)
	ReopenScraperArchivedJobs(ctx context.Context, companyID int64, externalIDs []string) (int, error)
	ArchiveMissingJobs(ctx context.Context, companyID int64, openExternalIDs []string, archivableStatuses []string) (int, error)
	UpdateCompany(ctx context.Context, id int64, patch domain.CompanyUpdate) error

	CreateSession(ctx context.Context, s *domain.Session) error
	IsSessionInProgress(ctx context.Context, id string) (bool, error)
	UpdateSessionProgress(ctx context.Context, id string, p domain.SessionProgress) error
	CompleteSession(ctx context.Context, id string, status string) error

	CreateScrapingLog(ctx context.Context, row *domain.ScrapingLog) (int64, error)
	UpdateScrapingLog(ctx context.Context, id int64, patch domain.ScrapingLogUpdate) error
	GetMatchableJobIDs(ctx context.Context, ids []int64) ([]int64, error)
}

// EventSink receives scrape lifecycle events. A nil sink is fine.
type EventSink interface {
	Publish(event string, payload any)
}

type OrchestratorConfig struct {
	// DefaultFilters sit between per-run filters and persisted settings.
	DefaultFilters types.JobFilters
	// TitleSimThreshold for dedupe; zero means dedup.DefaultThreshold.
	TitleSimThreshold float64
	// DefaultMaxParallel bounds batch workers when the setting is absent.
	DefaultMaxParallel int
	// CompanyTimeout caps one adapter call.
	CompanyTimeout time.Duration
}

// archivableStatuses are the job states a scrape is allowed to archive when
// their external ids disappear from the board.
var archivableStatuses = []string{
	domain.JobStatusNew,
	domain.JobStatusViewed,
	domain.JobStatusInterested,
	domain.JobStatusRejected,
}

// Orchestrator runs the scrape pipeline: adapter call, reopen, archive,
// dedupe, description hydration, filter, insert, log row, matcher hand-off.
type Orchestrator struct {
	repo    Repository
	reg     *Registry
	matcher matcher.Client
	events  EventSink
	slog    *ScraperLogger
	log     arbor.ILogger
	cfg     OrchestratorConfig
}

func NewOrchestrator(repo Repository, reg *Registry, m matcher.Client, events EventSink, log arbor.ILogger, cfg OrchestratorConfig) *Orchestrator {
	if cfg.DefaultMaxParallel <= 0 {
		cfg.DefaultMaxParallel = 3
	}
	if cfg.CompanyTimeout <= 0 {
		cfg.CompanyTimeout = 5 * time.Minute
	}
	if m == nil {
		m = matcher.Disabled{}
	}
	return &Orchestrator{
		repo:    repo,
		reg:     reg,
		matcher: m,
		events:  events,
		slog:    NewScraperLogger(log),
		log:     log,
		cfg:     cfg,
	}
}

func (o *Orchestrator) publish(event string, payload any) {
	if o.events != nil {
		o.events.Publish(event, payload)
	}
}

// CompanyRunOptions tune one company scrape. SessionID is set when the call
// is a sub-task of a batch; a standalone run gets its own session.
type CompanyRunOptions struct {
	SessionID     string
	TriggerSource string
	Filters       *types.JobFilters
}

// ScrapeCompany runs the full pipeline for one company. Standalone runs are
// wrapped in their own single-company session so every scrape is auditable
// the same way.
func (o *Orchestrator) ScrapeCompany(ctx context.Context, companyID int64, opts CompanyRunOptions) domain.FetchResult {
	trigger := opts.TriggerSource
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	sessionID := opts.SessionID
	ownSession := sessionID == ""
	if ownSession {
		s := &domain.Session{
			ID:             uuid.NewString(),
			TriggerSource:  trigger,
			Status:         domain.SessionInProgress,
			CompaniesTotal: 1,
			StartedAt:      time.Now().UTC(),
		}
		if err := o.repo.CreateSession(ctx, s); err != nil {
			o.log.Warn().Err(err).Msg("session create failed, scraping without one")
		} else {
			sessionID = s.ID
		}
	}

	res := o.scrapeOne(ctx, companyID, sessionID, trigger, opts.Filters)

	if ownSession && sessionID != "" {
		_ = o.repo.UpdateSessionProgress(ctx, sessionID, domain.SessionProgress{
			CompaniesCompleted: 1,
			TotalJobsFound:     res.JobsFound,
			TotalJobsAdded:     res.JobsAdded,
			TotalJobsFiltered:  res.JobsFiltered,
			TotalJobsArchived:  res.JobsArchived,
		})
		_ = o.repo.CompleteSession(ctx, sessionID, domain.SessionStatusFor([]domain.FetchResult{res}))
	}
	o.publish(EventCompanyCompleted, res)
	return res
}

// scrapeOne is the per-company pipeline. It never returns an error: every
// failure becomes an error log row and an error FetchResult so a batch can
// keep moving.
func (o *Orchestrator) scrapeOne(ctx context.Context, companyID int64, sessionID, trigger string, override *types.JobFilters) domain.FetchResult {
	started := time.Now()

	company, err := o.repo.GetCompany(ctx, companyID)
	if err != nil {
		return o.errorResult(ctx, sessionID, nil, companyID, "", started, fmt.Sprintf("loading company: %v", err))
	}
	if company == nil {
		return o.errorResult(ctx, sessionID, nil, companyID, "", started, fmt.Sprintf("company %d not found", companyID))
	}

	platform := types.Platform(company.Platform)
	if platform == "" {
		platform = DetectPlatform(company.CareerURL)
	}
	if platform == types.PlatformCustom {
		return o.skippedResult(ctx, sessionID, company, started)
	}

	o.slog.Start(company.Name, platform)

	existing, err := o.repo.GetExistingJobs(ctx, companyID)
	if err != nil {
		return o.errorResult(ctx, sessionID, company, companyID, platform, started, fmt.Sprintf("loading existing jobs: %v", err))
	}

	// ids backing a non-empty description can skip detail fetches; the rest
	// stay eligible for re-hydration
	existingIDs := make(map[string]bool, len(existing))
	existingByID := make(map[int64]domain.ExistingJob, len(existing))
	for _, j := range existing {
		existingByID[j.ID] = j
		if j.ExternalID != "" && strings.TrimSpace(j.Description) != "" {
			existingIDs[j.ExternalID] = true
		}
	}

	filters := o.loadFilters(ctx, override)

	sctx, cancel := context.WithTimeout(ctx, o.cfg.CompanyTimeout)
	result := o.reg.Scrape(sctx, company.CareerURL, platform, types.ScrapeOptions{
		BoardToken:          company.BoardToken,
		Filters:             filters,
		ExistingExternalIDs: existingIDs,
	})
	cancel()

	if result.Outcome == types.OutcomeError {
		return o.errorResult(ctx, sessionID, company, companyID, platform, started, result.Error)
	}

	earlyTotal := 0
	if result.EarlyFiltered != nil && result.EarlyFiltered.Total > 0 {
		earlyTotal = result.EarlyFiltered.Total
		o.slog.FetchedWithEarlyFilter(company.Name, platform, len(result.Jobs), result.EarlyFiltered)
	} else {
		o.slog.Fetched(company.Name, platform, len(result.Jobs))
	}

	openIDs := result.OpenExternalIDs
	if len(openIDs) == 0 {
		for _, j := range result.Jobs {
			openIDs = append(openIDs, j.ExternalID)
		}
	}
	openIDs = uniqueStrings(openIDs)

	reopened := 0
	if len(openIDs) > 0 {
		n, err := o.repo.ReopenScraperArchivedJobs(ctx, companyID, openIDs)
		if err != nil {
			o.log.Warn().Str("company", company.Name).Err(err).Msg("reopen failed")
		} else {
			reopened = n
		}
	}
	if reopened > 0 {
		o.log.Info().Str("company", company.Name).Int("reopened", reopened).Msg("reopened archived jobs")
	}

	archived := o.archiveMissing(ctx, company, platform, existing, openIDs, result.OpenExternalIDsComplete)

	dres := dedup.BatchDeduplicate(result.Jobs, existing, o.cfg.TitleSimThreshold)

	updated := o.hydrateExisting(ctx, company.Name, existingByID, dres.Duplicates)

	keptJobs, breakdown := filter.ApplyFilters(dres.NewJobs, filters)
	o.slog.Filtered(company.Name, breakdown)
	lateDrops := len(dres.NewJobs) - len(keptJobs)

	var insertedIDs []int64
	if len(keptJobs) > 0 {
		insertedIDs, err = o.repo.InsertJobs(ctx, companyID, keptJobs)
		if err != nil {
			return o.errorResult(ctx, sessionID, company, companyID, platform, started, fmt.Sprintf("inserting jobs: %v", err))
		}
	}

	o.updateCompanyMeta(ctx, company, platform, result.DetectedBoardToken)

	status := string(types.OutcomePartial)
	if result.Outcome == types.OutcomeSuccess {
		status = string(types.OutcomeSuccess)
	}
	now := time.Now().UTC()
	row := &domain.ScrapingLog{
		SessionID:    sessionID,
		CompanyID:    companyID,
		CompanyName:  company.Name,
		Platform:     string(platform),
		Status:       status,
		JobsFound:    len(result.Jobs),
		JobsAdded:    len(insertedIDs),
		JobsUpdated:  updated,
		JobsFiltered: lateDrops + earlyTotal,
		JobsArchived: archived,
		ErrorMessage: result.Error,
		StartedAt:    started.UTC(),
		CompletedAt:  &now,
		DurationMS:   time.Since(started).Milliseconds(),
	}
	logID, err := o.repo.CreateScrapingLog(ctx, row)
	if err != nil {
		o.log.Warn().Str("company", company.Name).Err(err).Msg("scraping log write failed")
	}

	o.slog.Added(company.Name, len(insertedIDs), updated, archived)

	if len(insertedIDs) > 0 && logID > 0 {
		o.maybeAutoMatch(ctx, logID, companyID, trigger, insertedIDs)
	}

	return domain.FetchResult{
		CompanyID:    companyID,
		CompanyName:  company.Name,
		Platform:     string(platform),
		Success:      result.Outcome == types.OutcomeSuccess,
		Outcome:      string(result.Outcome),
		JobsFound:    len(result.Jobs),
		JobsAdded:    len(insertedIDs),
		JobsUpdated:  updated,
		JobsFiltered: lateDrops + earlyTotal,
		JobsArchived: archived,
		LogID:        logID,
		Duration:     time.Since(started),
		Error:        result.Error,
	}
}

// archiveMissing runs the archive step. Incomplete enumerations never
// archive; Uber additionally skips when too many ids went missing at once,
// since its search API sometimes truncates silently.
func (o *Orchestrator) archiveMissing(ctx context.Context, company *domain.Company, platform types.Platform, existing []domain.ExistingJob, openIDs []string, complete bool) int {
	if !complete {
		o.log.Info().Str("company", company.Name).Msg("open set incomplete, skipping archive")
		return 0
	}

	if platform == types.PlatformUber {
		openSet := make(map[string]bool, len(openIDs))
		for _, id := range openIDs {
			openSet[id] = true
		}
		archivable, missing := 0, 0
		for _, j := range existing {
			if j.ExternalID == "" || !isArchivable(j.Status) {
				continue
			}
			archivable++
			if !openSet[j.ExternalID] {
				missing++
			}
		}
		threshold := int(math.Max(5, math.Ceil(0.05*float64(archivable))))
		if missing > threshold {
			o.log.Warn().Str("company", company.Name).
				Int("missing", missing).Int("threshold", threshold).
				Msg("uber archive guard tripped, skipping archive")
			return 0
		}
	}

	n, err := o.repo.ArchiveMissingJobs(ctx, company.ID, openIDs, archivableStatuses)
	if err != nil {
		o.log.Warn().Str("company", company.Name).Err(err).Msg("archive failed")
		return 0
	}
	return n
}

func isArchivable(status string) bool {
	for _, s := range archivableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// hydrateExisting backfills descriptions onto known jobs. Only exact-id and
// exact-url duplicates qualify; title-similarity matches are too fuzzy to
// overwrite a stored description.
func (o *Orchestrator) hydrateExisting(ctx context.Context, companyName string, existingByID map[int64]domain.ExistingJob, dups []dedup.Duplicate) int {
	var updates []domain.JobUpdate
	for _, d := range dups {
		if d.Synthetic {
			continue
		}
		if d.Reason != dedup.MatchExternalID && d.Reason != dedup.MatchURL {
			continue
		}
		desc := strings.TrimSpace(d.Job.Description)
		if desc == "" {
			continue
		}
		ex, ok := existingByID[d.ExistingJobID]
		if !ok {
			continue
		}
		if strings.TrimSpace(ex.Description) == desc {
			continue
		}
		updates = append(updates, domain.JobUpdate{
			ID:                d.ExistingJobID,
			Description:       d.Job.Description,
			DescriptionFormat: string(d.Job.DescriptionFormat),
		})
	}
	if len(updates) == 0 {
		return 0
	}
	n, err := o.repo.UpdateExistingJobsFromScrape(ctx, updates)
	if err != nil {
		o.log.Warn().Str("company", companyName).Err(err).Msg("description hydration failed")
		return 0
	}
	return n
}

func (o *Orchestrator) updateCompanyMeta(ctx context.Context, company *domain.Company, platform types.Platform, detectedToken string) {
	now := time.Now().UTC()
	patch := domain.CompanyUpdate{LastScrapedAt: &now}
	if company.BoardToken == "" && detectedToken != "" {
		patch.BoardToken = &detectedToken
	}
	if company.Platform == "" {
		p := string(platform)
		patch.Platform = &p
	}
	if err := o.repo.UpdateCompany(ctx, company.ID, patch); err != nil {
		o.log.Warn().Str("company", company.Name).Err(err).Msg("company metadata update failed")
	}
}

// maybeAutoMatch stamps the log row and spawns the background match run.
// Config lookup failures just leave auto-match off for this scrape.
func (o *Orchestrator) maybeAutoMatch(ctx context.Context, logID, companyID int64, trigger string, insertedIDs []int64) {
	cfg, err := o.matcher.GetConfig(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("matcher config unavailable, skipping auto-match")
		return
	}
	if !cfg.AutoMatchAfterScrape {
		return
	}

	matchable, err := o.repo.GetMatchableJobIDs(ctx, insertedIDs)
	if err != nil {
		o.log.Warn().Err(err).Msg("matchable lookup failed, skipping auto-match")
		return
	}
	if len(matchable) == 0 {
		return
	}

	pending := domain.MatcherPending
	total := len(matchable)
	if err := o.repo.UpdateScrapingLog(ctx, logID, domain.ScrapingLogUpdate{
		MatcherStatus:    &pending,
		MatcherJobsTotal: &total,
	}); err != nil {
		o.log.Warn().Err(err).Msg("matcher pending stamp failed")
		return
	}

	go o.runMatch(logID, companyID, trigger, matchable)
}

// runMatch is the background matcher task. It outlives the scrape call, so
// it runs on its own context; failures land on the log row and nowhere else.
func (o *Orchestrator) runMatch(logID, companyID int64, trigger string, ids []int64) {
	ctx := context.Background()
	started := time.Now()

	inProgress := domain.MatcherInProgress
	_ = o.repo.UpdateScrapingLog(ctx, logID, domain.ScrapingLogUpdate{MatcherStatus: &inProgress})

	stats, err := o.matcher.MatchWithTracking(ctx, ids, matcher.Options{
		TriggerSource: trigger,
		CompanyID:     companyID,
		OnProgress: func(completed int) {
			n := completed
			_ = o.repo.UpdateScrapingLog(ctx, logID, domain.ScrapingLogUpdate{MatcherJobsCompleted: &n})
		},
	})

	terminal := domain.MatcherCompleted
	if err != nil || (stats.Total > 0 && stats.Failed == stats.Total) {
		terminal = domain.MatcherFailed
	}
	if err != nil {
		o.log.Warn().Int64("log_id", logID).Err(err).Msg("background match run failed")
	}
	durMS := time.Since(started).Milliseconds()
	_ = o.repo.UpdateScrapingLog(ctx, logID, domain.ScrapingLogUpdate{
		MatcherStatus:     &terminal,
		MatcherErrorCount: &stats.Failed,
		MatcherDurationMS: &durMS,
	})
}

// loadFilters layers per-run filters over orchestrator defaults over
// persisted settings, field by field.
func (o *Orchestrator) loadFilters(ctx context.Context, override *types.JobFilters) types.JobFilters {
	f := o.settingsFilters(ctx)
	f = filter.Overlay(f, o.cfg.DefaultFilters)
	if override != nil {
		f = filter.Overlay(f, *override)
	}
	return f
}

func (o *Orchestrator) settingsFilters(ctx context.Context) types.JobFilters {
	var f types.JobFilters
	if v, err := o.repo.GetSetting(ctx, SettingFilterCountry); err == nil {
		f.Country = strings.TrimSpace(v)
	}
	if v, err := o.repo.GetSetting(ctx, SettingFilterCity); err == nil {
		f.City = strings.TrimSpace(v)
	}
	if v, err := o.repo.GetSetting(ctx, SettingFilterTitleKeywords); err == nil && strings.TrimSpace(v) != "" {
		var kws []string
		if err := json.Unmarshal([]byte(v), &kws); err != nil {
			o.log.Debug().Str("value", v).Err(err).Msg("bad title keywords setting")
		} else {
			f.TitleKeywords = kws
		}
	}
	return f
}

// maxParallel reads the worker-count setting, clamped to [1,10]; anything
// unusable falls back to the configured default.
func (o *Orchestrator) maxParallel(ctx context.Context) int {
	raw, err := o.repo.GetSetting(ctx, SettingMaxParallelScrapes)
	if err != nil || strings.TrimSpace(raw) == "" {
		return o.cfg.DefaultMaxParallel
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > 10 {
		return o.cfg.DefaultMaxParallel
	}
	return n
}

// skippedResult records a custom-platform company as skipped-but-success.
func (o *Orchestrator) skippedResult(ctx context.Context, sessionID string, company *domain.Company, started time.Time) domain.FetchResult {
	o.log.Info().Str("company", company.Name).Msg("custom platform, skipping scrape")
	now := time.Now().UTC()
	row := &domain.ScrapingLog{
		SessionID:   sessionID,
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Platform:    string(types.PlatformCustom),
		Status:      string(types.OutcomeSuccess),
		StartedAt:   started.UTC(),
		CompletedAt: &now,
		DurationMS:  time.Since(started).Milliseconds(),
	}
	logID, err := o.repo.CreateScrapingLog(ctx, row)
	if err != nil {
		o.log.Warn().Str("company", company.Name).Err(err).Msg("scraping log write failed")
	}
	return domain.FetchResult{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		Platform:    string(types.PlatformCustom),
		Success:     true,
		Outcome:     string(types.OutcomeSuccess),
		LogID:       logID,
		Duration:    time.Since(started),
	}
}

func (o *Orchestrator) errorResult(ctx context.Context, sessionID string, company *domain.Company, companyID int64, platform types.Platform, started time.Time, msg string) domain.FetchResult {
	name := ""
	if company != nil {
		name = company.Name
	}
	o.slog.Error(name, platform, msg)

	now := time.Now().UTC()
	row := &domain.ScrapingLog{
		SessionID:    sessionID,
		CompanyID:    companyID,
		CompanyName:  name,
		Platform:     string(platform),
		Status:       string(types.OutcomeError),
		ErrorMessage: msg,
		StartedAt:    started.UTC(),
		CompletedAt:  &now,
		DurationMS:   time.Since(started).Milliseconds(),
	}
	logID, err := o.repo.CreateScrapingLog(ctx, row)
	if err != nil {
		o.log.Warn().Int64("company_id", companyID).Err(err).Msg("scraping log write failed")
	}

	return domain.FetchResult{
		CompanyID:   companyID,
		CompanyName: name,
		Platform:    string(platform),
		Success:     false,
		Outcome:     string(types.OutcomeError),
		LogID:       logID,
		Duration:    time.Since(started),
		Error:       msg,
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
