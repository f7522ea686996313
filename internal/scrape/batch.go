package scrape

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape/types"
)

// ScrapeAllCompanies runs every active company through one session.
func (o *Orchestrator) ScrapeAllCompanies(ctx context.Context, trigger string) (string, []domain.FetchResult, error) {
	companies, err := o.repo.GetActiveCompanies(ctx)
	if err != nil {
		return "", nil, err
	}
	return o.runBatch(ctx, companies, trigger)
}

// ScrapeCompanies runs the active companies matching ids, in active-list
// order. Unknown or inactive ids are silently dropped.
func (o *Orchestrator) ScrapeCompanies(ctx context.Context, ids []int64, trigger string) (string, []domain.FetchResult, error) {
	companies, err := o.repo.GetActiveCompanies(ctx)
	if err != nil {
		return "", nil, err
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	selected := make([]domain.Company, 0, len(ids))
	for _, c := range companies {
		if want[c.ID] {
			selected = append(selected, c)
		}
	}
	return o.runBatch(ctx, selected, trigger)
}

// runBatch fans the companies out over N workers pulling from a shared
// cursor. Results keep input order; session progress writes are serialized
// through one writer goroutine so counters never interleave.
func (o *Orchestrator) runBatch(ctx context.Context, companies []domain.Company, trigger string) (string, []domain.FetchResult, error) {
	if trigger == "" {
		trigger = domain.TriggerManual
	}

	// custom-platform companies are skip-only; a batch does not bother
	// calling them at all
	eligible := make([]domain.Company, 0, len(companies))
	for _, c := range companies {
		platform := types.Platform(c.Platform)
		if platform == "" {
			platform = DetectPlatform(c.CareerURL)
		}
		if platform != types.PlatformCustom {
			eligible = append(eligible, c)
		}
	}

	sess := &domain.Session{
		ID:             uuid.NewString(),
		TriggerSource:  trigger,
		Status:         domain.SessionInProgress,
		CompaniesTotal: len(eligible),
		StartedAt:      time.Now().UTC(),
	}
	if err := o.repo.CreateSession(ctx, sess); err != nil {
		return "", nil, err
	}
	o.publish(EventSessionStarted, sess)

	workers := o.maxParallel(ctx)
	if workers > len(eligible) {
		workers = len(eligible)
	}
	o.slog.BatchStart(sess.ID, len(eligible), workers)

	results := make([]domain.FetchResult, len(eligible))
	picked := make([]bool, len(eligible))

	progress := make(chan domain.FetchResult)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		var agg domain.SessionProgress
		for r := range progress {
			agg.CompaniesCompleted++
			agg.TotalJobsFound += r.JobsFound
			agg.TotalJobsAdded += r.JobsAdded
			agg.TotalJobsFiltered += r.JobsFiltered
			agg.TotalJobsArchived += r.JobsArchived
			if err := o.repo.UpdateSessionProgress(ctx, sess.ID, agg); err != nil {
				o.log.Warn().Str("session", sess.ID).Err(err).Msg("session progress write failed")
			}
			o.publish(EventCompanyCompleted, r)
		}
	}()

	var cursor int64 = -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1))
				if i >= len(eligible) {
					return
				}
				// stop is observed at task pickup, never mid-fetch
				inProgress, err := o.repo.IsSessionInProgress(ctx, sess.ID)
				if err != nil || !inProgress {
					return
				}
				picked[i] = true
				res := o.scrapeOne(ctx, eligible[i].ID, sess.ID, trigger, nil)
				results[i] = res
				progress <- res
			}
		}()
	}
	wg.Wait()
	close(progress)
	<-writerDone

	executed := make([]domain.FetchResult, 0, len(results))
	for i, r := range results {
		if picked[i] {
			executed = append(executed, r)
		}
	}

	status := domain.SessionStopped
	if inProgress, err := o.repo.IsSessionInProgress(ctx, sess.ID); err == nil && inProgress {
		status = domain.SessionStatusFor(executed)
		if err := o.repo.CompleteSession(ctx, sess.ID, status); err != nil {
			o.log.Warn().Str("session", sess.ID).Err(err).Msg("session complete failed")
		}
	}
	o.slog.BatchComplete(sess.ID, status, len(executed))
	o.publish(EventSessionCompleted, map[string]any{"sessionId": sess.ID, "status": status})

	return sess.ID, executed, nil
}
