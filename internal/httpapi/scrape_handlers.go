package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/store"
)

type ScrapeHandler struct {
	DB           *store.DB
	Runner       ScrapeRunner
	ScrapeStatus *atomic.Value // httpapi.ScrapeStatus
	Log          arbor.ILogger
}

type scrapeRunReq struct {
	CompanyID  int64   `json:"companyId"`
	CompanyIDs []int64 `json:"companyIds"`
}

// Run kicks off a scrape in the background and returns immediately. The
// caller watches /events or polls /scrape/status; session rows hold the
// per-company detail.
func (h ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req scrapeRunReq
	if r.Body != nil {
		// an empty body means "scrape everything"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	st := h.ScrapeStatus.Load().(ScrapeStatus)
	if st.Running {
		WriteJSON(w, http.StatusConflict, map[string]any{"ok": false, "msg": "scrape already running"})
		return
	}

	h.ScrapeStatus.Store(ScrapeStatus{
		LastRunAt:     time.Now().Format(time.RFC3339),
		Running:       true,
		LastError:     "",
		LastAdded:     0,
		LastOkAt:      st.LastOkAt,
		LastSessionID: st.LastSessionID,
	})

	go h.runAsync(req)

	writeJSON(w, map[string]any{"ok": true})
}

func (h ScrapeHandler) runAsync(req scrapeRunReq) {
	// detached from the request; a closed HTTP connection must not kill
	// a half-finished batch
	ctx := context.Background()

	var (
		sessionID string
		results   []domain.FetchResult
		err       error
	)
	switch {
	case req.CompanyID > 0:
		res := h.Runner.ScrapeCompany(ctx, req.CompanyID, scrape.CompanyRunOptions{
			TriggerSource: domain.TriggerManual,
		})
		results = []domain.FetchResult{res}
	case len(req.CompanyIDs) > 0:
		sessionID, results, err = h.Runner.ScrapeCompanies(ctx, req.CompanyIDs, domain.TriggerManual)
	default:
		sessionID, results, err = h.Runner.ScrapeAllCompanies(ctx, domain.TriggerManual)
	}

	added := 0
	firstErr := ""
	for _, res := range results {
		added += res.JobsAdded
		if firstErr == "" && res.Error != "" {
			firstErr = res.Error
		}
	}
	if err != nil {
		firstErr = err.Error()
	}

	now := time.Now().Format(time.RFC3339)
	next := h.ScrapeStatus.Load().(ScrapeStatus)
	next.Running = false
	next.LastRunAt = now
	next.LastAdded = added
	if sessionID != "" {
		next.LastSessionID = sessionID
	}
	next.LastError = firstErr
	if firstErr == "" {
		next.LastOkAt = now
	}
	h.ScrapeStatus.Store(next)

	if err != nil {
		h.Log.Warn().Err(err).Msg("manual scrape failed")
	}
}

// Status merges the atomic run flag with the most recent session row so the
// dashboard gets both "is anything running" and "how far along".
func (h ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.ScrapeStatus.Load().(ScrapeStatus)

	var current *domain.Session
	sessions, err := h.DB.ListSessions(r.Context(), 5)
	if err == nil {
		for i := range sessions {
			if sessions[i].Status == domain.SessionInProgress {
				current = &sessions[i]
				break
			}
		}
	}

	writeJSON(w, map[string]any{
		"status":  st,
		"session": current,
	})
}
