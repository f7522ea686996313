package httpapi

import (
	"context"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/config"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/store"
)

// ScrapeRunner is the slice of the orchestrator the API needs. An interface
// so handler tests can fake a run without spinning up real adapters.
type ScrapeRunner interface {
	ScrapeCompany(ctx context.Context, companyID int64, opts scrape.CompanyRunOptions) domain.FetchResult
	ScrapeCompanies(ctx context.Context, ids []int64, trigger string) (string, []domain.FetchResult, error)
	ScrapeAllCompanies(ctx context.Context, trigger string) (string, []domain.FetchResult, error)
}

type Deps struct {
	DB  *store.DB
	Hub *events.Hub
	Log arbor.ILogger

	Runner ScrapeRunner

	// Atomic stores
	CfgVal       *atomic.Value // stores config.Config
	ScrapeStatus *atomic.Value // stores httpapi.ScrapeStatus

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}
