// Package matcher invokes the external job-matching service after a scrape
// lands new jobs. The orchestrator only ever talks to the Client interface;
// deployments without a matcher wire Disabled instead.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/httpclient"
)

type Config struct {
	AutoMatchAfterScrape bool `json:"autoMatchAfterScrape"`
}

// Options drive one tracked match run. OnProgress, when set, is called with
// the running completed count after every chunk.
type Options struct {
	TriggerSource string
	CompanyID     int64
	OnProgress    func(completed int)
}

type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Client interface {
	GetConfig(ctx context.Context) (Config, error)
	MatchWithTracking(ctx context.Context, jobIDs []int64, opts Options) (Stats, error)
}

// chunkSize keeps match requests small enough that a single slow job cannot
// stall the whole run's progress reporting.
const chunkSize = 20

// HTTPClient talks to a matcher service over its JSON API.
type HTTPClient struct {
	hc      *httpclient.Client
	baseURL string
	log     arbor.ILogger
}

func NewHTTP(hc *httpclient.Client, baseURL string, log arbor.ILogger) *HTTPClient {
	return &HTTPClient{hc: hc, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

func (c *HTTPClient) GetConfig(ctx context.Context) (Config, error) {
	res, err := c.hc.Get(ctx, c.baseURL+"/api/matcher/config", httpclient.Options{})
	if err != nil {
		return Config{}, fmt.Errorf("matcher config: %w", err)
	}
	if !res.OK() {
		return Config{}, fmt.Errorf("matcher config: status %d", res.StatusCode)
	}
	var cfg Config
	if err := res.JSON(&cfg); err != nil {
		return Config{}, fmt.Errorf("matcher config: %w", err)
	}
	return cfg, nil
}

type matchRequest struct {
	JobIDs        []int64 `json:"jobIds"`
	TriggerSource string  `json:"triggerSource,omitempty"`
	CompanyID     int64   `json:"companyId,omitempty"`
}

// MatchWithTracking posts the job ids in chunks and accumulates the
// per-chunk stats. A chunk-level failure counts its whole chunk as failed
// and moves on; only a context cancellation aborts the run.
func (c *HTTPClient) MatchWithTracking(ctx context.Context, jobIDs []int64, opts Options) (Stats, error) {
	stats := Stats{Total: len(jobIDs)}
	completed := 0

	for start := 0; start < len(jobIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(jobIDs) {
			end = len(jobIDs)
		}
		chunk := jobIDs[start:end]

		if err := ctx.Err(); err != nil {
			stats.Failed += len(jobIDs) - completed
			return stats, err
		}

		succeeded, failed, err := c.matchChunk(ctx, chunk, opts)
		if err != nil {
			c.log.Warn().Int("jobs", len(chunk)).Err(err).Msg("matcher chunk failed")
			failed = len(chunk)
			succeeded = 0
		}
		stats.Succeeded += succeeded
		stats.Failed += failed
		completed += len(chunk)
		if opts.OnProgress != nil {
			opts.OnProgress(completed)
		}
	}
	return stats, nil
}

func (c *HTTPClient) matchChunk(ctx context.Context, chunk []int64, opts Options) (succeeded, failed int, err error) {
	payload, err := json.Marshal(matchRequest{
		JobIDs:        chunk,
		TriggerSource: opts.TriggerSource,
		CompanyID:     opts.CompanyID,
	})
	if err != nil {
		return 0, 0, err
	}
	res, err := c.hc.Post(ctx, c.baseURL+"/api/matcher/match", payload, httpclient.Options{})
	if err != nil {
		return 0, 0, err
	}
	if !res.OK() {
		return 0, 0, fmt.Errorf("match status %d", res.StatusCode)
	}
	var out Stats
	if err := res.JSON(&out); err != nil {
		return 0, 0, err
	}
	return out.Succeeded, out.Failed, nil
}

// Disabled is the no-matcher wiring: auto-match stays off and tracked runs
// report everything as failed without doing work.
type Disabled struct{}

func (Disabled) GetConfig(context.Context) (Config, error) {
	return Config{AutoMatchAfterScrape: false}, nil
}

func (Disabled) MatchWithTracking(_ context.Context, jobIDs []int64, _ Options) (Stats, error) {
	return Stats{Total: len(jobIDs), Failed: len(jobIDs)}, nil
}
