package scrape

import (
	"github.com/ternarybob/arbor"

	"jobscout-engine/internal/scrape/filter"
	"jobscout-engine/internal/scrape/types"
)

// ScraperLogger keeps scrape progress lines keyed by company and platform so
// a batch of interleaved workers still reads coherently.
type ScraperLogger struct {
	log arbor.ILogger
}

func NewScraperLogger(log arbor.ILogger) *ScraperLogger {
	return &ScraperLogger{log: log}
}

func (l *ScraperLogger) Start(company string, platform types.Platform) {
	l.log.Info().Str("company", company).Str("platform", string(platform)).Msg("scrape started")
}

func (l *ScraperLogger) Fetched(company string, platform types.Platform, found int) {
	l.log.Info().Str("company", company).Str("platform", string(platform)).
		Int("found", found).Msg("scrape fetched")
}

func (l *ScraperLogger) FetchedWithEarlyFilter(company string, platform types.Platform, found int, early *types.EarlyFilterStats) {
	l.log.Info().Str("company", company).Str("platform", string(platform)).
		Int("found", found).
		Int("early_filtered", early.Total).
		Int("by_country", early.Country).
		Int("by_city", early.City).
		Int("by_title", early.Title).
		Msg("scrape fetched")
}

func (l *ScraperLogger) Filtered(company string, b filter.Breakdown) {
	l.log.Info().Str("company", company).
		Int("failed_country", b.FailedCountry).
		Int("failed_city", b.FailedCity).
		Int("failed_title", b.FailedTitle).
		Int("kept", b.FinalCount).
		Msg("scrape filtered")
}

func (l *ScraperLogger) Added(company string, added, updated, archived int) {
	l.log.Info().Str("company", company).
		Int("added", added).Int("updated", updated).Int("archived", archived).
		Msg("scrape stored")
}

func (l *ScraperLogger) Error(company string, platform types.Platform, msg string) {
	l.log.Warn().Str("company", company).Str("platform", string(platform)).
		Str("error", msg).Msg("scrape failed")
}

func (l *ScraperLogger) BatchStart(sessionID string, companies, workers int) {
	l.log.Info().Str("session", sessionID).
		Int("companies", companies).Int("workers", workers).
		Msg("scrape batch started")
}

func (l *ScraperLogger) BatchComplete(sessionID, status string, completed int) {
	l.log.Info().Str("session", sessionID).
		Str("status", status).Int("completed", completed).
		Msg("scrape batch finished")
}
