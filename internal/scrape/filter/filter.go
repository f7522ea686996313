package filter

import (
	"strings"

	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/scrape/util"
)

// Breakdown reports per-axis pass/fail counts from one ApplyFilters run.
// Axes short-circuit: a job that fails the country check is never counted
// against city or title.
type Breakdown struct {
	PassedCountry int
	FailedCountry int
	PassedCity    int
	FailedCity    int
	PassedTitle   int
	FailedTitle   int
	FinalCount    int
}

// MatchesPreferredCountry applies the word-bounded country check.
// Jobs without a location pass: an empty string contradicts nothing.
func MatchesPreferredCountry(location, country string) bool {
	if strings.TrimSpace(country) == "" {
		return true
	}
	if strings.TrimSpace(location) == "" {
		return true
	}
	return util.LocationMatchesCountry(location, country)
}

// MatchesPreferredCity is a case-insensitive substring check on the location.
func MatchesPreferredCity(location, city string) bool {
	if strings.TrimSpace(city) == "" {
		return true
	}
	if strings.TrimSpace(location) == "" {
		return true
	}
	return util.LocationMatchesCity(location, city)
}

// MatchesTitleKeywords passes when any keyword appears in the title.
// An empty keyword list passes everything.
func MatchesTitleKeywords(title string, keywords []string) bool {
	low := strings.ToLower(title)
	any := false
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		any = true
		if strings.Contains(low, kw) {
			return true
		}
	}
	return !any
}

// ApplyFilters runs country, city, title in order and keeps survivors.
func ApplyFilters(jobs []types.ScrapedJob, f types.JobFilters) ([]types.ScrapedJob, Breakdown) {
	var b Breakdown
	kept := make([]types.ScrapedJob, 0, len(jobs))

	for _, j := range jobs {
		if !MatchesPreferredCountry(j.Location, f.Country) {
			b.FailedCountry++
			continue
		}
		b.PassedCountry++

		if !MatchesPreferredCity(j.Location, f.City) {
			b.FailedCity++
			continue
		}
		b.PassedCity++

		if !MatchesTitleKeywords(j.Title, f.TitleKeywords) {
			b.FailedTitle++
			continue
		}
		b.PassedTitle++

		kept = append(kept, j)
	}

	b.FinalCount = len(kept)
	return kept, b
}

// HasEarlyFilters tells adapters whether list-level filtering is worth doing.
func HasEarlyFilters(f types.JobFilters) bool {
	return !f.Empty()
}

// Overlay writes top's non-empty fields over base, field by field.
func Overlay(base, top types.JobFilters) types.JobFilters {
	if top.Country != "" {
		base.Country = top.Country
	}
	if top.City != "" {
		base.City = top.City
	}
	if len(top.TitleKeywords) > 0 {
		base.TitleKeywords = top.TitleKeywords
	}
	return base
}
