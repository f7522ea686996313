package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobscout-engine/internal/scrape/types"
)

func job(title, location string) types.ScrapedJob {
	return types.ScrapedJob{Title: title, Location: location, ExternalID: title, URL: "https://x/" + title}
}

func TestApplyFiltersShortCircuits(t *testing.T) {
	jobs := []types.ScrapedJob{
		job("Backend Engineer", "Berlin, Germany"),
		job("Frontend Engineer", "Paris, France"), // fails country, never reaches title
		job("Accountant", "Munich, Germany"),      // fails title
		job("Platform Engineer", "Remote"),        // remote passes any country
	}
	f := types.JobFilters{Country: "Germany", TitleKeywords: []string{"engineer"}}

	kept, b := ApplyFilters(jobs, f)

	assert.Len(t, kept, 2)
	assert.Equal(t, "Backend Engineer", kept[0].Title)
	assert.Equal(t, "Platform Engineer", kept[1].Title)

	assert.Equal(t, 3, b.PassedCountry)
	assert.Equal(t, 1, b.FailedCountry)
	assert.Equal(t, 3, b.PassedCity) // no city filter set
	assert.Equal(t, 0, b.FailedCity)
	assert.Equal(t, 2, b.PassedTitle)
	assert.Equal(t, 1, b.FailedTitle)
	assert.Equal(t, 2, b.FinalCount)

	// counts across axes stay consistent with short-circuiting
	assert.Equal(t, len(jobs), b.PassedCountry+b.FailedCountry)
	assert.Equal(t, b.PassedCountry, b.PassedCity+b.FailedCity)
	assert.Equal(t, b.PassedCity, b.PassedTitle+b.FailedTitle)
}

func TestApplyFiltersCity(t *testing.T) {
	jobs := []types.ScrapedJob{
		job("Engineer A", "Berlin, Germany"),
		job("Engineer B", "Hamburg, Germany"),
	}
	kept, b := ApplyFilters(jobs, types.JobFilters{Country: "Germany", City: "Berlin"})
	assert.Len(t, kept, 1)
	assert.Equal(t, 1, b.FailedCity)
}

func TestEmptyFiltersPassEverything(t *testing.T) {
	jobs := []types.ScrapedJob{job("Anything", "Nowhere"), job("At All", "")}
	kept, b := ApplyFilters(jobs, types.JobFilters{})
	assert.Len(t, kept, 2)
	assert.Equal(t, 2, b.FinalCount)
	assert.Equal(t, 0, b.FailedCountry+b.FailedCity+b.FailedTitle)
}

func TestEmptyLocationPassesLocationAxes(t *testing.T) {
	kept, b := ApplyFilters([]types.ScrapedJob{job("Engineer", "")}, types.JobFilters{Country: "Germany", City: "Berlin"})
	assert.Len(t, kept, 1)
	assert.Equal(t, 1, b.PassedCountry)
	assert.Equal(t, 1, b.PassedCity)
}

func TestMatchesTitleKeywords(t *testing.T) {
	assert.True(t, MatchesTitleKeywords("Senior Go Developer", []string{"go", "python"}))
	assert.False(t, MatchesTitleKeywords("Accountant", []string{"go developer", "python"}))
	assert.True(t, MatchesTitleKeywords("Whatever", nil))
	assert.True(t, MatchesTitleKeywords("Whatever", []string{"  ", ""}))
}

func TestHasEarlyFilters(t *testing.T) {
	assert.False(t, HasEarlyFilters(types.JobFilters{}))
	assert.True(t, HasEarlyFilters(types.JobFilters{Country: "Germany"}))
	assert.True(t, HasEarlyFilters(types.JobFilters{TitleKeywords: []string{"go"}}))
}
