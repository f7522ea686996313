package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationMatchesCountry(t *testing.T) {
	tests := []struct {
		location string
		country  string
		want     bool
	}{
		{"Austin, TX, US", "United States", true},
		{"San Francisco, CA", "United States", true},
		{"Australia", "United States", false}, // "us" must not fire inside "australia"
		{"Sydney, Australia", "Australia", true},
		{"Berlin, Germany", "Germany", true},
		{"Munich", "germany", true},
		{"London, UK", "United Kingdom", true},
		{"Bucharest, Romania", "Romania", true},
		{"Cluj-Napoca", "Romania", true},
		{"Paris, France", "Germany", false},
		{"", "Germany", false},
		{"Berlin", "", true}, // no filter, everything passes
	}
	for _, tt := range tests {
		got := LocationMatchesCountry(tt.location, tt.country)
		assert.Equal(t, tt.want, got, "location=%q country=%q", tt.location, tt.country)
	}
}

func TestRemoteSentinelsMatchEveryCountry(t *testing.T) {
	for _, loc := range []string{"Remote", "Remote Position", "Worldwide", "Anywhere", "REMOTE - EMEA"} {
		for _, country := range []string{"United States", "Germany", "Japan", "Romania"} {
			assert.True(t, LocationMatchesCountry(loc, country), "location=%q country=%q", loc, country)
		}
	}
}

func TestLocationMatchesCountryUnknownFallsBackToWordMatch(t *testing.T) {
	assert.True(t, LocationMatchesCountry("Reykjavik, Iceland", "Iceland"))
	assert.False(t, LocationMatchesCountry("Oslo, Norway", "Iceland"))
}

func TestLocationMatchesCity(t *testing.T) {
	assert.True(t, LocationMatchesCity("Berlin, Germany", "berlin"))
	assert.True(t, LocationMatchesCity("Greater Berlin Area", "Berlin"))
	assert.False(t, LocationMatchesCity("Munich, Germany", "Berlin"))
	assert.True(t, LocationMatchesCity("Munich", ""))
}
