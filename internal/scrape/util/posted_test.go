package util

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePostedDateEpochForms(t *testing.T) {
	// the same instant in seconds and in millis must agree
	sec := NormalizePostedDate(int64(1735603200))
	ms := NormalizePostedDate(int64(1735603200000))
	require.NotNil(t, sec)
	require.NotNil(t, ms)
	assert.True(t, sec.Equal(*ms), "sec=%v ms=%v", sec, ms)
	assert.Equal(t, time.UTC, sec.Location())

	f := NormalizePostedDate(float64(1735603200))
	require.NotNil(t, f)
	assert.True(t, f.Equal(*sec))

	n := NormalizePostedDate(json.Number("1735603200"))
	require.NotNil(t, n)
	assert.True(t, n.Equal(*sec))

	assert.Nil(t, NormalizePostedDate(int64(0)))
	assert.Nil(t, NormalizePostedDate(int64(-5)))
}

func TestNormalizePostedDateStrings(t *testing.T) {
	got := NormalizePostedDate("2025-01-15T10:30:00Z")
	require.NotNil(t, got)
	assert.Equal(t, 2025, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 15, got.Day())

	got = NormalizePostedDate("2025-03-02")
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Day())

	// numeric strings take the epoch path
	got = NormalizePostedDate("1735603200")
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())

	assert.Nil(t, NormalizePostedDate("sometime soon"))
	assert.Nil(t, NormalizePostedDate(""))
	assert.Nil(t, NormalizePostedDate(nil))
}

func TestNormalizePostedDateRelative(t *testing.T) {
	for _, in := range []string{"Posted 3 Days Ago", "3 days ago", "posted 3 day ago"} {
		got := NormalizePostedDate(in)
		require.NotNil(t, got, "input %q", in)
		want := time.Now().UTC().AddDate(0, 0, -3)
		assert.WithinDuration(t, want, *got, time.Minute, "input %q", in)
	}

	got := NormalizePostedDate("Posted 30+ Days Ago")
	require.NotNil(t, got)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -30), *got, time.Minute)

	got = NormalizePostedDate("Posted Today")
	require.NotNil(t, got)
	assert.WithinDuration(t, time.Now().UTC(), *got, time.Minute)
}
