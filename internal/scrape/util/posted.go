package util

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var daysAgoRe = regexp.MustCompile(`(?i)(?:posted\s+)?(\d+)\+?\s+days?\s+ago`)

// epoch values above this are milliseconds, below it seconds
const epochMillisCutoff = int64(1_000_000_000_000)

// NormalizePostedDate accepts the posting timestamps boards actually send:
// epoch seconds, epoch millis, RFC3339, bare dates, and the "Posted 3 Days
// Ago" strings Workday likes. Returns nil when nothing parses.
func NormalizePostedDate(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if t.IsZero() {
			return nil
		}
		u := t.UTC()
		return &u
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		u := t.UTC()
		return &u
	case int:
		return fromEpoch(int64(t))
	case int64:
		return fromEpoch(t)
	case float64:
		return fromEpoch(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromEpoch(n)
		}
		if f, err := t.Float64(); err == nil {
			return fromEpoch(int64(f))
		}
		return nil
	case string:
		return fromString(t)
	default:
		return nil
	}
}

func fromEpoch(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n >= epochMillisCutoff {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

func fromString(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(n)
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"Jan 2, 2006",
		"January 2, 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}

	low := strings.ToLower(s)
	if strings.Contains(low, "today") || strings.Contains(low, "just posted") {
		t := time.Now().UTC()
		return &t
	}
	if strings.Contains(low, "yesterday") {
		t := time.Now().UTC().AddDate(0, 0, -1)
		return &t
	}
	if m := daysAgoRe.FindStringSubmatch(s); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil || days < 0 {
			return nil
		}
		t := time.Now().UTC().AddDate(0, 0, -days)
		return &t
	}
	return nil
}
