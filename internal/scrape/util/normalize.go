package util

import (
	"html"
	"strings"

	"jobscout-engine/internal/scrape/types"
)

func CleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// NormalizeLocation cleans a raw location string and classifies it.
// "remote" anywhere wins over "hybrid"; any other non-empty text is onsite.
func NormalizeLocation(loc string) (string, types.LocationType) {
	loc = CleanText(loc)
	loc = strings.TrimPrefix(loc, "Location:")
	loc = strings.TrimPrefix(loc, "LOCATIONS:")
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", ""
	}

	// dedupe comma parts, boards love "Remote, Remote, USA"
	parts := strings.Split(loc, ",")
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	loc = strings.Join(out, ", ")

	low := strings.ToLower(loc)
	switch {
	case strings.Contains(low, "remote"):
		return loc, types.LocationRemote
	case strings.Contains(low, "hybrid"):
		return loc, types.LocationHybrid
	default:
		return loc, types.LocationOnsite
	}
}

// GenerateExternalID builds the stable cross-scrape identity for a posting:
// the platform name plus every non-empty part, joined by dashes.
func GenerateExternalID(platform types.Platform, parts ...string) string {
	out := []string{string(platform)}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "-")
}

func ParseEmploymentType(s string) types.EmploymentType {
	s = strings.ToLower(CleanText(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	switch s {
	case "full-time", "fulltime", "full":
		return types.EmploymentFullTime
	case "part-time", "parttime", "part":
		return types.EmploymentPartTime
	case "contract", "contractor", "contract-to-hire":
		return types.EmploymentContract
	case "intern", "internship":
		return types.EmploymentIntern
	case "temporary", "temp", "seasonal":
		return types.EmploymentTemporary
	}
	return ""
}

func ParseSeniority(s string) types.SeniorityLevel {
	s = strings.ToLower(CleanText(s))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "intern"), strings.Contains(s, "entry"),
		strings.Contains(s, "junior"), strings.Contains(s, "associate"),
		strings.Contains(s, "graduate"):
		return types.SeniorityEntry
	case strings.Contains(s, "manager"), strings.Contains(s, "director"),
		strings.Contains(s, "head of"):
		return types.SeniorityManager
	case strings.Contains(s, "lead"), strings.Contains(s, "principal"),
		strings.Contains(s, "staff"):
		return types.SeniorityLead
	case strings.Contains(s, "senior"), strings.Contains(s, "sr."),
		strings.HasPrefix(s, "sr "):
		return types.SenioritySenior
	case strings.Contains(s, "mid"), strings.Contains(s, "intermediate"):
		return types.SeniorityMid
	}
	return ""
}

// DecodeEntities unescapes HTML entities; Greenhouse double-escapes content.
func DecodeEntities(s string) string {
	return html.UnescapeString(s)
}
