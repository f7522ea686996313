package util

import (
	"html"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"jobscout-engine/internal/scrape/types"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	multiSpaceRe = regexp.MustCompile(`[ \t]+`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
)

// NormalizeDescription turns whatever a board serves (usually HTML, sometimes
// already plain) into markdown or plain text. Plain input passes through
// untouched, so normalizing twice is a no-op.
func NormalizeDescription(s string) (string, types.DescriptionFormat) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", types.FormatPlain
	}
	if !htmlTagRe.MatchString(s) {
		return s, types.FormatPlain
	}

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(s)
	if err != nil || strings.TrimSpace(out) == "" {
		return StripTags(s), types.FormatPlain
	}
	out = multiBlankRe.ReplaceAllString(strings.TrimSpace(out), "\n\n")
	return out, types.FormatMarkdown
}

// StripTags is the fallback when markdown conversion fails.
func StripTags(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	var lines []string
	for _, ln := range strings.Split(s, "\n") {
		lines = append(lines, strings.TrimSpace(ln))
	}
	s = strings.Join(lines, "\n")
	s = multiBlankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
