package scrape

import (
	"regexp"
	"strings"

	"jobscout-engine/internal/scrape/types"
)

// workdayHostRe catches tenant hosts like acme.wd5.myworkdayjobs.com; the
// plain substring rule below covers the rest.
var workdayHostRe = regexp.MustCompile(`\.wd\d*\.myworkdayjobs\.com`)

type detectRule struct {
	needle   string
	platform types.Platform
}

// detectRules are checked in order; first substring hit wins.
var detectRules = []detectRule{
	{"greenhouse.io", types.PlatformGreenhouse},
	{"lever.co", types.PlatformLever},
	{"ashbyhq.com", types.PlatformAshby},
	{"eightfold.ai", types.PlatformEightfold},
	{"myworkdayjobs.com", types.PlatformWorkday},
	{"uber.com", types.PlatformUber},
	{"google.com/about/careers", types.PlatformGoogle},
	{"careers.google.com", types.PlatformGoogle},
	{"atlassian.com", types.PlatformAtlassian},
}

// DetectPlatform maps a career-page URL to a platform. Custom means no
// adapter handles it; the orchestrator skips those companies without
// marking them failed.
func DetectPlatform(rawURL string) types.Platform {
	lu := strings.ToLower(strings.TrimSpace(rawURL))
	if lu == "" {
		return types.PlatformCustom
	}
	if workdayHostRe.MatchString(lu) {
		return types.PlatformWorkday
	}
	for _, r := range detectRules {
		if strings.Contains(lu, r.needle) {
			return r.platform
		}
	}
	return types.PlatformCustom
}
