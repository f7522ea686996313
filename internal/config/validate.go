package config

import (
	"errors"
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a cleaned copy plus everything wrong or
// suspicious about it. Errors block saving; warnings are advisory.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Scraper.FilterCountry = strings.TrimSpace(out.Scraper.FilterCountry)
	out.Scraper.FilterCity = strings.TrimSpace(out.Scraper.FilterCity)
	out.Scraper.TitleKeywords = trimList(out.Scraper.TitleKeywords)
	out.Email.SearchSubjectAny = trimList(out.Email.SearchSubjectAny)
	out.Matcher.BaseURL = strings.TrimRight(strings.TrimSpace(out.Matcher.BaseURL), "/")

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.Scraper.MaxParallel < 1 || out.Scraper.MaxParallel > 10 {
		res.addWarn("scraper.max_parallel %d is outside 1..10; the default of 3 is used", out.Scraper.MaxParallel)
		out.Scraper.MaxParallel = 3
	}
	if out.Scraper.CompanyTimeoutSeconds <= 0 {
		res.addErr("scraper.company_timeout_seconds must be > 0")
	}
	if out.Scraper.IntervalMinutes < 0 {
		res.addErr("scraper.interval_minutes must be >= 0 (0 disables the scheduler)")
	} else if out.Scraper.IntervalMinutes > 0 && out.Scraper.IntervalMinutes < 10 {
		res.addWarn("scraper.interval_minutes is very low (%d); boards may rate limit you", out.Scraper.IntervalMinutes)
	}
	if out.Scraper.ArchiveRetentionDays < 0 {
		res.addErr("scraper.archive_retention_days must be >= 0 (0 disables pruning)")
	}
	if out.Scraper.TitleSimilarity < 0 || out.Scraper.TitleSimilarity > 1 {
		res.addErr("scraper.title_similarity must be 0..1")
	}

	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.IMAPHost) == "" {
			res.addErr("email.imap_host is required when email.enabled=true")
		}
		if out.Email.IMAPPort == 0 {
			res.addErr("email.imap_port is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addErr("email.username is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Mailbox) == "" {
			res.addErr("email.mailbox is required when email.enabled=true")
		}
		if out.Email.PollSeconds <= 0 {
			res.addErr("email.poll_seconds must be > 0 when email.enabled=true")
		} else if out.Email.PollSeconds < 60 {
			res.addWarn("email.poll_seconds is very low (%d) and may cause rate limits", out.Email.PollSeconds)
		}
		if len(out.Email.SearchSubjectAny) == 0 {
			res.addWarn("email.search_subject_any is empty; alert ingest may find nothing")
		}
	}

	return out, res
}

// Validate is the error-only view used before saving.
func Validate(cfg Config) error {
	_, res := NormalizeAndValidate(cfg)
	if !res.OK() {
		return errors.New("config validation failed:\n- " + strings.Join(res.Errors, "\n- "))
	}
	return nil
}
