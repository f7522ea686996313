package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port          int    `yaml:"port"`
		LogLevel      string `yaml:"log_level"`
		ShutdownToken string `yaml:"shutdown_token"`
	} `yaml:"app"`

	Scraper struct {
		// MaxParallel is the default batch worker count; the
		// scraper_max_parallel_scrapes setting overrides it at run time.
		MaxParallel           int  `yaml:"max_parallel"`
		CompanyTimeoutSeconds int  `yaml:"company_timeout_seconds"`
		IntervalMinutes       int  `yaml:"interval_minutes"` // 0 disables the scheduler
		ArchiveRetentionDays  int  `yaml:"archive_retention_days"`

		FilterCountry   string   `yaml:"filter_country"`
		FilterCity      string   `yaml:"filter_city"`
		TitleKeywords   []string `yaml:"title_keywords"`
		TitleSimilarity float64  `yaml:"title_similarity"`
	} `yaml:"scraper"`

	Matcher struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"matcher"`

	Email struct {
		Enabled          bool     `yaml:"enabled"`
		IMAPHost         string   `yaml:"imap_host"`
		IMAPPort         int      `yaml:"imap_port"`
		Username         string   `yaml:"username"`
		Mailbox          string   `yaml:"mailbox"`
		PollSeconds      int      `yaml:"poll_seconds"`
		SearchSubjectAny []string `yaml:"search_subject_any"`
	} `yaml:"email"`
}

// Default is the config written on first run and the fallback for any
// field the user file leaves zero.
func Default() Config {
	var cfg Config
	cfg.App.Port = 8090
	cfg.App.LogLevel = "info"
	cfg.Scraper.MaxParallel = 3
	cfg.Scraper.CompanyTimeoutSeconds = 300
	cfg.Scraper.IntervalMinutes = 0
	cfg.Scraper.ArchiveRetentionDays = 90
	cfg.Scraper.TitleSimilarity = 0.9
	cfg.Matcher.BaseURL = "http://127.0.0.1:8787"
	cfg.Email.Mailbox = "INBOX"
	cfg.Email.IMAPPort = 993
	cfg.Email.PollSeconds = 900
	cfg.Email.SearchSubjectAny = []string{"new jobs for", "jobs you may be interested in"}
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
