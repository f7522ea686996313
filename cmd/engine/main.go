package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"jobscout-engine/internal/browser"
	"jobscout-engine/internal/config"
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/httpapi"
	"jobscout-engine/internal/httpclient"
	emailingest "jobscout-engine/internal/ingest/email"
	"jobscout-engine/internal/matcher"
	"jobscout-engine/internal/scheduler"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/types"
	"jobscout-engine/internal/store"
)

var (
	dataDirFlag = flag.String("data", "", "data directory (default $JOBSCOUT_DATA_DIR, else ./data)")
	portFlag    = flag.Int("port", 0, "listen port (overrides config)")
)

func main() {
	flag.Parse()

	dataDir := *dataDirFlag
	if dataDir == "" {
		dataDir = os.Getenv("JOBSCOUT_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "data dir: %v\n", err)
		os.Exit(1)
	}

	userCfgPath, err := config.EnsureUserConfig(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		normalized, vr := config.NormalizeAndValidate(cfg)
		if !vr.OK() {
			return cfg, fmt.Errorf("config invalid: %v", vr.Errors)
		}
		return normalized, nil
	}

	cfg, err := loadCfg()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed (%s): %v\n", userCfgPath, err)
		os.Exit(1)
	}
	if *portFlag > 0 {
		cfg.App.Port = *portFlag
	}

	log := newLogger(cfg.App.LogLevel)

	// One engine per data dir. A second instance would race the sqlite
	// writer and double-fire the scheduler.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Msg("instance lock failed")
		os.Exit(1)
	}
	if !locked {
		log.Fatal().Str("dir", dataDir).Msg("another engine already runs against this data dir")
		os.Exit(1)
	}
	defer func() { _ = lock.Unlock() }()

	var cfgVal atomic.Value
	cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "jobscout.db")
	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("database open failed")
		os.Exit(1)
	}
	defer db.Close()

	hc := httpclient.New(log)
	br := browser.NewChrome(log)
	defer br.Close()

	registry := scrape.BuildRegistry(hc, br, log)
	hub := events.NewHub()

	var matchClient matcher.Client = matcher.Disabled{}
	if cfg.Matcher.BaseURL != "" {
		matchClient = matcher.NewHTTP(hc, cfg.Matcher.BaseURL, log)
	}

	orch := scrape.NewOrchestrator(db, registry, matchClient, hub, log, scrape.OrchestratorConfig{
		DefaultFilters: types.JobFilters{
			Country:       cfg.Scraper.FilterCountry,
			City:          cfg.Scraper.FilterCity,
			TitleKeywords: cfg.Scraper.TitleKeywords,
		},
		TitleSimThreshold:  cfg.Scraper.TitleSimilarity,
		DefaultMaxParallel: cfg.Scraper.MaxParallel,
		CompanyTimeout:     time.Duration(cfg.Scraper.CompanyTimeoutSeconds) * time.Second,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Scheduled scrapes, serialized across instances through the db lock.
	if cfg.Scraper.IntervalMinutes > 0 {
		interval := time.Duration(cfg.Scraper.IntervalMinutes) * time.Minute
		task := scheduler.Locked(db, "scheduled-scrape", interval/2, log, func(ctx context.Context) error {
			_, _, err := orch.ScrapeAllCompanies(ctx, domain.TriggerScheduler)
			return err
		})
		go scheduler.Every(rootCtx, interval, "scheduled-scrape", log, task)
		log.Info().Int("interval_minutes", cfg.Scraper.IntervalMinutes).Msg("scrape scheduler enabled")
	}

	// LinkedIn alert ingest over IMAP.
	if cfg.Email.Enabled {
		ingestor := emailingest.NewIngestor(db, hub, log, emailingest.Config{
			Host:       cfg.Email.IMAPHost,
			Port:       cfg.Email.IMAPPort,
			Username:   cfg.Email.Username,
			Mailbox:    cfg.Email.Mailbox,
			SubjectAny: cfg.Email.SearchSubjectAny,
			DefaultFilters: types.JobFilters{
				Country:       cfg.Scraper.FilterCountry,
				City:          cfg.Scraper.FilterCity,
				TitleKeywords: cfg.Scraper.TitleKeywords,
			},
		})
		pollEvery := time.Duration(cfg.Email.PollSeconds) * time.Second
		go scheduler.Every(rootCtx, pollEvery, "email-ingest", log, func(ctx context.Context) error {
			_, err := ingestor.RunOnce(ctx)
			return err
		})
		log.Info().Str("mailbox", cfg.Email.Mailbox).Int("poll_seconds", cfg.Email.PollSeconds).Msg("email ingest enabled")
	}

	// Old scraper-archived rows age out once a day.
	if cfg.Scraper.ArchiveRetentionDays > 0 {
		retention := time.Duration(cfg.Scraper.ArchiveRetentionDays) * 24 * time.Hour
		go scheduler.Every(rootCtx, 24*time.Hour, "prune-archived", log, func(ctx context.Context) error {
			n, err := db.PruneArchivedJobs(ctx, retention)
			if n > 0 {
				log.Info().Int64("pruned", n).Msg("archived jobs pruned")
			}
			return err
		})
	}

	scrapeStatus := &atomic.Value{}
	scrapeStatus.Store(httpapi.ScrapeStatus{})

	mux := httpapi.NewMux(httpapi.Deps{
		DB:           db,
		Hub:          hub,
		Log:          log,
		Runner:       orch,
		CfgVal:       &cfgVal,
		ScrapeStatus: scrapeStatus,
		UserCfgPath:  userCfgPath,
		LoadCfg:      loadCfg,
	})

	token := cfg.App.ShutdownToken
	if token == "" {
		token, err = randomToken(16)
		if err != nil {
			log.Fatal().Err(err).Msg("token generation failed")
			os.Exit(1)
		}
	}

	shutdownCh := make(chan struct{}, 1)
	mux.HandleFunc("/shutdown", shutdownHandler(token, shutdownCh))

	handler := httpapi.Chain(mux,
		httpapi.Cors,
		httpapi.RequestID,
		httpapi.Recover(log),
		httpapi.AccessLog(log),
	)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("listen failed")
		os.Exit(1)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	log.Info().
		Str("url", "http://"+addr).
		Str("db", dbPath).
		Str("config", userCfgPath).
		Msg("engine ready")

	select {
	case <-rootCtx.Done():
		log.Info().Msg("interrupt received")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested via http")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}

	stop() // stops scheduler and pollers

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("engine stopped")
}

func newLogger(level string) arbor.ILogger {
	if level == "" {
		level = "info"
	}
	return arbor.NewLogger().
		WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: "15:04:05",
			TextOutput: true,
		}).
		WithLevelFromString(level)
}
