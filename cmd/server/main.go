package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/jobtracker/internal/config"
	"github.com/me/jobtracker/internal/logging"
	"github.com/me/jobtracker/internal/scheduler"
	"github.com/me/jobtracker/internal/server"
	"github.com/me/jobtracker/internal/slurm"
	"github.com/me/jobtracker/internal/store"
	"github.com/me/jobtracker/internal/tracker"
)

func main() {
	def := config.DefaultConfig()

	configFile := flag.String("config", "", "Path to YAML config file (env SLURM_TRACKER_* also applies)")
	addr := flag.String("addr", def.Addr, "Listen address")
	logLevel := flag.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", def.LogFormat, "Log format (text, json)")
	interval := flag.Duration("interval", def.Interval, "Poll interval")
	maxJobs := flag.Int("max-jobs", def.MaxJobs, "Maximum active jobs before queued tasks wait")
	archiveDB := flag.String("archive-db", def.ArchiveDB, "SQLite file mirroring completed jobs (empty disables)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "interval":
			cfg.Interval = *interval
		case "max-jobs":
			cfg.MaxJobs = *maxJobs
		case "archive-db":
			cfg.ArchiveDB = *archiveDB
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	st := store.NewJSONStore(cfg.CurrentFile, cfg.HistoryFile, logger)

	var trackerOpts []tracker.Option
	if cfg.ArchiveDB != "" {
		archive, err := store.NewSQLiteArchive(cfg.ArchiveDB, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open archive: %v\n", err)
			os.Exit(1)
		}
		defer archive.Close()

		if err := archive.Migrate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate archive: %v\n", err)
			os.Exit(1)
		}
		logger.Info("archive ready", "path", cfg.ArchiveDB)
		trackerOpts = append(trackerOpts, tracker.WithArchive(archive))
	}

	adapter := slurm.NewCLIAdapter(slurm.Config{
		User:          cfg.User,
		SqueueCommand: cfg.SqueueCommand,
		SbatchCommand: cfg.SbatchCommand,
		SearchRoot:    cfg.SearchRoot,
	}, logger)

	tr := tracker.New(tracker.Config{
		MaxJobs:      cfg.MaxJobs,
		Interval:     cfg.Interval,
		SearchBudget: cfg.SearchBudget,
	}, adapter, st, logger, trackerOpts...)

	sched := scheduler.NewLoop(tr, scheduler.Config{Interval: cfg.Interval}, logger)

	srv := server.New(server.Config{
		Token:     cfg.Token,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, tr, logger)
	if cfg.Token == "" {
		logger.Warn("no token configured, command endpoint is unauthenticated")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "max_jobs", cfg.MaxJobs, "interval", cfg.Interval)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop scheduler before HTTP server.
	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
