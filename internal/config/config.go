package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds configuration for the tracker daemon.
type Config struct {
	Addr      string `mapstructure:"addr"`       // Listen address (default "127.0.0.1:8000")
	Token     string `mapstructure:"token"`      // Bearer token; empty disables the check
	LogLevel  string `mapstructure:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `mapstructure:"log_format"` // Log format: text, json

	Interval time.Duration `mapstructure:"interval"` // Poll interval
	MaxJobs  int           `mapstructure:"max_jobs"` // Admission cap on active jobs

	CurrentFile string `mapstructure:"current_file"` // Snapshot JSON path
	HistoryFile string `mapstructure:"history_file"` // History JSON path
	ArchiveDB   string `mapstructure:"archive_db"`   // Optional SQLite mirror of history

	User          string        `mapstructure:"user"`           // squeue -u argument
	SqueueCommand string        `mapstructure:"squeue_command"` // default "squeue"
	SbatchCommand string        `mapstructure:"sbatch_command"` // default "sbatch"
	SearchRoot    string        `mapstructure:"search_root"`    // Output-file search root; empty means $HOME
	SearchBudget  time.Duration `mapstructure:"search_budget"`  // Wall-clock cap per output-file search

	RateLimit float64 `mapstructure:"rate_limit"` // Command requests per second; 0 disables
	RateBurst int     `mapstructure:"rate_burst"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:8000",
		Token:         os.Getenv("SLURM_TRACKER_TOKEN"),
		LogLevel:      "info",
		LogFormat:     "text",
		Interval:      5 * time.Second,
		MaxJobs:       10,
		CurrentFile:   "slurm_jobs_current.json",
		HistoryFile:   "slurm_jobs_history.json",
		User:          os.Getenv("USER"),
		SqueueCommand: "squeue",
		SbatchCommand: "sbatch",
		SearchBudget:  10 * time.Second,
		RateBurst:     10,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.MaxJobs < 0 {
		errs = append(errs, fmt.Errorf("max_jobs must not be negative, got %d", c.MaxJobs))
	}
	if c.CurrentFile == "" {
		errs = append(errs, errors.New("current_file is required"))
	}
	if c.HistoryFile == "" {
		errs = append(errs, errors.New("history_file is required"))
	}
	if c.SearchBudget <= 0 {
		errs = append(errs, fmt.Errorf("search_budget must be positive, got %s", c.SearchBudget))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit))
	}
	return errors.Join(errs...)
}
