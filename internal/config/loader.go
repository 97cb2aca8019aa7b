package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SLURM_TRACKER_MAX_JOBS.
const EnvPrefix = "SLURM_TRACKER"

// Load builds a Config from defaults, an optional YAML file at path, and
// SLURM_TRACKER_* environment variables, in increasing priority.
func Load(path string) (Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("addr", def.Addr)
	v.SetDefault("token", def.Token)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("interval", def.Interval)
	v.SetDefault("max_jobs", def.MaxJobs)
	v.SetDefault("current_file", def.CurrentFile)
	v.SetDefault("history_file", def.HistoryFile)
	v.SetDefault("archive_db", def.ArchiveDB)
	v.SetDefault("user", def.User)
	v.SetDefault("squeue_command", def.SqueueCommand)
	v.SetDefault("sbatch_command", def.SbatchCommand)
	v.SetDefault("search_root", def.SearchRoot)
	v.SetDefault("search_budget", def.SearchBudget)
	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("rate_burst", def.RateBurst)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
