package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/jobtracker/internal/logging"
)

var (
	flagServer    string
	flagToken     string
	flagOutput    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default tracker URL, checking SLURM_TRACKER_SERVER first.
func defaultServer() string {
	if s := os.Getenv("SLURM_TRACKER_SERVER"); s != "" {
		return s
	}
	return "http://127.0.0.1:8000"
}

// NewRootCmd creates the root cobra command for the tracker client.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobtracker",
		Short: "Client for the Slurm job tracker",
		Long:  "jobtracker queues batch scripts for submission and reports on tracked Slurm jobs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			if err := validateOutput(flagOutput); err != nil {
				return err
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, flagToken, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Tracker URL (or SLURM_TRACKER_SERVER env)")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("SLURM_TRACKER_TOKEN"), "Bearer token (or SLURM_TRACKER_TOKEN env)")
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", outputText, "Output format (text, json, yaml)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newQueueCmd(),
		newInfoCmd(),
	)

	return root
}
