package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/jobtracker/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List running and completed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp model.JobListResponse
			if err := client.Send(model.NewCommand(model.CommandGetStatus), &resp); err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			return render(cmd.OutOrStdout(), flagOutput, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Running jobs (%d): %s\n", len(resp.RunningJobs), joinOrNone(resp.RunningJobs))
				fmt.Fprintf(w, "Completed jobs (%d): %s\n", len(resp.CompletedJobs), joinOrNone(resp.CompletedJobs))
			})
		},
	}
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
