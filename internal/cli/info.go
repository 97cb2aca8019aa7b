package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/me/jobtracker/pkg/model"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show tracker settings and counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp model.InfoResponse
			if err := client.Send(model.NewCommand(model.CommandGetInfo), &resp); err != nil {
				return fmt.Errorf("get info: %w", err)
			}

			return render(cmd.OutOrStdout(), flagOutput, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Max jobs:       %d\n", resp.MaxJobs)
				fmt.Fprintf(w, "Poll interval:  %gs\n", resp.Interval)
				fmt.Fprintf(w, "Running jobs:   %d\n", resp.RunningJobsCount)
				fmt.Fprintf(w, "Completed jobs: %d\n", resp.CompletedJobsCount)
				fmt.Fprintf(w, "Queued tasks:   %d\n", resp.QueuedTasksCount)
			})
		},
	}
}
