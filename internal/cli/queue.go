package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/me/jobtracker/pkg/model"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show tasks waiting for submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp model.QueueResponse
			if err := client.Send(model.NewCommand(model.CommandGetQueue), &resp); err != nil {
				return fmt.Errorf("get queue: %w", err)
			}

			return render(cmd.OutOrStdout(), flagOutput, resp, func(w io.Writer) {
				if len(resp.QueuedTasks) == 0 {
					fmt.Fprintln(w, "No queued tasks")
					return
				}
				fmt.Fprintf(w, "Queued tasks (%d):\n", len(resp.QueuedTasks))
				for i, task := range resp.QueuedTasks {
					fmt.Fprintf(w, "  %d. %s\n", i+1, task.ScriptPath())
				}
			})
		},
	}
}
