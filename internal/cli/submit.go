package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/jobtracker/pkg/model"
)

func newSubmitCmd() *cobra.Command {
	var workingDir, scriptName string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a batch script for submission",
		Long: `Queue a batch script for submission. The tracker submits it once the
number of active jobs drops below its limit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(workingDir)
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}

			var resp model.StatusResponse
			if err := client.Send(model.NewSubmitCommand(dir, scriptName), &resp); err != nil {
				return fmt.Errorf("submit task: %w", err)
			}

			return render(cmd.OutOrStdout(), flagOutput, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Task %s: %s\n", resp.Status, filepath.Join(dir, scriptName))
			})
		},
	}

	cmd.Flags().StringVarP(&workingDir, "working-dir", "d", "", "Directory containing the submission script")
	cmd.Flags().StringVarP(&scriptName, "script-name", "s", model.DefaultScriptName, "Submission script file name")
	cmd.MarkFlagRequired("working-dir")
	return cmd
}
