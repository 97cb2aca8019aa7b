package main

import (
	"fmt"
	"os"

	"github.com/me/jobtracker/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if cli.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "hint: pass --token or set SLURM_TRACKER_TOKEN")
		}
		os.Exit(1)
	}
}
