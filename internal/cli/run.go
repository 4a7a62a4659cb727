package cli

import (
	"github.com/spf13/cobra"

	"yutai-ranker/internal/app"
)

var (
	runPool   poolFlags
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled ingest service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if err := runPool.apply(cmd, a.Config); err != nil {
			return err
		}
		return a.Run(cmd.Context(), app.IngestOptions{DryRun: runDryRun})
	},
}

func init() {
	addPoolFlags(runCmd, &runPool)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Run without database or checkpoint writes")
}
