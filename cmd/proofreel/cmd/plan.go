package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/proofreel/internal/allocator"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the resource plan for this host",
	Long: `Resolve the worker concurrency and encoder thread budget the pipeline
would start with on this host, without connecting to the queue.

  proofreel plan
  proofreel plan --threads 16`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		plan := allocator.Resolve(cmd.Context(), cfg.Allocator.Threads, logger)
		return printJSON(cmd.OutOrStdout(), plan)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
