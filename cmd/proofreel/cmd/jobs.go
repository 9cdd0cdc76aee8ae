package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/repository"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and retry queued jobs",
}

// withAdmin runs fn against the queue admin API.
func withAdmin(cmd *cobra.Command, fn func(*queue.Admin) error) error {
	return withConnection(cmd.Context(), func(_ *config.Config, _ *slog.Logger, conn *queue.Connection) error {
		return fn(queue.NewAdmin(conn))
	})
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Long: `List jobs, newest first.

  proofreel jobs list --kind transcode --status failed
  proofreel jobs list --subject 01J9ZC4T8Q`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		subject, _ := cmd.Flags().GetString("subject")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := repository.JobFilter{SubjectID: subject, Limit: limit}
		if kind != "" {
			k, err := models.ParseJobKind(kind)
			if err != nil {
				return err
			}
			filter.Kind = k
		}
		if status != "" {
			s, err := models.ParseJobStatus(status)
			if err != nil {
				return err
			}
			filter.Status = s
		}

		return withAdmin(cmd, func(admin *queue.Admin) error {
			jobs, err := admin.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		})
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(admin *queue.Admin) error {
			job, err := admin.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		})
	},
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history <job-id>",
	Short: "Show every finished attempt of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(admin *queue.Admin) error {
			history, err := admin.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), history)
		})
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a failed job with a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(admin *queue.Admin) error {
			job, err := admin.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		})
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by kind and status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, func(admin *queue.Admin) error {
			stats, err := admin.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		})
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsHistoryCmd, jobsRetryCmd, jobsStatsCmd)

	jobsListCmd.Flags().String("kind", "", "transcode, asset, clean_preview or notification")
	jobsListCmd.Flags().String("status", "", "pending, scheduled, running, completed or failed")
	jobsListCmd.Flags().String("subject", "", "video, asset or event ID")
	jobsListCmd.Flags().Int("limit", 50, "maximum number of jobs")
}
