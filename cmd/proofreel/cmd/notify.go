package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/service"
	"github.com/jmylchreest/proofreel/internal/supervisor"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send notifications and manage destinations",
}

var notifySendCmd = &cobra.Command{
	Use:   "send <title> <body>",
	Short: "Enqueue a notification to one or more destinations",
	Long: `Enqueue a notification. The notification job delivers it to each listed
destination, or every enabled one when --to is omitted, and retries the
whole fan-out if any delivery fails.

  proofreel notify send "Render farm" "Nightly renders finished" --to 01J9Z... --severity success`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetStringSlice("to")
		event, _ := cmd.Flags().GetString("event")
		severity, _ := cmd.Flags().GetString("severity")
		subject, _ := cmd.Flags().GetString("subject")

		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			handle, err := svc.Notifications.Notify(cmd.Context(), service.NotifyInput{
				DestinationIDs: to,
				EventType:      event,
				Title:          args[0],
				Body:           args[1],
				Severity:       severity,
				SubjectID:      subject,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), handle)
		})
	},
}

var notifyDestinationsCmd = &cobra.Command{
	Use:     "destinations",
	Aliases: []string{"dest"},
	Short:   "Manage notification destinations",
}

var destAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a webhook or Apprise destination",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		dest := &models.NotificationDestination{
			Name: args[0],
			Kind: models.DestinationKind(kind),
			URL:  args[1],
		}
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			if err := svc.Notifications.AddDestination(cmd.Context(), dest); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dest)
		})
	},
}

var destListCmd = &cobra.Command{
	Use:   "list",
	Short: "List destinations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			dests, err := svc.Notifications.ListDestinations(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dests)
		})
	},
}

func destToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <destination-id>",
		Short: fmt.Sprintf("Mark a destination %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(svc *supervisor.Services) error {
				return svc.Notifications.SetDestinationEnabled(cmd.Context(), args[0], enabled)
			})
		},
	}
}

var destRemoveCmd = &cobra.Command{
	Use:   "remove <destination-id>",
	Short: "Delete a destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			return svc.Notifications.RemoveDestination(cmd.Context(), args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifySendCmd, notifyDestinationsCmd)
	notifyDestinationsCmd.AddCommand(destAddCmd, destListCmd, destToggleCmd("enable", true), destToggleCmd("disable", false), destRemoveCmd)

	notifySendCmd.Flags().StringSlice("to", nil, "destination IDs (default every enabled destination)")
	notifySendCmd.Flags().String("event", "", "event type (default \"manual\")")
	notifySendCmd.Flags().String("severity", "info", "info, success, warning or failure")
	notifySendCmd.Flags().String("subject", "", "video or asset the notification is about")

	destAddCmd.Flags().String("kind", string(models.DestinationWebhook), "webhook or apprise")
}
