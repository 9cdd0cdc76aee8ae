package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/supervisor"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change runtime settings",
	Long: `Runtime settings are read by the workers through a short-lived cache.

Known keys:
  ` + models.SettingWatermarkText + `            text burned into review previews (empty disables)
  ` + models.SettingCleanPreviewResolutions + `  comma separated clean preview resolutions, e.g. 720p,1080p`,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			values, err := svc.Settings.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), values)
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			return svc.Settings.Set(cmd.Context(), args[0], args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsListCmd, settingsSetCmd)
}
