package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/proofreel/internal/models"
	"github.com/jmylchreest/proofreel/internal/service"
	"github.com/jmylchreest/proofreel/internal/supervisor"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Register and reprocess project assets",
}

var assetRegisterCmd = &cobra.Command{
	Use:   "register <storage-path>",
	Short: "Register an uploaded asset and enqueue categorisation",
	Long: `Register an asset already in object storage. The asset job sniffs its
category and renders a thumbnail for images and videos.

  proofreel asset register uploads/p1/logo.png --project p1 --expect image`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		project, _ := cmd.Flags().GetString("project")
		name, _ := cmd.Flags().GetString("name")
		expect, _ := cmd.Flags().GetString("expect")

		in := service.RegisterAssetInput{
			ID:                id,
			ProjectID:         project,
			Name:              name,
			SourceStoragePath: args[0],
		}
		if expect != "" {
			category, err := models.ParseAssetCategory(expect)
			if err != nil {
				return err
			}
			in.ExpectedCategory = &category
		}

		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			asset, handle, err := svc.Assets.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"asset": asset, "job": handle})
		})
	},
}

var assetReprocessCmd = &cobra.Command{
	Use:   "reprocess <asset-id>",
	Short: "Enqueue categorisation again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			handle, err := svc.Assets.Reprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), handle)
		})
	},
}

func init() {
	rootCmd.AddCommand(assetCmd)
	assetCmd.AddCommand(assetRegisterCmd, assetReprocessCmd)

	assetRegisterCmd.Flags().String("id", "", "asset ID (generated when empty)")
	assetRegisterCmd.Flags().String("project", "", "project ID")
	assetRegisterCmd.Flags().String("name", "", "display name")
	assetRegisterCmd.Flags().String("expect", "", "expected category (video, image, audio, document, other)")
	_ = assetRegisterCmd.MarkFlagRequired("project")
}
