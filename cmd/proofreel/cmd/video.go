package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/proofreel/internal/service"
	"github.com/jmylchreest/proofreel/internal/supervisor"
)

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Register, approve and inspect videos",
}

var videoRegisterCmd = &cobra.Command{
	Use:   "register <storage-path>",
	Short: "Register an uploaded video and enqueue its preview transcode",
	Long: `Register a video whose source is already in object storage and enqueue
the watermarked preview transcode.

  proofreel video register uploads/p1/cut-v3.mov --project p1 --title "Cut v3"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		project, _ := cmd.Flags().GetString("project")
		title, _ := cmd.Flags().GetString("title")

		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			video, handle, err := svc.Videos.Register(cmd.Context(), service.RegisterVideoInput{
				ID:                id,
				ProjectID:         project,
				Title:             title,
				SourceStoragePath: args[0],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"video": video, "job": handle})
		})
	},
}

var videoApproveCmd = &cobra.Command{
	Use:   "approve <video-id>",
	Short: "Approve a video and enqueue its clean previews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			handles, err := svc.Videos.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"jobs": handles})
		})
	},
}

var videoRevokeCmd = &cobra.Command{
	Use:   "revoke <video-id>",
	Short: "Withdraw approval from a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			if err := svc.Videos.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "approval revoked for %s\n", args[0])
			return err
		})
	},
}

var videoReprocessCmd = &cobra.Command{
	Use:   "reprocess <video-id>",
	Short: "Enqueue the preview transcode again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			handle, err := svc.Videos.Reprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), handle)
		})
	},
}

var videoGetCmd = &cobra.Command{
	Use:   "get <video-id>",
	Short: "Show a video and its processing state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			video, err := svc.Videos.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), video)
		})
	},
}

var videoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List videos",
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, _ := cmd.Flags().GetString("project")
		return withServices(cmd.Context(), func(svc *supervisor.Services) error {
			videos, err := svc.Videos.List(cmd.Context(), project)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), videos)
		})
	},
}

func init() {
	rootCmd.AddCommand(videoCmd)
	videoCmd.AddCommand(videoRegisterCmd, videoApproveCmd, videoRevokeCmd, videoReprocessCmd, videoGetCmd, videoListCmd)

	videoRegisterCmd.Flags().String("id", "", "video ID (generated when empty)")
	videoRegisterCmd.Flags().String("project", "", "project ID")
	videoRegisterCmd.Flags().String("title", "", "video title")
	_ = videoRegisterCmd.MarkFlagRequired("project")

	videoListCmd.Flags().String("project", "", "only list videos in this project")
}
