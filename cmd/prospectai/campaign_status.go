package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newCampaignStatusCmd(configPath *string) *cobra.Command {
	var campaignID string

	cmd := &cobra.Command{
		Use:   "campaign-status",
		Short: "Read a campaign's current progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if campaignID == "" {
				return newExitError(exitConfigInvalid, "--campaign-id is required")
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return newExitError(exitConfigInvalid, "%v", err)
			}
			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}

			progress, found, err := a.store.GetCampaign(ctx, campaignID)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}
			if !found {
				return newExitError(exitConfigInvalid, "campaign %q not found", campaignID)
			}
			printProgress(progress)
			return nil
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign-id", "", "campaign ID to look up")
	return cmd
}
