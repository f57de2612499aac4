package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/prospectai/internal/domain"
)

func newPauseCampaignCmd(configPath *string) *cobra.Command {
	var (
		reason string
		resume bool
		stop   bool
	)

	cmd := &cobra.Command{
		Use:   "pause-campaign",
		Short: "Inject a pause, resume, or stop control command for the running campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return newExitError(exitConfigInvalid, "%v", err)
			}
			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}

			action := domain.ActionPause
			switch {
			case stop:
				action = domain.ActionStop
			case resume:
				action = domain.ActionResume
			}

			cmdEntry := domain.ControlCommand{
				Action:      action,
				RequestedBy: "cli",
				Parameters:  map[string]string{"reason": reason},
			}
			if err := a.store.PostControlCommand(ctx, cmdEntry); err != nil {
				return newExitError(exitFatal, "%v", err)
			}
			fmt.Printf("posted control command: %s\n", action)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the campaign is being paused")
	cmd.Flags().BoolVar(&resume, "resume", false, "post a resume command instead of pause")
	cmd.Flags().BoolVar(&stop, "stop", false, "post a stop command instead of pause")
	return cmd
}
