package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/orchestrator"
)

func newRunCampaignCmd(configPath *string) *cobra.Command {
	var (
		limit          int
		generateEmails bool
		sendEmails     bool
		campaignName   string
	)

	cmd := &cobra.Command{
		Use:   "run-campaign",
		Short: "Start a campaign: discover companies and run the full pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return newExitError(exitConfigInvalid, "%v", err)
			}
			cfg.Features.EnhancedPersonalization = cfg.Features.EnhancedPersonalization || generateEmails
			cfg.Email.AutoSendEmails = cfg.Email.AutoSendEmails || sendEmails

			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}

			orch := orchestrator.New(a.cfg, a.deps)
			progress, err := orch.RunCampaign(ctx, campaignNameOrDefault(campaignName), limit)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}
			printProgress(progress)
			if progress.Status == domain.CampaignFailed || progress.ErrorCount > 0 {
				return newExitError(exitPartial, "campaign completed with %d errors", progress.ErrorCount)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of companies to discover")
	cmd.Flags().BoolVar(&generateEmails, "generate-emails", false, "force-enable email generation for this run")
	cmd.Flags().BoolVar(&sendEmails, "send-emails", false, "force-enable email sending for this run")
	cmd.Flags().StringVar(&campaignName, "campaign-name", "", "human-readable campaign name")
	return cmd
}

func newDiscoverCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Start a campaign with no email-generation or email-sending stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return newExitError(exitConfigInvalid, "%v", err)
			}
			cfg.Features.EnhancedPersonalization = false
			cfg.Email.AutoSendEmails = false

			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}

			orch := orchestrator.New(a.cfg, a.deps)
			progress, err := orch.RunCampaign(ctx, "discover", limit)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}
			printProgress(progress)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of companies to discover")
	return cmd
}

func campaignNameOrDefault(name string) string {
	if name != "" {
		return name
	}
	return "manual-run"
}

func printProgress(p domain.CampaignProgress) {
	fmt.Printf("campaign %s (%s): processed=%d prospects=%d emails_generated=%d emails_sent=%d errors=%d\n",
		p.ID, p.Status, p.ProcessedCount, p.ProspectsFound, p.EmailsGenerated, p.EmailsSent, p.ErrorCount)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs[0])
	}
	return cfg, nil
}
