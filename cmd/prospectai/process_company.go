package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/orchestrator"
)

func newProcessCompanyCmd(configPath *string) *cobra.Command {
	var domainFlag string

	cmd := &cobra.Command{
		Use:   "process-company NAME",
		Short: "Run the pipeline for a single named company",
		Args:  cobra.ExactArgs(1),
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

			company := domain.Company{Name: args[0], Domain: domainFlag}
			orch := orchestrator.New(a.cfg, a.deps)
			progress, err := orch.ProcessCompany(ctx, company)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}
			printProgress(progress)
			if progress.ErrorCount > 0 {
				return newExitError(exitPartial, "company %q finished with errors", company.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domainFlag, "domain", "", "company domain, when known (skips domain inference from the feed)")
	return cmd
}
