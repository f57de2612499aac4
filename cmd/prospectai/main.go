// Command prospectai drives the prospecting pipeline: campaign runs,
// single-company debugging, email-only reruns, and operator control.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/prospectai/internal/pkg/logger"
)

// Exit codes: 0 success, 1 configuration invalid, 2 fatal orchestration
// error, 3 partial (campaign completed with failures).
const (
	exitSuccess       = 0
	exitConfigInvalid = 1
	exitFatal         = 2
	exitPartial       = 3
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if ce, ok := err.(*exitError); ok {
			if ce.msg != "" {
				logger.Error("prospectai: command failed", "error", ce.msg)
			}
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
}

// exitError carries a specific process exit code through cobra's error
// return path; main exits with exitFatal for any other non-nil error.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func newExitError(code int, format string, args ...interface{}) error {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "prospectai",
		Short: "Prospecting and outreach orchestrator",
		Long: `prospectai discovers companies from a product-launch feed, extracts
team members, resolves emails and profiles, enriches each prospect with
AI-structured insights, generates personalized outreach, and persists
everything to the configured document store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	root.AddCommand(
		newRunCampaignCmd(&configPath),
		newDiscoverCmd(&configPath),
		newProcessCompanyCmd(&configPath),
		newGenerateEmailsCmd(&configPath),
		newGenerateEmailsRecentCmd(&configPath),
		newSendEmailsRecentCmd(&configPath),
		newPauseCampaignCmd(&configPath),
		newCampaignStatusCmd(&configPath),
		newValidateConfigCmd(&configPath),
	)
	return root
}
