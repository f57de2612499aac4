package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/spf13/cobra"

	"github.com/ignite/prospectai/internal/aiservice"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

func newGenerateEmailsCmd(configPath *string) *cobra.Command {
	var prospectIDs string

	cmd := &cobra.Command{
		Use:   "generate-emails",
		Short: "Run the email-generation stage for a specific list of prospects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if prospectIDs == "" {
				return newExitError(exitConfigInvalid, "--prospect-ids is required")
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

			var prospects []domain.Prospect
			for _, id := range strings.Split(prospectIDs, ",") {
				id = strings.TrimSpace(id)
				if id == "" {
					continue
				}
				p, err := a.store.GetProspect(ctx, id)
				if err != nil {
					logger.Warn("generate-emails: fetch prospect failed", "id", id, "error", err.Error())
					continue
				}
				prospects = append(prospects, p)
			}

			failures := generateEmailsFor(ctx, a, prospects)
			fmt.Printf("generate-emails: %d requested, %d failed\n", len(prospects), failures)
			if failures > 0 {
				return newExitError(exitPartial, "%d of %d email generations failed", failures, len(prospects))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prospectIDs, "prospect-ids", "", "comma-separated prospect page IDs")
	return cmd
}

func newGenerateEmailsRecentCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "generate-emails-recent",
		Short: "Run the email-generation stage over prospects that don't yet have a generated email",
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

			filter := notionapi.PropertyFilter{
				Property: "email_generation_status",
				Select:   &notionapi.SelectFilterCondition{Equals: string(domain.EmailNotGenerated)},
			}
			prospects, err := a.store.FindProspects(ctx, filter, limit)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}

			failures := generateEmailsFor(ctx, a, prospects)
			fmt.Printf("generate-emails-recent: %d found, %d failed\n", len(prospects), failures)
			if failures > 0 {
				return newExitError(exitPartial, "%d of %d email generations failed", failures, len(prospects))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of prospects to process")
	return cmd
}

func newSendEmailsRecentCmd(configPath *string) *cobra.Command {
	var (
		limit       int
		batchSize   int
		delaySecond int
	)

	cmd := &cobra.Command{
		Use:   "send-emails-recent",
		Short: "Send already-generated emails that haven't been sent yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return newExitError(exitConfigInvalid, "%v", err)
			}
			cfg.Email.AutoSendEmails = true
			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}
			if a.deps.EmailSender == nil {
				return newExitError(exitConfigInvalid, "email sending is not configured")
			}

			filter := notionapi.PropertyFilter{
				Property: "email_generation_status",
				Select:   &notionapi.SelectFilterCondition{Equals: string(domain.EmailGenerated)},
			}
			prospects, err := a.store.FindProspects(ctx, filter, limit)
			if err != nil {
				return newExitError(exitFatal, "%v", err)
			}

			sent, failed := 0, 0
			if batchSize <= 0 {
				batchSize = len(prospects)
			}
			for i := 0; i < len(prospects); i += batchSize {
				end := i + batchSize
				if end > len(prospects) {
					end = len(prospects)
				}
				batch := prospects[i:end]
				// send-emails-recent over a set containing already-Sent
				// prospects skips them without side effects; the query
				// above already filters to Generated-only, so this is
				// the single remaining idempotency guard against a
				// status that changed between query and send.
				pending := make([]domain.Prospect, 0, len(batch))
				for _, p := range batch {
					if p.EmailDeliveryStatus == domain.DeliverySent {
						continue
					}
					pending = append(pending, p)
				}

				outcomes, sendErr := a.deps.EmailSender.SendBatch(ctx, pending)
				if sendErr != nil {
					logger.Warn("send-emails-recent: batch send failed", "error", sendErr.Error())
					failed += len(pending)
					continue
				}
				for _, outcome := range outcomes {
					p := outcome.Prospect
					if outcome.Success {
						p.EmailGenerationStatus = domain.EmailSent
						p.EmailDeliveryStatus = domain.DeliverySent
						p.SentAt = time.Now()
						sent++
					} else {
						p.EmailDeliveryStatus = domain.DeliveryFailed
						failed++
					}
					if _, err := a.store.UpsertProspect(ctx, p); err != nil {
						logger.Warn("send-emails-recent: persist outcome failed", "prospect", p.Name, "error", err.Error())
					}
				}

				if end < len(prospects) && delaySecond > 0 {
					time.Sleep(time.Duration(delaySecond) * time.Second)
				}
			}

			fmt.Printf("send-emails-recent: %d sent, %d failed\n", sent, failed)
			if failed > 0 {
				return newExitError(exitPartial, "%d sends failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of prospects to send to")
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "number of emails per send batch")
	cmd.Flags().IntVar(&delaySecond, "delay", 5, "seconds to wait between send batches")
	return cmd
}

// generateEmailsFor runs AIService.GenerateEmail for each prospect and
// persists the result, returning the number of failures.
func generateEmailsFor(ctx context.Context, a *app, prospects []domain.Prospect) int {
	failures := 0
	for _, p := range prospects {
		envelope := a.deps.AIService.GenerateEmail(ctx, p, aiservice.TemplateColdOutreach, nil, nil, a.sender, nil)
		if !envelope.Success || envelope.Data == nil {
			failures++
			continue
		}
		p.EmailSubject = envelope.Data.Subject
		p.EmailBody = envelope.Data.Body
		p.EmailGenerationStatus = domain.EmailGenerated
		p.GeneratedAt = time.Now()
		if _, err := a.store.UpsertProspect(ctx, p); err != nil {
			logger.Warn("generate-emails: persist failed", "prospect", p.Name, "error", err.Error())
			failures++
		}
	}
	return failures
}
