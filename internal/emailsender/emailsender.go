// Package emailsender is an adapter over AWS SES v2 for delivering
// generated outreach emails, with sequential batch send and
// per-recipient outcome reporting.
package emailsender

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

const maxBatchSize = 50

// Sender delivers prospect outreach emails through AWS SES v2.
type Sender struct {
	client *sesv2.Client
	from   string
	cfg    config.EmailConfig
}

// New builds a Sender from the standard AWS credential chain, region
// pinned to cfg.SESRegion.
func New(ctx context.Context, cfg config.EmailConfig) (*Sender, error) {
	region := cfg.SESRegion
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errkind.New(errkind.ConfigError, fmt.Errorf("emailsender: load AWS config: %w", err))
	}
	return &Sender{
		client: sesv2.NewFromConfig(awsCfg),
		from:   cfg.SenderIdentity,
		cfg:    cfg,
	}, nil
}

// SendOutcome is the per-recipient result of a Send or SendBatch call.
type SendOutcome struct {
	Prospect  domain.Prospect
	Success   bool
	MessageID string
	Err       error
}

// Send delivers a single prospect's generated email.
func (s *Sender) Send(ctx context.Context, prospect domain.Prospect) SendOutcome {
	if prospect.Email == "" || prospect.EmailBody == "" {
		return SendOutcome{Prospect: prospect, Err: errkind.New(errkind.Permanent, fmt.Errorf("emailsender: prospect %q has no email or body", prospect.Name))}
	}

	subject, changed1 := sanitize(prospect.EmailSubject)
	body, changed2 := sanitize(prospect.EmailBody)
	if changed1 || changed2 {
		logger.Debug("emailsender: sanitized control characters before send", "prospect", prospect.Name)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{prospect.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("company"), Value: aws.String(sanitizeTagValue(prospect.Company))},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return SendOutcome{Prospect: prospect, Err: errkind.New(classifySendError(err), err)}
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Info("emailsender: sent", "email", prospect.Email, "prospect", prospect.Name)
	return SendOutcome{Prospect: prospect, Success: true, MessageID: messageID}
}

// SendBatch dispatches messages sequentially (SES v2 has no true bulk
// send endpoint for arbitrary per-recipient content) with no delay
// between sends; any pacing between batches is up to the caller.
func (s *Sender) SendBatch(ctx context.Context, prospects []domain.Prospect) ([]SendOutcome, error) {
	if len(prospects) == 0 {
		return nil, nil
	}
	if len(prospects) > maxBatchSize {
		return nil, errkind.New(errkind.Permanent, fmt.Errorf("emailsender: batch size %d exceeds max %d", len(prospects), maxBatchSize))
	}

	outcomes := make([]SendOutcome, 0, len(prospects))
	for _, p := range prospects {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}
		outcomes = append(outcomes, s.Send(ctx, p))
	}
	return outcomes, nil
}

// Track records a delivery/bounce/complaint webhook-style event. The
// concrete event-source integration (SNS subscription, webhook endpoint)
// is a collaborator's responsibility; Track only normalizes the outcome.
func (s *Sender) Track(prospect domain.Prospect, event string) domain.EmailDeliveryStatus {
	switch strings.ToLower(event) {
	case "delivery":
		return domain.DeliveryDelivered
	case "bounce":
		return domain.DeliveryBounced
	case "complaint":
		return domain.DeliveryComplained
	case "send":
		return domain.DeliverySent
	default:
		return domain.DeliveryFailed
	}
}

// sanitize strips C0/C1 control characters (except \n and \t) and
// unpaired UTF-16 surrogates that a hand-authored template could carry
// over from a malformed LLM completion, returning whether it changed
// anything so callers can log it.
func sanitize(s string) (string, bool) {
	if s == "" {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	changed := false
	for _, r := range s {
		if r == utf8.RuneError {
			changed = true
			continue
		}
		if r >= 0xD800 && r <= 0xDFFF {
			changed = true
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			changed = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), changed
}

// sanitizeTagValue additionally restricts to SES message-tag-safe
// characters (alphanumeric, underscore, hyphen), replacing any other
// character with an underscore. A value with no safe character at all
// becomes "unknown".
func sanitizeTagValue(s string) string {
	var b strings.Builder
	hasSafe := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
			hasSafe = true
		} else {
			b.WriteRune('_')
		}
	}
	if !hasSafe {
		return "unknown"
	}
	return b.String()
}

// classifySendError maps an SES SDK error into the shared taxonomy.
// Throttling and 5xx-shaped service errors map to the retryable kinds
// (RateLimited, Transient); everything else (bad destination, unverified
// identity, quota) maps to a non-retryable kind.
func classifySendError(err error) errkind.Kind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "throttl") || strings.Contains(msg, "toomanyrequests") || strings.Contains(msg, "rate exceeded"):
		return errkind.RateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "internal"):
		return errkind.Transient
	case strings.Contains(msg, "accessdenied") || strings.Contains(msg, "notauthorized") || strings.Contains(msg, "messagerejected"):
		return errkind.AuthError
	case strings.Contains(msg, "sendingquotaexceeded") || strings.Contains(msg, "quota"):
		return errkind.QuotaExceeded
	default:
		return errkind.Permanent
	}
}
