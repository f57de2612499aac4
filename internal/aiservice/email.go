package aiservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/llm"
)

// GeneratedEmail is the structured result of generate_email.
type GeneratedEmail struct {
	Subject              string  `json:"subject"`
	Body                 string  `json:"body"`
	PersonalizationScore float64 `json:"personalization_score"`
}

// EmailEnvelope is the uniform envelope returned by GenerateEmail.
type EmailEnvelope struct {
	Success         bool
	Data            *GeneratedEmail
	ConfidenceScore float64
	Cached          bool
	ErrorKind       errkind.Kind
	ErrorMessage    string
}

const generateEmailOp = "generate_email"

type emailDraft struct {
	Opening string `json:"opening"`
	Closing string `json:"closing"`
}

// GenerateEmail produces a personalized outreach email for prospect
// using the given template kind. Validation: subject must be non-empty;
// body word count must not exceed config.Email.MaxBodyWords; body must
// reference at least one token drawn from the prospect's company or
// role, or personalization_score is reduced. Below
// config.Email.PersonalizationFloor the operation still returns the
// body but with ErrorKind=LowPersonalization.
func (s *Service) GenerateEmail(
	ctx context.Context,
	prospect domain.Prospect,
	kind TemplateKind,
	linkedinProfile *ProfileData,
	productAnalysis *ProductAnalysis,
	sender *domain.SenderProfile,
	extraContext map[string]string,
) EmailEnvelope {
	start := time.Now()
	metrics := s.metricsFor(generateEmailOp)

	payload, _ := json.Marshal(struct {
		Prospect domain.Prospect   `json:"prospect"`
		Kind     TemplateKind      `json:"kind"`
		Profile  *ProfileData      `json:"profile,omitempty"`
		Product  *ProductAnalysis  `json:"product,omitempty"`
		Extra    map[string]string `json:"extra,omitempty"`
	}{prospect, kind, linkedinProfile, productAnalysis, extraContext})
	key := opKey(generateEmailOp, payload)
	_, cached := s.cache.Get(ctx, key)

	var repaired bool
	raw, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		messages := buildEmailMessages(prospect, kind, linkedinProfile, productAnalysis, sender, extraContext)
		var draft emailDraft
		r, jsonErr := s.completeJSON(ctx, messages, &draft)
		repaired = r
		if jsonErr != nil {
			return nil, jsonErr
		}

		senderName, senderRole, senderLinks := "", "", ""
		if sender != nil {
			senderName = sender.Name
			senderRole = sender.CurrentRole
			if len(sender.PortfolioLinks) > 0 {
				senderLinks = strings.Join(sender.PortfolioLinks, " | ")
			}
		}
		body, renderErr := renderLayout(kind, draft.Opening, draft.Closing, senderName, senderRole, senderLinks)
		if renderErr != nil {
			return nil, renderErr
		}

		subject := fmt.Sprintf("Re: %s at %s", prospect.Role, prospect.Company)
		if draft.Opening != "" {
			subject = firstSentence(draft.Opening)
		}

		result := GeneratedEmail{Subject: subject, Body: body}
		return json.Marshal(result)
	}, s.cfg.Cache.DefaultTTL())
	if repaired {
		metrics.parseErrors.Add(1)
	}

	if err != nil {
		metrics.record(time.Since(start), false, false)
		return EmailEnvelope{Success: false, ErrorKind: errkind.As(err), ErrorMessage: err.Error()}
	}

	var data GeneratedEmail
	if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
		metrics.record(time.Since(start), false, cached)
		return EmailEnvelope{Success: false, ErrorKind: errkind.ParseError, ErrorMessage: jsonErr.Error()}
	}

	data.PersonalizationScore = personalizationScore(data.Body, prospect)
	envelope := EmailEnvelope{Success: true, Data: &data, ConfidenceScore: data.PersonalizationScore, Cached: cached}

	if wordCount(data.Body) > s.cfg.Email.MaxBodyWords {
		metrics.record(time.Since(start), false, cached)
		return EmailEnvelope{Success: false, ErrorKind: errkind.Permanent, ErrorMessage: "generated body exceeds max word count", Data: &data}
	}
	if data.Subject == "" {
		metrics.record(time.Since(start), false, cached)
		return EmailEnvelope{Success: false, ErrorKind: errkind.Permanent, ErrorMessage: "generated subject is empty", Data: &data}
	}
	if data.PersonalizationScore < s.cfg.Email.PersonalizationFloor {
		metrics.record(time.Since(start), true, cached)
		envelope.ErrorKind = errkind.LowPersonalization
		envelope.ErrorMessage = "personalization below configured floor"
		return envelope
	}

	metrics.record(time.Since(start), true, cached)
	return envelope
}

func buildEmailMessages(
	prospect domain.Prospect,
	kind TemplateKind,
	profile *ProfileData,
	product *ProductAnalysis,
	sender *domain.SenderProfile,
	extra map[string]string,
) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s outreach email opening and closing (not a full letter, no signature) for:\n", kind)
	fmt.Fprintf(&sb, "Prospect: %s, %s at %s\n", prospect.Name, prospect.Role, prospect.Company)
	if profile != nil {
		fmt.Fprintf(&sb, "Profile summary: %s\n", profile.Summary)
	}
	if product != nil {
		fmt.Fprintf(&sb, "Product: %s - %s\n", product.Name, product.Description)
	}
	if sender != nil {
		fmt.Fprintf(&sb, "Sender value proposition: %s\n", sender.ValueProposition)
	}
	for k, v := range extra {
		fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}
	sb.WriteString("Return JSON with fields: opening, closing.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You write concise, specific, non-generic cold outreach emails."},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".!?"); idx > 0 && idx < 80 {
		return s[:idx]
	}
	if len(s) > 60 {
		return s[:60]
	}
	return s
}

// personalizationScore is the post-hoc quality check: the body must
// contain at least one token drawn from the prospect's company or role.
func personalizationScore(body string, prospect domain.Prospect) float64 {
	lower := strings.ToLower(body)
	tokens := append(strings.Fields(strings.ToLower(prospect.Company)), strings.Fields(strings.ToLower(prospect.Role))...)
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:'\"")
		if len(tok) < 3 {
			continue
		}
		if strings.Contains(lower, tok) {
			return 0.8
		}
	}
	return 0.2
}
