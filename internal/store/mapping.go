package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/ignite/prospectai/internal/domain"
)

func selectName(props notionapi.Properties, key string) string {
	if p, ok := props[key].(notionapi.SelectProperty); ok {
		return p.Select.Name
	}
	return ""
}

func richTextValue(props notionapi.Properties, key string) string {
	if p, ok := props[key].(notionapi.RichTextProperty); ok {
		return plainText(p.RichText)
	}
	return ""
}

func titleValue(props notionapi.Properties, key string) string {
	if p, ok := props[key].(notionapi.TitleProperty); ok {
		return plainText(p.Title)
	}
	return ""
}

func numberValue(props notionapi.Properties, key string) float64 {
	if p, ok := props[key].(notionapi.NumberProperty); ok {
		return p.Number
	}
	return 0
}

func dateValue(props notionapi.Properties, key string) time.Time {
	if p, ok := props[key].(notionapi.DateProperty); ok && p.Date != nil && p.Date.Start != nil {
		return time.Time(*p.Date.Start)
	}
	return time.Time{}
}

func prospectToProperties(p domain.Prospect) notionapi.Properties {
	ts := time.Now()
	companyKey := p.CompanyKey
	if companyKey == "" {
		companyKey = domain.NormalizeCompanyKey(p.Company)
	}
	props := notionapi.Properties{
		"name":                    notionapi.TitleProperty{Title: richText(p.Name)},
		"role":                    notionapi.RichTextProperty{RichText: richText(p.Role)},
		"company":                 notionapi.RichTextProperty{RichText: richText(p.Company)},
		"company_key":             notionapi.RichTextProperty{RichText: richText(companyKey)},
		"dedup_key":               notionapi.RichTextProperty{RichText: richText(p.DedupKey())},
		"profile_url":             notionapi.URLProperty{URL: p.ProfileURL},
		"email_confidence":        notionapi.NumberProperty{Number: p.EmailConfidence},
		"ai_profile_json":         notionapi.RichTextProperty{RichText: richText(p.AIProfileJSON)},
		"ai_product_json":         notionapi.RichTextProperty{RichText: richText(p.AIProductJSON)},
		"ai_business_json":        notionapi.RichTextProperty{RichText: richText(p.AIBusinessJSON)},
		"personalization_blob":    notionapi.RichTextProperty{RichText: richText(p.PersonalizationBlob)},
		"email_subject":           notionapi.RichTextProperty{RichText: richText(p.EmailSubject)},
		"email_body":              notionapi.RichTextProperty{RichText: richText(p.EmailBody)},
		"email_generation_status": notionapi.SelectProperty{Select: notionapi.Option{Name: string(p.EmailGenerationStatus)}},
		"email_delivery_status":   notionapi.SelectProperty{Select: notionapi.Option{Name: string(p.EmailDeliveryStatus)}},
		"source":                  notionapi.RichTextProperty{RichText: richText(p.Source)},
		"updated_at":              notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&ts)}},
	}
	if p.Email != "" {
		props["email"] = notionapi.EmailProperty{Email: p.Email}
	}
	if !p.GeneratedAt.IsZero() {
		props["generated_at"] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&p.GeneratedAt)}}
	}
	if !p.SentAt.IsZero() {
		props["sent_at"] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&p.SentAt)}}
	}
	return props
}

func propertiesToProspect(id string, props notionapi.Properties) domain.Prospect {
	email := ""
	if p, ok := props["email"].(notionapi.EmailProperty); ok {
		email = p.Email
	}
	profileURL := ""
	if p, ok := props["profile_url"].(notionapi.URLProperty); ok {
		profileURL = p.URL
	}

	return domain.Prospect{
		ID:                    id,
		Name:                  titleValue(props, "name"),
		Role:                  richTextValue(props, "role"),
		Company:               richTextValue(props, "company"),
		CompanyKey:            richTextValue(props, "company_key"),
		ProfileURL:            profileURL,
		Email:                 email,
		EmailConfidence:       numberValue(props, "email_confidence"),
		AIProfileJSON:         richTextValue(props, "ai_profile_json"),
		AIProductJSON:         richTextValue(props, "ai_product_json"),
		AIBusinessJSON:        richTextValue(props, "ai_business_json"),
		PersonalizationBlob:   richTextValue(props, "personalization_blob"),
		EmailSubject:          richTextValue(props, "email_subject"),
		EmailBody:             richTextValue(props, "email_body"),
		EmailGenerationStatus: domain.EmailGenerationStatus(selectName(props, "email_generation_status")),
		EmailDeliveryStatus:   domain.EmailDeliveryStatus(selectName(props, "email_delivery_status")),
		GeneratedAt:           dateValue(props, "generated_at"),
		SentAt:                dateValue(props, "sent_at"),
		Source:                richTextValue(props, "source"),
	}
}

func campaignToProperties(c domain.CampaignProgress) notionapi.Properties {
	props := notionapi.Properties{
		"campaign_id":      notionapi.TitleProperty{Title: richText(c.ID)},
		"name":             notionapi.RichTextProperty{RichText: richText(c.Name)},
		"status":           notionapi.SelectProperty{Select: notionapi.Option{Name: string(c.Status)}},
		"target_count":     notionapi.NumberProperty{Number: float64(c.TargetCount)},
		"processed_count":  notionapi.NumberProperty{Number: float64(c.ProcessedCount)},
		"prospects_found":  notionapi.NumberProperty{Number: float64(c.ProspectsFound)},
		"emails_generated": notionapi.NumberProperty{Number: float64(c.EmailsGenerated)},
		"emails_sent":      notionapi.NumberProperty{Number: float64(c.EmailsSent)},
		"success_rate":     notionapi.NumberProperty{Number: c.SuccessRate},
		"current_step":     notionapi.RichTextProperty{RichText: richText(c.CurrentStep)},
		"current_company":  notionapi.RichTextProperty{RichText: richText(c.CurrentCompany)},
		"error_count":      notionapi.NumberProperty{Number: float64(c.ErrorCount)},
	}
	if !c.StartTS.IsZero() {
		props["start_ts"] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&c.StartTS)}}
	}
	if !c.EndTS.IsZero() {
		props["end_ts"] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&c.EndTS)}}
	}
	return props
}

func propertiesToCampaign(props notionapi.Properties) domain.CampaignProgress {
	return domain.CampaignProgress{
		ID:              titleValue(props, "campaign_id"),
		Name:            richTextValue(props, "name"),
		Status:          domain.CampaignStatus(selectName(props, "status")),
		StartTS:         dateValue(props, "start_ts"),
		EndTS:           dateValue(props, "end_ts"),
		TargetCount:     int(numberValue(props, "target_count")),
		ProcessedCount:  int(numberValue(props, "processed_count")),
		ProspectsFound:  int(numberValue(props, "prospects_found")),
		EmailsGenerated: int(numberValue(props, "emails_generated")),
		EmailsSent:      int(numberValue(props, "emails_sent")),
		SuccessRate:     numberValue(props, "success_rate"),
		CurrentStep:     richTextValue(props, "current_step"),
		CurrentCompany:  richTextValue(props, "current_company"),
		ErrorCount:      int(numberValue(props, "error_count")),
	}
}

func propertiesToControlCommand(props notionapi.Properties) domain.ControlCommand {
	cmd := domain.ControlCommand{
		Action:      domain.ControlAction(selectName(props, "action")),
		RequestedBy: richTextValue(props, "requested_by"),
		SeenTS:      dateValue(props, "seen_ts"),
	}
	if raw := richTextValue(props, "parameters_json"); raw != "" {
		params := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &params); err == nil {
			cmd.Parameters = params
		}
	}
	return cmd
}

func encodeStringSet(set map[string]bool) []byte {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return []byte(strings.Join(keys, "\n"))
}

func decodeStringSet(data []byte) map[string]bool {
	out := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			out[line] = true
		}
	}
	return out
}
