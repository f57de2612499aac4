package store

import (
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/domain"
)

func TestRichTextRoundTrip(t *testing.T) {
	require.Empty(t, richText(""))
	rt := richText("hello world")
	require.Equal(t, "hello world", plainText(rt))
}

func TestProspectToPropertiesRoundTrip(t *testing.T) {
	p := domain.Prospect{
		Name:                  "Ada Lovelace",
		Role:                  "CTO",
		Company:               "Acme Corp",
		CompanyKey:            "acmecom",
		ProfileURL:            "https://linkedin.com/in/ada",
		Email:                 "ada@acme.com",
		EmailConfidence:       0.87,
		AIProfileJSON:         `{"seniority":"exec"}`,
		PersonalizationBlob:   "loved your launch post",
		EmailSubject:          "Quick question about Acme",
		EmailBody:             "Hi Ada...",
		EmailGenerationStatus: domain.EmailGenerated,
		EmailDeliveryStatus:   domain.DeliverySent,
		Source:                "product_feed",
		GeneratedAt:           time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	props := prospectToProperties(p)
	got := propertiesToProspect("page-123", props)

	require.Equal(t, "page-123", got.ID)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.Role, got.Role)
	require.Equal(t, p.Company, got.Company)
	require.Equal(t, p.CompanyKey, got.CompanyKey)
	require.Equal(t, p.ProfileURL, got.ProfileURL)
	require.Equal(t, p.Email, got.Email)
	require.InDelta(t, p.EmailConfidence, got.EmailConfidence, 0.0001)
	require.Equal(t, p.AIProfileJSON, got.AIProfileJSON)
	require.Equal(t, p.PersonalizationBlob, got.PersonalizationBlob)
	require.Equal(t, p.EmailSubject, got.EmailSubject)
	require.Equal(t, p.EmailBody, got.EmailBody)
	require.Equal(t, p.EmailGenerationStatus, got.EmailGenerationStatus)
	require.Equal(t, p.EmailDeliveryStatus, got.EmailDeliveryStatus)
	require.Equal(t, p.Source, got.Source)
	require.True(t, p.GeneratedAt.Equal(got.GeneratedAt))
}

func TestProspectToPropertiesOmitsEmptyEmail(t *testing.T) {
	props := prospectToProperties(domain.Prospect{Name: "No Email"})
	_, ok := props["email"]
	require.False(t, ok)
}

func TestProspectCompanyKeyFallsBackToNormalizedName(t *testing.T) {
	props := prospectToProperties(domain.Prospect{Name: "Ada Lovelace", Company: "Acme, Inc."})
	require.Equal(t, domain.NormalizeCompanyKey("Acme, Inc."), richTextValue(props, "company_key"))

	withKey := prospectToProperties(domain.Prospect{Name: "Ada Lovelace", Company: "Acme, Inc.", CompanyKey: "acmecom"})
	require.Equal(t, "acmecom", richTextValue(withKey, "company_key"))
}

func TestCampaignToPropertiesRoundTrip(t *testing.T) {
	c := domain.CampaignProgress{
		ID:              "campaign-1",
		Name:            "July launches",
		Status:          domain.CampaignRunning,
		TargetCount:     50,
		ProcessedCount:  10,
		ProspectsFound:  20,
		EmailsGenerated: 8,
		EmailsSent:      3,
		SuccessRate:     0.6,
		CurrentStep:     "enrich",
		CurrentCompany:  "Acme Corp",
		ErrorCount:      1,
		StartTS:         time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
	}

	props := campaignToProperties(c)
	got := propertiesToCampaign(props)

	require.Equal(t, c.ID, got.ID)
	require.Equal(t, c.Name, got.Name)
	require.Equal(t, c.Status, got.Status)
	require.Equal(t, c.TargetCount, got.TargetCount)
	require.Equal(t, c.ProcessedCount, got.ProcessedCount)
	require.Equal(t, c.ProspectsFound, got.ProspectsFound)
	require.Equal(t, c.EmailsGenerated, got.EmailsGenerated)
	require.Equal(t, c.EmailsSent, got.EmailsSent)
	require.InDelta(t, c.SuccessRate, got.SuccessRate, 0.0001)
	require.Equal(t, c.CurrentStep, got.CurrentStep)
	require.Equal(t, c.CurrentCompany, got.CurrentCompany)
	require.Equal(t, c.ErrorCount, got.ErrorCount)
	require.True(t, c.StartTS.Equal(got.StartTS))
	require.True(t, got.EndTS.IsZero())
}

func TestPropertiesToControlCommand(t *testing.T) {
	props := notionapi.Properties{
		"action":          notionapi.SelectProperty{Select: notionapi.Option{Name: string(domain.ActionPause)}},
		"requested_by":    notionapi.RichTextProperty{RichText: richText("operator@example.com")},
		"parameters_json": notionapi.RichTextProperty{RichText: richText(`{"reason":"rate limit spike"}`)},
	}
	cmd := propertiesToControlCommand(props)
	require.Equal(t, domain.ActionPause, cmd.Action)
	require.Equal(t, "operator@example.com", cmd.RequestedBy)
	require.Equal(t, "rate limit spike", cmd.Parameters["reason"])
}

func TestPropertiesToControlCommandIgnoresMalformedParameters(t *testing.T) {
	props := notionapi.Properties{
		"action":          notionapi.SelectProperty{Select: notionapi.Option{Name: string(domain.ActionStop)}},
		"parameters_json": notionapi.RichTextProperty{RichText: richText("not json")},
	}
	cmd := propertiesToControlCommand(props)
	require.Equal(t, domain.ActionStop, cmd.Action)
	require.Nil(t, cmd.Parameters)
}

func TestEncodeDecodeStringSetRoundTrip(t *testing.T) {
	set := map[string]bool{"acme.com": true, "globex.com": true}
	decoded := decodeStringSet(encodeStringSet(set))
	require.Equal(t, set, decoded)
}

func TestDecodeStringSetIgnoresBlankLines(t *testing.T) {
	decoded := decodeStringSet([]byte("acme.com\n\nglobex.com\n"))
	require.Len(t, decoded, 2)
	require.True(t, decoded["acme.com"])
	require.True(t, decoded["globex.com"])
}
