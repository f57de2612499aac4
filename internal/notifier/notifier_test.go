package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/domain"
)

// When disabled, Notify must short-circuit before ever touching the
// store, so a nil *store.Store is safe to pass through every call site.
func TestDisabledNotifierNeverTouchesStore(t *testing.T) {
	n := New(nil, false)
	ctx := context.Background()

	require.NotPanics(t, func() {
		n.Notify(ctx, Event{Type: ErrorAlert, Summary: "should be a no-op"})
		n.CampaignFinished(ctx, domain.CampaignProgress{Status: domain.CampaignCompleted})
		n.CampaignFinished(ctx, domain.CampaignProgress{Status: domain.CampaignFailed})
		n.DailySummaryEvent(ctx, domain.DailyAnalytics{Date: "2026-07-29"})
		n.Alert(ctx, ErrorAlert, "quota nearly exhausted", map[string]string{"service": "email_finder"})
	})
}

func TestFormatDetailsIncludesSummaryAndDetailPairs(t *testing.T) {
	ev := Event{
		Summary: "campaign done",
		Details: map[string]string{"processed_count": "10"},
	}
	out := formatDetails(ev)
	require.Contains(t, out, "campaign done")
	require.Contains(t, out, "processed_count=10")
}

func TestFormatDetailsWithNoDetailsIsJustSummary(t *testing.T) {
	require.Equal(t, "campaign done", formatDetails(Event{Summary: "campaign done"}))
}
