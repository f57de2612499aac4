// Package notifier translates lifecycle events into structured messages
// and posts them via Store. Delivery is best-effort: a failure to
// notify never fails the Orchestrator.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/pkg/logger"
	"github.com/ignite/prospectai/internal/store"
)

// EventType is one of the lifecycle events the Orchestrator or CLI can
// raise.
type EventType string

const (
	CampaignCompleted EventType = "CampaignCompleted"
	CampaignFailed    EventType = "CampaignFailed"
	DailySummary      EventType = "DailySummary"
	ErrorAlert        EventType = "ErrorAlert"
	WeeklyReport      EventType = "WeeklyReport"
	QuotaWarning      EventType = "QuotaWarning"
)

// Priority carries the urgency of an event, separate from its type, so
// e.g. an ErrorAlert for a single retried stage and one for a campaign
// abort can both use ErrorAlert with different priority.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
)

// Event is one notification instance.
type Event struct {
	Type     EventType
	Priority Priority
	Summary  string
	Details  map[string]string
}

// Notifier posts Events as structured Store entries (reusing the
// processing-log database as the event sink, the same document store
// the Orchestrator already writes to) when cfg.Features.Notifications is
// enabled.
type Notifier struct {
	st      *store.Store
	enabled bool
}

// New builds a Notifier. enabled mirrors cfg.Features.Notifications.
func New(st *store.Store, enabled bool) *Notifier {
	return &Notifier{st: st, enabled: enabled}
}

// Notify posts ev. Errors are logged, never returned; callers should
// not branch on notification delivery.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if !n.enabled {
		return
	}

	entry := domain.ProcessingLogEntry{
		TS:      time.Now(),
		Step:    "notify:" + string(ev.Type),
		Outcome: domain.OutcomeCompleted,
		Details: formatDetails(ev),
	}
	if err := n.st.AppendLog(ctx, entry); err != nil {
		logger.Warn("notifier: best-effort delivery failed", "event", string(ev.Type), "error", err.Error())
	}
}

// CampaignFinished posts either CampaignCompleted or CampaignFailed
// based on progress.Status.
func (n *Notifier) CampaignFinished(ctx context.Context, progress domain.CampaignProgress) {
	evType := CampaignCompleted
	priority := PriorityNormal
	if progress.Status == domain.CampaignFailed {
		evType = CampaignFailed
		priority = PriorityHigh
	}
	n.Notify(ctx, Event{
		Type:     evType,
		Priority: priority,
		Summary:  fmt.Sprintf("campaign %q %s: %d processed, %d prospects, %d emails sent", progress.Name, progress.Status, progress.ProcessedCount, progress.ProspectsFound, progress.EmailsSent),
		Details: map[string]string{
			"campaign_id":      progress.ID,
			"processed_count":  fmt.Sprint(progress.ProcessedCount),
			"prospects_found":  fmt.Sprint(progress.ProspectsFound),
			"emails_generated": fmt.Sprint(progress.EmailsGenerated),
			"emails_sent":      fmt.Sprint(progress.EmailsSent),
			"error_count":      fmt.Sprint(progress.ErrorCount),
		},
	})
}

// DailySummaryEvent posts the day's analytics snapshot.
func (n *Notifier) DailySummaryEvent(ctx context.Context, a domain.DailyAnalytics) {
	n.Notify(ctx, Event{
		Type:     DailySummary,
		Priority: PriorityLow,
		Summary:  fmt.Sprintf("daily summary %s: %d companies, %d prospects, %d emails sent", a.Date, a.CompaniesProcessed, a.ProspectsFound, a.EmailsSent),
		Details: map[string]string{
			"date":                a.Date,
			"companies_processed": fmt.Sprint(a.CompaniesProcessed),
			"estimated_api_calls": fmt.Sprint(a.EstimatedAPICalls),
		},
	})
}

// Alert posts an ad-hoc event of type evType at High priority, for a
// condition worth surfacing outside a component's own retry loop (the
// Orchestrator uses it when a company exhausts its retry budget).
func (n *Notifier) Alert(ctx context.Context, evType EventType, summary string, details map[string]string) {
	n.Notify(ctx, Event{Type: evType, Priority: PriorityHigh, Summary: summary, Details: details})
}

func formatDetails(ev Event) string {
	out := ev.Summary
	for k, v := range ev.Details {
		out += fmt.Sprintf(" | %s=%s", k, v)
	}
	return out
}
