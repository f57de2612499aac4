package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

const heartbeatInterval = 60 * time.Second

// heartbeatLoop periodically overwrites one SystemStatus row per
// rate-limited external service, deriving quota_used from the service's
// daily window. Heartbeats are best-effort operator telemetry; a failed
// upsert is logged and the next tick tries again.
func (o *Orchestrator) heartbeatLoop(ctx context.Context) {
	if o.deps.RateLimiter == nil {
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.reportStatuses(ctx)
		}
	}
}

func (o *Orchestrator) reportStatuses(ctx context.Context) {
	for name := range o.cfg.RateLimits.Services {
		usage, err := o.deps.RateLimiter.GetCurrentUsage(ctx, name)
		if err != nil {
			logger.Debug("orchestrator: heartbeat usage read failed", "service", name, "error", err.Error())
			continue
		}

		quotaUsed := 0.0
		if limit := usage["day_limit"]; limit > 0 {
			quotaUsed = float64(usage["day_current"]) / float64(limit)
		}
		health := domain.HealthHealthy
		switch {
		case quotaUsed >= 1:
			health = domain.HealthError
		case quotaUsed >= 0.8:
			health = domain.HealthWarning
		}

		status := domain.SystemStatus{
			Name:       name,
			Status:     health,
			LastUpdate: time.Now(),
			QuotaUsed:  quotaUsed,
			Details:    fmt.Sprintf("minute %d/%d, day %d/%d", usage["minute_current"], usage["minute_limit"], usage["day_current"], usage["day_limit"]),
		}
		if err := o.deps.Store.UpsertSystemStatus(ctx, status); err != nil {
			logger.Debug("orchestrator: heartbeat upsert failed", "service", name, "error", err.Error())
		}
	}
}

// estimatedAPICalls is a rough accounting of external requests a
// campaign issued, for the daily snapshot only. Nothing depends on its
// accuracy.
func estimatedAPICalls(p domain.CampaignProgress) int {
	return 5 + p.ProcessedCount*15 + p.ProspectsFound*3 + p.EmailsGenerated*2 + p.EmailsSent
}

// recordAnalytics writes the end-of-run daily snapshot and, when
// notifications are on, a matching summary event. Both are best-effort.
func (o *Orchestrator) recordAnalytics(ctx context.Context, final domain.CampaignProgress) {
	snapshot := domain.DailyAnalytics{
		Date:               time.Now().Format("2006-01-02"),
		CompaniesProcessed: final.ProcessedCount,
		ProspectsFound:     final.ProspectsFound,
		EmailsGenerated:    final.EmailsGenerated,
		EmailsSent:         final.EmailsSent,
		EstimatedAPICalls:  estimatedAPICalls(final),
	}
	if err := o.deps.Store.RecordDailyAnalytics(ctx, snapshot); err != nil {
		logger.Debug("orchestrator: analytics snapshot failed", "error", err.Error())
	}
	if o.deps.Notifier != nil {
		o.deps.Notifier.DailySummaryEvent(ctx, snapshot)
	}
}
