package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/pkg/logger"
	"github.com/ignite/prospectai/internal/store"
)

// progressDelta is one increment posted by a worker after finishing a
// company. The aggregator folds these into the single persisted
// CampaignProgress record instead of every worker writing to the Store
// directly, so concurrent workers never race on the same page.
type progressDelta struct {
	processed       int
	succeeded       int // companies that stored at least one prospect
	prospectsFound  int
	emailsGenerated int
	emailsSent      int
	errors          int
	currentStep     string
	currentCompany  string
}

// progressAggregator owns the in-memory CampaignProgress and
// periodically flushes it to the Store. Owning the record in one
// goroutine keeps campaign updates totally ordered without a lock
// shared across workers.
type progressAggregator struct {
	mu        sync.Mutex
	progress  domain.CampaignProgress
	succeeded int
	deltas    chan progressDelta
	store     *store.Store
	interval  time.Duration
}

func newProgressAggregator(initial domain.CampaignProgress, st *store.Store, flushInterval time.Duration) *progressAggregator {
	return &progressAggregator{
		progress: initial,
		deltas:   make(chan progressDelta, 256),
		store:    st,
		interval: flushInterval,
	}
}

func (a *progressAggregator) post(d progressDelta) {
	a.deltas <- d
}

func (a *progressAggregator) snapshot() domain.CampaignProgress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress
}

func (a *progressAggregator) setStatus(status domain.CampaignStatus) {
	a.mu.Lock()
	a.progress.Status = status
	if status == domain.CampaignCompleted || status == domain.CampaignFailed {
		a.progress.EndTS = time.Now()
		// Terminal states have no company in flight; apply() skips
		// empty-string deltas, so this is the one place the field resets.
		a.progress.CurrentCompany = ""
	}
	a.mu.Unlock()
}

// run drains deltas and applies them, flushing to the Store on
// flushInterval and on close. Returns when deltas is closed and drained.
func (a *progressAggregator) run(ctx context.Context) {
	interval := a.interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case d, ok := <-a.deltas:
			if !ok {
				a.flush(ctx)
				return
			}
			a.apply(d)
		case <-ticker.C:
			a.flush(ctx)
		case <-ctx.Done():
			a.flush(context.Background())
			return
		}
	}
}

func (a *progressAggregator) apply(d progressDelta) {
	a.mu.Lock()
	a.progress.ProcessedCount += d.processed
	a.succeeded += d.succeeded
	a.progress.ProspectsFound += d.prospectsFound
	a.progress.EmailsGenerated += d.emailsGenerated
	a.progress.EmailsSent += d.emailsSent
	a.progress.ErrorCount += d.errors
	if d.currentStep != "" {
		a.progress.CurrentStep = d.currentStep
	}
	if d.currentCompany != "" {
		a.progress.CurrentCompany = d.currentCompany
	}
	if a.progress.ProcessedCount > 0 {
		a.progress.SuccessRate = float64(a.succeeded) / float64(a.progress.ProcessedCount)
	}
	a.mu.Unlock()
}

func (a *progressAggregator) flush(ctx context.Context) {
	if a.store == nil {
		return
	}
	snap := a.snapshot()
	if err := a.store.UpsertCampaign(ctx, snap); err != nil {
		logger.Warn("orchestrator: progress flush failed", "campaign", snap.ID, "error", err.Error())
	}
}

func (a *progressAggregator) close() {
	close(a.deltas)
}
