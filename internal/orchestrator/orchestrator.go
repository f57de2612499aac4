// Package orchestrator implements the bounded worker pool that drives
// each discovered company through the discovery, enrichment, and
// outreach pipeline, along with the campaign state machine and the
// operator control channel. Work is distributed over three in-memory
// priority lanes so operator-injected companies jump the line without
// starving retries.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/prospectai/internal/aiservice"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/emailfinder"
	"github.com/ignite/prospectai/internal/emailsender"
	"github.com/ignite/prospectai/internal/httpclient"
	"github.com/ignite/prospectai/internal/notifier"
	"github.com/ignite/prospectai/internal/pkg/distlock"
	"github.com/ignite/prospectai/internal/pkg/logger"
	"github.com/ignite/prospectai/internal/ratelimit"
	"github.com/ignite/prospectai/internal/scrapers"
	"github.com/ignite/prospectai/internal/store"
)

// Dependencies bundles every collaborator the Orchestrator drives a
// company through the pipeline with.
type Dependencies struct {
	ProductFeed   *scrapers.ProductFeed
	TeamExtractor *scrapers.TeamExtractor
	ProfileFinder *scrapers.ProfileFinder
	EmailFinder   *emailfinder.Finder
	AIService     *aiservice.Service
	EmailSender   *emailsender.Sender // nil when sending is disabled
	Store         *store.Store
	HTTPClient    *httpclient.Client
	RateLimiter   *ratelimit.RateLimiter
	Lock          distlock.DistLock
	Sender        *domain.SenderProfile
	Notifier      *notifier.Notifier
}

// Orchestrator runs one campaign at a time: RunCampaign blocks until the
// campaign reaches a terminal state or the caller cancels ctx.
type Orchestrator struct {
	cfg  *config.Config
	deps Dependencies

	queues   *priorityQueues
	progress *progressAggregator
	gate     *pauseGate

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight atomic.Int64
}

// New builds an Orchestrator for a single campaign run.
func New(cfg *config.Config, deps Dependencies) *Orchestrator {
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		gate: newPauseGate(),
	}
}

// RunCampaign discovers up to targetCount companies from the product
// feed, processes each through the per-company pipeline with
// cfg.Worker.MaxWorkers concurrent workers, and returns the final
// CampaignProgress once the campaign reaches Completed, Failed, or the
// context is cancelled.
func (o *Orchestrator) RunCampaign(ctx context.Context, name string, targetCount int) (domain.CampaignProgress, error) {
	if o.deps.Lock != nil {
		acquired, err := o.deps.Lock.Acquire(ctx)
		if err != nil {
			return domain.CampaignProgress{}, fmt.Errorf("orchestrator: acquire campaign lock: %w", err)
		}
		if !acquired {
			return domain.CampaignProgress{}, fmt.Errorf("orchestrator: campaign %q is already running elsewhere", name)
		}
		defer o.deps.Lock.Release(context.Background())
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	defer cancel()

	initial := domain.CampaignProgress{
		ID:          uuid.New().String(),
		Name:        name,
		Status:      domain.CampaignRunning,
		StartTS:     time.Now(),
		TargetCount: targetCount,
	}
	o.progress = newProgressAggregator(initial, o.deps.Store, 10*time.Second)
	go o.progress.run(runCtx)

	o.queues = newPriorityQueues(targetCount + o.cfg.Worker.MaxWorkers)

	poller := newControlPoller(o.deps.Store, o.cfg.Control, o)
	go poller.run(runCtx)
	go o.heartbeatLoop(runCtx)

	companies, err := o.deps.ProductFeed.List(runCtx, targetCount)
	if err != nil {
		o.progress.setStatus(domain.CampaignFailed)
		o.progress.close()
		return o.finish(runCtx, domain.CampaignFailed), err
	}

	processed, err := o.deps.Store.GetProcessedCompanies(runCtx)
	if err != nil {
		logger.Warn("orchestrator: failed to load processed-company set, proceeding without dedup", "error", err.Error())
		processed = map[string]bool{}
	}

	queued := 0
	for _, c := range companies {
		if processed[c.Key()] {
			o.logSkip("dedup", c.Name, "company already processed in a prior campaign")
			continue
		}
		o.queues.push(laneNormal, workItem{company: c})
		queued++
	}
	logger.Info("orchestrator: campaign starting", "campaign", name, "discovered", len(companies), "queued", queued)

	// Workers get their own child context so the pool can be shut down
	// once the queue is drained without cancelling runCtx, whose
	// cancellation (Stop or the caller) cuts waitForIdle short below.
	workCtx, stopWorkers := context.WithCancel(runCtx)
	defer stopWorkers()

	numWorkers := o.cfg.Worker.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = 4
	}
	o.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go o.worker(workCtx, i)
	}

	o.drainInBatches(runCtx, queued)
	drained := o.waitForIdle(runCtx)

	stopWorkers()
	o.wg.Wait()
	o.progress.close()

	// A Stop or cancel that arrives after the queue drained still ends
	// Completed; one that cuts the run short ends Failed.
	finalStatus := domain.CampaignCompleted
	if !drained {
		finalStatus = domain.CampaignFailed
	}
	return o.finish(context.Background(), finalStatus), nil
}

// waitForIdle blocks until every lane is empty and no worker holds an
// in-flight pipeline (the "queue drained AND all in-flight workers
// idle" precondition for Completed), or ctx is cancelled. It reports
// whether the idle state was reached.
func (o *Orchestrator) waitForIdle(ctx context.Context) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.queues.empty() && o.inflight.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// ProcessCompany runs the per-company pipeline for a single company
// outside of a campaign's queue, for the `process-company` CLI
// subcommand. It builds a minimal one-item progress aggregator so
// runPipeline's usual bookkeeping still works, then returns the
// resulting CampaignProgress (TargetCount=1).
func (o *Orchestrator) ProcessCompany(ctx context.Context, company domain.Company) (domain.CampaignProgress, error) {
	o.queues = newPriorityQueues(1)
	initial := domain.CampaignProgress{
		ID:          uuid.New().String(),
		Name:        "process-company:" + company.Name,
		Status:      domain.CampaignRunning,
		StartTS:     time.Now(),
		TargetCount: 1,
	}
	o.progress = newProgressAggregator(initial, o.deps.Store, time.Hour)
	go o.progress.run(ctx)

	o.runPipeline(ctx, 0, workItem{company: company})

	// Drain any retry-lane requeues the pipeline pushed; with no worker
	// pool running, this loop is the only consumer. Pending delayed
	// retries show up in the in-flight counter before they land on the
	// lane.
	for ctx.Err() == nil {
		item, ok := o.queues.pop()
		if !ok {
			if o.inflight.Load() == 0 {
				break
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		o.runPipeline(ctx, 0, item)
	}

	o.progress.close()
	return o.finish(ctx, domain.CampaignCompleted), nil
}

func (o *Orchestrator) finish(ctx context.Context, status domain.CampaignStatus) domain.CampaignProgress {
	o.progress.setStatus(status)
	final := o.progress.snapshot()
	if err := o.deps.Store.UpsertCampaign(ctx, final); err != nil {
		logger.Warn("orchestrator: final progress flush failed", "error", err.Error())
	}
	if o.deps.Notifier != nil {
		o.deps.Notifier.CampaignFinished(ctx, final)
	}
	o.recordAnalytics(ctx, final)
	return final
}

// drainInBatches waits for all queued items to be claimed, pacing the
// rate at which workers are allowed to pick up new batches per
// cfg.Worker.BatchSize / DelayBetweenBatches. Batching is a pacing
// device, not a transactional boundary.
func (o *Orchestrator) drainInBatches(ctx context.Context, total int) {
	if total == 0 {
		return
	}
	batchSize := o.cfg.Worker.BatchSize
	if batchSize <= 0 {
		batchSize = total
	}

	for remaining := total; remaining > 0; {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n := batchSize
		if n > remaining {
			n = remaining
		}
		o.waitForProcessed(ctx, n)
		remaining -= n

		if remaining > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.Worker.DelayBetweenBatches()):
			}
		}
	}
}

func (o *Orchestrator) waitForProcessed(ctx context.Context, n int) {
	target := o.progress.snapshot().ProcessedCount + n
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.progress.snapshot().ProcessedCount >= target {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// worker pulls items off the priority lanes and runs them through the
// pipeline, polling while the lanes are empty, until the context is
// done.
func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	idleTicker := time.NewTicker(150 * time.Millisecond)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.gate.wait(ctx)

		item, ok := o.queues.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-idleTicker.C:
				continue
			}
		}

		o.inflight.Add(1)
		o.runPipeline(ctx, id, item)
		o.inflight.Add(-1)
	}
}

// pause suspends every worker between stages and marks the campaign
// Paused, so the control-poller's effect is visible in CampaignProgress
// (campaign-status, the Notion dashboard), not just the in-process gate.
func (o *Orchestrator) pause() {
	o.gate.pause()
	if o.progress != nil {
		o.progress.setStatus(domain.CampaignPaused)
	}
}

// resume releases every parked worker and marks the campaign Running
// again.
func (o *Orchestrator) resume() {
	o.gate.resume()
	if o.progress != nil {
		o.progress.setStatus(domain.CampaignRunning)
	}
}

// stop cancels the root context and marks the campaign Failed; if the
// queue had already drained, RunCampaign's own completion path overwrites
// this with Completed once the workers exit.
func (o *Orchestrator) stop() {
	if o.progress != nil {
		o.progress.setStatus(domain.CampaignFailed)
	}
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) insertPriority(company domain.Company) {
	o.queues.push(lanePriority, workItem{company: company})
}

// pauseGate lets the control poller suspend every worker without tearing
// down the pool: pause records the suspended state; resume closes the
// channel every blocked worker is waiting on.
type pauseGate struct {
	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func newPauseGate() *pauseGate {
	return &pauseGate{}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resumeCh = make(chan struct{})
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resumeCh)
}

func (g *pauseGate) wait(ctx context.Context) {
	g.mu.Lock()
	paused := g.paused
	ch := g.resumeCh
	g.mu.Unlock()
	if !paused {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}
