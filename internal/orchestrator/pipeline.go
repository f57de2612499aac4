package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ignite/prospectai/internal/aiservice"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/notifier"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

// runPipeline drives one company through the eight pipeline stages:
// dedup check, team extraction, profile resolution, email finding, AI
// structuring, persistence, and the two optional stages (email
// generation, email send) gated by cfg.Features and
// cfg.Email.AutoSendEmails. A failure at any stage logs the outcome and
// either retries (Transient/RateLimited, within cfg.Worker.RetryBudget)
// or moves on to the next company. Between stages the worker re-checks
// the pause gate and the cancellation token.
func (o *Orchestrator) runPipeline(ctx context.Context, workerID int, item workItem) {
	company := item.company
	start := time.Now()

	// Stage 1: dedup. The producer already filters the feed against the
	// processed set, so this entry check only fires for companies that
	// arrived another way (priority inserts, retries racing a completed
	// duplicate).
	if known, err := o.deps.Store.GetProcessedCompanies(ctx); err == nil && known[company.Key()] {
		o.logSkip("dedup", company.Name, "company already processed")
		o.progress.post(progressDelta{processed: 1, currentStep: "dedup", currentCompany: company.Name})
		return
	}

	// Stage 2: team extraction.
	members, err := o.runExtraction(ctx, company)
	if err != nil {
		o.logStep(company.Name, "team_extraction", err, start, workerID)
		o.retryOrGiveUp(item, err)
		return
	}
	if len(members) == 0 {
		o.logSkip("team_extraction", company.Name, "no team members found")
		o.progress.post(progressDelta{processed: 1, currentStep: "team_extraction", currentCompany: company.Name})
		return
	}
	o.logStep(company.Name, "team_extraction", nil, start, workerID)

	o.gate.wait(ctx)
	if ctx.Err() != nil {
		return
	}

	// Stage 5 (company half): one product analysis per company, shared by
	// every member's prospect record.
	var product *aiservice.ProductAnalysis
	if o.cfg.Features.ProductAnalysis && company.Description != "" {
		if envelope := o.deps.AIService.AnalyzeProduct(ctx, company.Description); envelope.Success {
			product = envelope.Data
		}
	}

	// Stages 3-5 (member half): profile resolution, email finding, and
	// profile parsing run concurrently across members, bounded by the
	// per-company sub-limit.
	subLimit := o.cfg.Worker.ProfileSubLimit
	if subLimit <= 0 {
		subLimit = 4
	}
	sem := make(chan struct{}, subLimit)
	results := make([]*enrichedMember, len(members))
	var wg sync.WaitGroup
	for i, member := range members {
		wg.Add(1)
		go func(i int, member domain.TeamMember) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			stageCtx, cancel := context.WithTimeout(ctx, o.cfg.Worker.StageTimeout())
			defer cancel()
			results[i] = o.enrichMember(stageCtx, company, member, product)
		}(i, member)
	}
	wg.Wait()

	o.gate.wait(ctx)
	if ctx.Err() != nil {
		return
	}

	// Stages 6-8: persist each resolved member, then the optional email
	// stages, sequentially so per-prospect Store writes stay ordered.
	delta := progressDelta{currentStep: "store", currentCompany: company.Name}
	for _, enriched := range results {
		if enriched == nil {
			continue
		}
		storeCtx, cancel := context.WithTimeout(ctx, o.cfg.Worker.StageTimeout())
		o.persistAndNotify(storeCtx, enriched.prospect, enriched.profile, enriched.product, &delta)
		cancel()
	}

	// A company counts as successfully processed only if at least one
	// prospect was stored.
	delta.processed = 1
	if delta.prospectsFound > 0 {
		delta.succeeded = 1
	} else {
		delta.errors++
		o.logStep(company.Name, "store", fmt.Errorf("no prospects stored"), start, workerID)
	}
	o.progress.post(delta)
	o.logStep(company.Name, "pipeline_complete", nil, start, workerID)
}

func (o *Orchestrator) runExtraction(ctx context.Context, company domain.Company) ([]domain.TeamMember, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.Worker.StageTimeout())
	defer cancel()
	return o.deps.TeamExtractor.Extract(stageCtx, company)
}

// enrichedMember carries one member's stage 3-5 results to the
// sequential persistence phase.
type enrichedMember struct {
	prospect domain.Prospect
	profile  *aiservice.ProfileData
	product  *aiservice.ProductAnalysis
}

// enrichMember resolves a profile URL, finds an email, and runs the AI
// profile parsing for one team member, returning a record ready to
// persist, or nil if the member couldn't be resolved into a usable
// prospect (no error; this is an expected outcome, not a failure).
func (o *Orchestrator) enrichMember(ctx context.Context, company domain.Company, member domain.TeamMember, product *aiservice.ProductAnalysis) *enrichedMember {
	if member.ProfileURL == "" {
		if resolved, err := o.deps.ProfileFinder.Find(ctx, member); err == nil {
			member.ProfileURL = resolved
		}
	}

	prospect := domain.Prospect{
		Name:                  member.Name,
		Role:                  member.Role,
		Company:               company.Name,
		CompanyKey:            company.Key(),
		ProfileURL:            member.ProfileURL,
		Source:                "product_feed",
		EmailGenerationStatus: domain.EmailNotGenerated,
		EmailDeliveryStatus:   domain.DeliveryNotSent,
	}

	companyDomain := companyDomainOf(company)
	if companyDomain != "" && o.deps.EmailFinder != nil {
		result, err := o.deps.EmailFinder.Find(ctx, companyDomain, member.Name)
		if err != nil {
			logger.Debug("orchestrator: email lookup failed", "company", company.Name, "member", member.Name, "error", err.Error())
		} else {
			prospect.Email = result.Email
			prospect.EmailConfidence = result.Confidence
		}
	}

	var profile *aiservice.ProfileData
	if o.cfg.Features.AIParsing && member.ProfileURL != "" {
		if html, err := o.fetchText(ctx, member.ProfileURL); err == nil {
			envelope := o.deps.AIService.ParseProfile(ctx, html, &aiservice.ProfileFallback{Name: member.Name, CurrentRole: member.Role})
			if envelope.Success {
				profile = envelope.Data
				if data, marshalErr := json.Marshal(envelope.Data); marshalErr == nil {
					prospect.AIProfileJSON = string(data)
				}
			}
		}
	}

	if product != nil {
		if data, marshalErr := json.Marshal(product); marshalErr == nil {
			prospect.AIProductJSON = string(data)
		}
	}

	if !prospect.Valid() {
		return nil
	}
	return &enrichedMember{prospect: prospect, profile: profile, product: product}
}

// persistAndNotify upserts the prospect, then optionally generates and
// sends its outreach email, per cfg.Features.EnhancedPersonalization and
// cfg.Email.AutoSendEmails. prospects_found is counted here, after the
// Store write succeeds, so the reported count always matches what is
// actually persisted.
func (o *Orchestrator) persistAndNotify(ctx context.Context, prospect domain.Prospect, profile *aiservice.ProfileData, product *aiservice.ProductAnalysis, delta *progressDelta) {
	saved, err := o.deps.Store.UpsertProspect(ctx, prospect)
	if err != nil {
		logger.Warn("orchestrator: upsert prospect failed", "prospect", prospect.Name, "error", err.Error())
		delta.errors++
		return
	}
	prospect = saved
	delta.prospectsFound++

	if !o.cfg.Features.EnhancedPersonalization {
		return
	}

	envelope := o.deps.AIService.GenerateEmail(ctx, prospect, aiservice.TemplateColdOutreach, profile, product, o.deps.Sender, nil)
	if !envelope.Success || envelope.Data == nil {
		return
	}
	prospect.EmailSubject = envelope.Data.Subject
	prospect.EmailBody = envelope.Data.Body
	prospect.EmailGenerationStatus = domain.EmailGenerated
	prospect.GeneratedAt = time.Now()
	delta.emailsGenerated++

	if _, err := o.deps.Store.UpsertProspect(ctx, prospect); err != nil {
		logger.Warn("orchestrator: persist generated email failed", "prospect", prospect.Name, "error", err.Error())
	}

	if o.cfg.Email.AutoSendEmails && !o.cfg.Email.ReviewRequired && o.deps.EmailSender != nil {
		outcome := o.deps.EmailSender.Send(ctx, prospect)
		if outcome.Success {
			prospect.EmailGenerationStatus = domain.EmailSent
			prospect.EmailDeliveryStatus = domain.DeliverySent
			prospect.SentAt = time.Now()
			delta.emailsSent++
		} else if outcome.Err != nil {
			prospect.EmailDeliveryStatus = domain.DeliveryFailed
			logger.Warn("orchestrator: send failed", "prospect", prospect.Name, "error", outcome.Err.Error())
		}
		if _, err := o.deps.Store.UpsertProspect(ctx, prospect); err != nil {
			logger.Warn("orchestrator: persist send outcome failed", "prospect", prospect.Name, "error", err.Error())
		}
	}
}

// retryOrGiveUp requeues item on the retry lane when its error kind is
// retryable and it hasn't exhausted cfg.Worker.RetryBudget, otherwise
// counts it as a terminal failure. The requeue is delayed by an
// exponential backoff with jitter; the in-flight counter covers the
// delay window so the drain logic doesn't mistake a pending retry for
// an idle pool.
func (o *Orchestrator) retryOrGiveUp(item workItem, err error) {
	kind := errkind.As(err)
	if kind.Retryable() && item.attempt < o.cfg.Worker.RetryBudget {
		item.attempt++
		o.inflight.Add(1)
		time.AfterFunc(retryDelay(item.attempt), func() {
			o.queues.push(laneRetry, item)
			o.inflight.Add(-1)
		})
		return
	}
	o.progress.post(progressDelta{processed: 1, errors: 1, currentCompany: item.company.Name})
	if o.deps.Notifier != nil {
		o.deps.Notifier.Alert(context.Background(), notifier.ErrorAlert,
			fmt.Sprintf("company %q exhausted retry budget: %v", item.company.Name, err),
			map[string]string{"company": item.company.Name, "error_kind": string(kind)})
	}
}

// retryDelay is 1s * 2^(attempt-1) capped at 30s, jittered to half-full
// range so requeued retries don't stampede the same external service.
func retryDelay(attempt int) time.Duration {
	base := time.Second << uint(attempt-1)
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	return base/2 + time.Duration(rand.Int63n(int64(base/2)+1))
}

func (o *Orchestrator) logStep(company, step string, err error, start time.Time, workerID int) {
	entry := domain.ProcessingLogEntry{
		TS:              time.Now(),
		Campaign:        o.campaignName(),
		Company:         company,
		Step:            step,
		DurationSeconds: time.Since(start).Seconds(),
		WorkerID:        workerID,
	}
	if err != nil {
		entry.Outcome = domain.OutcomeFailed
		entry.Error = err.Error()
	} else {
		entry.Outcome = domain.OutcomeCompleted
	}
	if logErr := o.deps.Store.AppendLog(context.Background(), entry); logErr != nil {
		logger.Debug("orchestrator: append log failed", "error", logErr.Error())
	}
}

// logSkip records a Skipped outcome for a company that never reaches a
// pipeline stage's normal completion path: already-processed companies
// dropped at the dedup check, and companies whose team extraction
// yielded zero members.
func (o *Orchestrator) logSkip(step, company, details string) {
	entry := domain.ProcessingLogEntry{
		TS:       time.Now(),
		Campaign: o.campaignName(),
		Company:  company,
		Step:     step,
		Outcome:  domain.OutcomeSkipped,
		Details:  details,
	}
	if logErr := o.deps.Store.AppendLog(context.Background(), entry); logErr != nil {
		logger.Debug("orchestrator: append log failed", "error", logErr.Error())
	}
}

// campaignName reads the current campaign's name off the progress
// aggregator, or "" before one is set up.
func (o *Orchestrator) campaignName() string {
	if o.progress == nil {
		return ""
	}
	return o.progress.snapshot().Name
}

// fetchText retrieves a page's HTML, capped the same way the scrapers
// package bounds page size.
func (o *Orchestrator) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := o.deps.HTTPClient.Do(ctx, "scraper", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, 512*1024)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func companyDomainOf(c domain.Company) string {
	if c.Domain != "" {
		return c.Domain
	}
	if c.ProductURL == "" {
		return ""
	}
	u, err := url.Parse(c.ProductURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
