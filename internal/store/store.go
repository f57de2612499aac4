// Package store implements the document-database persistence layer on
// top of Notion, exposed as a small set of named operations (upsert,
// find, append-log) rather than a query builder.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jomei/notionapi"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/errkind"
)

// Store is the document-database adapter: each persisted entity maps to
// a Notion database, pages are rows, and dashboard views are plain
// Notion pages that link back into the databases.
type Store struct {
	client *notionapi.Client
	cfg    config.StoreConfig
	cache  *cache.Cache

	mu            sync.Mutex
	controlCursor time.Time
	seenCommands  map[string]time.Time // debounce: command hash -> last-seen
}

// New builds a Store. token is read from cfg.NotionToken.
func New(cfg config.StoreConfig, c *cache.Cache) *Store {
	client := notionapi.NewClient(notionapi.Token(cfg.NotionToken))
	return &Store{
		client:       client,
		cfg:          cfg,
		cache:        c,
		seenCommands: make(map[string]time.Time),
	}
}

func richText(s string) []notionapi.RichText {
	if s == "" {
		return nil
	}
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

// plainText reads the first fragment's text. API responses populate
// PlainText; values built locally by richText only carry Text.Content.
func plainText(rt []notionapi.RichText) string {
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return rt[0].PlainText
	}
	if rt[0].Text != nil {
		return rt[0].Text.Content
	}
	return ""
}

// UpsertProspect creates the prospect's page if it doesn't already exist
// (matched on DedupKey stored in a dedicated rich_text property),
// otherwise updates it in place.
func (s *Store) UpsertProspect(ctx context.Context, p domain.Prospect) (domain.Prospect, error) {
	dbID := notionapi.DatabaseID(s.cfg.ProspectsDBID)
	dedupKey := p.DedupKey()

	existing, err := s.findPageByProperty(ctx, dbID, "dedup_key", dedupKey)
	if err != nil {
		return p, err
	}

	props := prospectToProperties(p)

	if existing != nil {
		update := notionapi.PageUpdateRequest{Properties: props}
		page, updErr := s.client.Page.Update(ctx, notionapi.PageID(existing.ID), &update)
		if updErr != nil {
			return p, classifyNotionErr(updErr)
		}
		p.ID = string(page.ID)
		return p, nil
	}

	create := &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{DatabaseID: dbID},
		Properties: props,
	}
	page, createErr := s.client.Page.Create(ctx, create)
	if createErr != nil {
		return p, classifyNotionErr(createErr)
	}
	p.ID = string(page.ID)
	return p, nil
}

// GetProspect fetches a single prospect page by its Notion page ID, for
// the `generate-emails --prospect-ids` CLI path.
func (s *Store) GetProspect(ctx context.Context, id string) (domain.Prospect, error) {
	page, err := s.client.Page.Get(ctx, notionapi.PageID(id))
	if err != nil {
		return domain.Prospect{}, classifyNotionErr(err)
	}
	return propertiesToProspect(string(page.ID), page.Properties), nil
}

// UpdateProspectFields patches a subset of fields on an existing prospect
// page without needing the full Prospect value.
func (s *Store) UpdateProspectFields(ctx context.Context, prospectID string, fields map[string]interface{}) error {
	props := notionapi.Properties{}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			props[k] = notionapi.RichTextProperty{RichText: richText(val)}
		case float64:
			props[k] = notionapi.NumberProperty{Number: val}
		case bool:
			props[k] = notionapi.CheckboxProperty{Checkbox: val}
		default:
			return errkind.New(errkind.Permanent, fmt.Errorf("store: unsupported field type for %q", k))
		}
	}
	update := notionapi.PageUpdateRequest{Properties: props}
	_, err := s.client.Page.Update(ctx, notionapi.PageID(prospectID), &update)
	if err != nil {
		return classifyNotionErr(err)
	}
	return nil
}

// GetProcessedCompanies returns the set of normalized company keys
// already present in the Prospects database, cached for
// cfg.ProcessedCacheTTL since this is queried once per discovered
// company during a campaign run.
func (s *Store) GetProcessedCompanies(ctx context.Context) (map[string]bool, error) {
	key := "store:processed_companies"
	if cached, ok := s.cache.Get(ctx, key); ok {
		return decodeStringSet(cached), nil
	}

	dbID := notionapi.DatabaseID(s.cfg.ProspectsDBID)
	seen := make(map[string]bool)
	cursor := notionapi.Cursor("")

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := s.client.Database.Query(ctx, dbID, req)
		if err != nil {
			return nil, classifyNotionErr(err)
		}
		for _, page := range resp.Results {
			if prop, ok := page.Properties["company_key"].(notionapi.RichTextProperty); ok {
				seen[plainText(prop.RichText)] = true
			}
		}
		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	encoded := encodeStringSet(seen)
	_ = s.cache.Set(ctx, key, encoded, s.cfg.ProcessedCacheTTL())
	return seen, nil
}

// FindProspects runs a filtered query over the Prospects database, e.g.
// for "generate-emails-recent" and "send-emails-recent" CLI operations.
func (s *Store) FindProspects(ctx context.Context, filter notionapi.Filter, limit int) ([]domain.Prospect, error) {
	dbID := notionapi.DatabaseID(s.cfg.ProspectsDBID)
	req := &notionapi.DatabaseQueryRequest{Filter: filter, PageSize: 100}

	var out []domain.Prospect
	cursor := notionapi.Cursor("")
	for {
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := s.client.Database.Query(ctx, dbID, req)
		if err != nil {
			return nil, classifyNotionErr(err)
		}
		for _, page := range resp.Results {
			out = append(out, propertiesToProspect(string(page.ID), page.Properties))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return out, nil
}

// AppendLog writes one append-only ProcessingLogEntry page.
func (s *Store) AppendLog(ctx context.Context, entry domain.ProcessingLogEntry) error {
	dbID := notionapi.DatabaseID(s.cfg.LogsDBID)
	props := notionapi.Properties{
		"campaign":   notionapi.TitleProperty{Title: richText(entry.Campaign)},
		"company":    notionapi.RichTextProperty{RichText: richText(entry.Company)},
		"step":       notionapi.RichTextProperty{RichText: richText(entry.Step)},
		"outcome":    notionapi.SelectProperty{Select: notionapi.Option{Name: string(entry.Outcome)}},
		"duration_s": notionapi.NumberProperty{Number: entry.DurationSeconds},
		"details":    notionapi.RichTextProperty{RichText: richText(entry.Details)},
		"error":      notionapi.RichTextProperty{RichText: richText(entry.Error)},
		"worker_id":  notionapi.NumberProperty{Number: float64(entry.WorkerID)},
		"ts":         notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&entry.TS)}},
	}
	_, err := s.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{DatabaseID: dbID},
		Properties: props,
	})
	if err != nil {
		return classifyNotionErr(err)
	}
	return nil
}

// UpsertSystemStatus overwrites a component's heartbeat row, matched by
// component name.
func (s *Store) UpsertSystemStatus(ctx context.Context, status domain.SystemStatus) error {
	dbID := notionapi.DatabaseID(s.cfg.StatusDBID)
	existing, err := s.findPageByTitle(ctx, dbID, "name", status.Name)
	if err != nil {
		return err
	}

	props := notionapi.Properties{
		"name":             notionapi.TitleProperty{Title: richText(status.Name)},
		"status":           notionapi.SelectProperty{Select: notionapi.Option{Name: string(status.Status)}},
		"quota_used":       notionapi.NumberProperty{Number: status.QuotaUsed},
		"error_count_24h":  notionapi.NumberProperty{Number: float64(status.ErrorCount24h)},
		"success_rate_24h": notionapi.NumberProperty{Number: status.SuccessRate24h},
		"details":          notionapi.RichTextProperty{RichText: richText(status.Details)},
		"last_update":      notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&status.LastUpdate)}},
	}

	if existing != nil {
		_, err := s.client.Page.Update(ctx, notionapi.PageID(existing.ID), &notionapi.PageUpdateRequest{Properties: props})
		return classifyNotionErr(err)
	}
	_, err = s.client.Page.Create(ctx, &notionapi.PageCreateRequest{Parent: notionapi.Parent{DatabaseID: dbID}, Properties: props})
	return classifyNotionErr(err)
}

// UpsertCampaign creates or overwrites the single persisted
// CampaignProgress record for a campaign, matched by ID.
func (s *Store) UpsertCampaign(ctx context.Context, c domain.CampaignProgress) error {
	dbID := notionapi.DatabaseID(s.cfg.CampaignsDBID)
	existing, err := s.findPageByTitle(ctx, dbID, "campaign_id", c.ID)
	if err != nil {
		return err
	}
	props := campaignToProperties(c)

	if existing != nil {
		_, updErr := s.client.Page.Update(ctx, notionapi.PageID(existing.ID), &notionapi.PageUpdateRequest{Properties: props})
		return classifyNotionErr(updErr)
	}
	_, createErr := s.client.Page.Create(ctx, &notionapi.PageCreateRequest{Parent: notionapi.Parent{DatabaseID: dbID}, Properties: props})
	return classifyNotionErr(createErr)
}

// GetCampaign fetches the current CampaignProgress by ID.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (domain.CampaignProgress, bool, error) {
	dbID := notionapi.DatabaseID(s.cfg.CampaignsDBID)
	page, err := s.findPageByTitle(ctx, dbID, "campaign_id", campaignID)
	if err != nil {
		return domain.CampaignProgress{}, false, err
	}
	if page == nil {
		return domain.CampaignProgress{}, false, nil
	}
	return propertiesToCampaign(page.Properties), true, nil
}

// ReadControlCommands polls the Control database for commands posted
// since the last read, advancing a monotonic time cursor. It does not
// dedupe the commands it returns; the caller drops repeats within
// cfg.Control's debounce window via DebounceSeen.
func (s *Store) ReadControlCommands(ctx context.Context) ([]domain.ControlCommand, error) {
	dbID := notionapi.DatabaseID(s.cfg.ControlDBID)

	s.mu.Lock()
	cursor := s.controlCursor
	s.mu.Unlock()

	filter := notionapi.PropertyFilter{
		Property: "seen_ts",
		Date:     &notionapi.DateFilterCondition{After: (*notionapi.Date)(&cursor)},
	}
	req := &notionapi.DatabaseQueryRequest{Filter: filter, PageSize: 50}
	resp, err := s.client.Database.Query(ctx, dbID, req)
	if err != nil {
		return nil, classifyNotionErr(err)
	}

	var out []domain.ControlCommand
	latest := cursor
	for _, page := range resp.Results {
		cmd := propertiesToControlCommand(page.Properties)
		if cmd.SeenTS.After(latest) {
			latest = cmd.SeenTS
		}
		out = append(out, cmd)
	}

	s.mu.Lock()
	if latest.After(s.controlCursor) {
		s.controlCursor = latest
	}
	s.mu.Unlock()
	return out, nil
}

// PostControlCommand writes one operator command to the Control database,
// for the running campaign's control poller to pick up on its next poll.
func (s *Store) PostControlCommand(ctx context.Context, cmd domain.ControlCommand) error {
	dbID := notionapi.DatabaseID(s.cfg.ControlDBID)
	if cmd.SeenTS.IsZero() {
		cmd.SeenTS = time.Now()
	}
	paramsJSON, err := json.Marshal(cmd.Parameters)
	if err != nil {
		return fmt.Errorf("store: marshal control parameters: %w", err)
	}

	props := notionapi.Properties{
		"action":          notionapi.SelectProperty{Select: notionapi.Option{Name: string(cmd.Action)}},
		"requested_by":    notionapi.RichTextProperty{RichText: richText(cmd.RequestedBy)},
		"parameters_json": notionapi.RichTextProperty{RichText: richText(string(paramsJSON))},
		"seen_ts":         notionapi.DateProperty{Date: &notionapi.DateObject{Start: (*notionapi.Date)(&cmd.SeenTS)}},
	}
	_, err = s.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{DatabaseID: dbID},
		Properties: props,
	})
	if err != nil {
		return classifyNotionErr(err)
	}
	return nil
}

// DebounceSeen reports whether a command with this hash has been acted
// on within window, recording it as seen if not.
func (s *Store) DebounceSeen(hash string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.seenCommands[hash]; ok && now.Sub(last) < window {
		return true
	}
	s.seenCommands[hash] = now

	// Opportunistic cleanup so this map doesn't grow unbounded over a
	// long-running campaign.
	if len(s.seenCommands) > 1000 {
		for k, t := range s.seenCommands {
			if now.Sub(t) > window {
				delete(s.seenCommands, k)
			}
		}
	}
	return false
}

// RecordDailyAnalytics writes a best-effort daily snapshot row; failures
// are non-fatal to the campaign.
func (s *Store) RecordDailyAnalytics(ctx context.Context, a domain.DailyAnalytics) error {
	dbID := notionapi.DatabaseID(s.cfg.AnalyticsDBID)
	if dbID == "" {
		return nil
	}
	props := notionapi.Properties{
		"date":                notionapi.TitleProperty{Title: richText(a.Date)},
		"companies_processed": notionapi.NumberProperty{Number: float64(a.CompaniesProcessed)},
		"prospects_found":     notionapi.NumberProperty{Number: float64(a.ProspectsFound)},
		"emails_generated":    notionapi.NumberProperty{Number: float64(a.EmailsGenerated)},
		"emails_sent":         notionapi.NumberProperty{Number: float64(a.EmailsSent)},
		"estimated_api_calls": notionapi.NumberProperty{Number: float64(a.EstimatedAPICalls)},
	}
	_, err := s.client.Page.Create(ctx, &notionapi.PageCreateRequest{Parent: notionapi.Parent{DatabaseID: dbID}, Properties: props})
	return classifyNotionErr(err)
}

func (s *Store) findPageByProperty(ctx context.Context, dbID notionapi.DatabaseID, property, value string) (*notionapi.Page, error) {
	filter := notionapi.PropertyFilter{
		Property: property,
		RichText: &notionapi.TextFilterCondition{Equals: value},
	}
	return s.findPage(ctx, dbID, value, filter)
}

// findPageByTitle is findPageByProperty for title-typed properties, which
// the Notion API filters with a distinct condition key.
func (s *Store) findPageByTitle(ctx context.Context, dbID notionapi.DatabaseID, property, value string) (*notionapi.Page, error) {
	filter := notionapi.PropertyFilter{
		Property: property,
		Title:    &notionapi.TextFilterCondition{Equals: value},
	}
	return s.findPage(ctx, dbID, value, filter)
}

func (s *Store) findPage(ctx context.Context, dbID notionapi.DatabaseID, value string, filter notionapi.PropertyFilter) (*notionapi.Page, error) {
	if value == "" {
		return nil, nil
	}
	resp, err := s.client.Database.Query(ctx, dbID, &notionapi.DatabaseQueryRequest{Filter: filter, PageSize: 1})
	if err != nil {
		return nil, classifyNotionErr(err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

func classifyNotionErr(err error) error {
	if err == nil {
		return nil
	}
	if notionErr, ok := err.(*notionapi.Error); ok {
		switch notionErr.Status {
		case 401, 403:
			return errkind.New(errkind.AuthError, err)
		case 429:
			return errkind.New(errkind.RateLimited, err)
		case 500, 502, 503, 504:
			return errkind.New(errkind.Transient, err)
		default:
			return errkind.New(errkind.Permanent, err)
		}
	}
	return errkind.New(errkind.Transient, err)
}
