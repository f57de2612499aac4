package scrapers

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignite/prospectai/internal/browserpool"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/httpclient"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

// TeamExtractor extracts TeamMember records from a company's page via
// goquery, falling back to the BrowserPool when the page requires JS
// rendering.
type TeamExtractor struct {
	client  *httpclient.Client
	pool    *browserpool.Pool
	cfg     config.ScrapingConfig
	browser config.BrowserConfig
}

// NewTeamExtractor builds a TeamExtractor. pool may be nil when browser
// rendering is disabled in config.
func NewTeamExtractor(client *httpclient.Client, pool *browserpool.Pool, cfg config.ScrapingConfig, browser config.BrowserConfig) *TeamExtractor {
	return &TeamExtractor{client: client, pool: pool, cfg: cfg, browser: browser}
}

// teamSelectors are CSS selectors tried in order against a company page
// looking for a "team"/"about"/"people" section. These are a generic
// best-effort baseline, not tuned to any one site.
var teamSelectors = []string{
	"[class*=team] [class*=member]",
	"[class*=team-member]",
	"[class*=people] [class*=card]",
	"[id*=team] li",
	"[class*=founder]",
}

var roleHints = regexp.MustCompile(`(?i)\b(ceo|cto|coo|cfo|founder|co-founder|head of|director|vp |vice president|engineer|designer|product manager|marketing|sales)\b`)

// Extract returns every TeamMember found on company.ProductURL. An
// empty result is an empty slice, not an error: "no team found" is an
// expected outcome the caller logs as a skip.
func (e *TeamExtractor) Extract(ctx context.Context, company domain.Company) ([]domain.TeamMember, error) {
	if company.ProductURL == "" {
		return nil, nil
	}

	html, err := e.fetch(ctx, company.ProductURL)
	if err != nil {
		logger.Warn("team extraction fetch failed", "company", company.Name, "error", err.Error())
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}

	var members []domain.TeamMember
	for _, sel := range teamSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			member := parseMemberCard(s, company.Name)
			if member.Name != "" {
				members = append(members, member)
			}
		})
		if len(members) > 0 {
			break
		}
	}
	return members, nil
}

func (e *TeamExtractor) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(ctx, "scraper", req)
	if err == nil {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(e.maxBytes())))
		if readErr == nil {
			html := string(body)
			if !requiresJS(html) || e.pool == nil {
				return html, nil
			}
		}
	}

	if e.pool == nil || !e.browser.Enabled {
		if err != nil {
			return "", err
		}
		return "", nil
	}

	session, acquireErr := e.pool.Acquire(ctx, "team_extractor", e.browser.PageLoadTimeout())
	if acquireErr != nil {
		return "", acquireErr
	}
	defer e.pool.Release(session)

	if loadErr := session.Load(ctx, url, "", e.browser.PageLoadTimeout()); loadErr != nil {
		return "", loadErr
	}
	return session.HTML()
}

func (e *TeamExtractor) maxBytes() int {
	if e.cfg.MaxPageBytes > 0 {
		return e.cfg.MaxPageBytes
	}
	return 512 * 1024
}

// requiresJS is a coarse heuristic: a page whose body is nearly empty
// aside from script tags likely needs client-side rendering.
func requiresJS(html string) bool {
	return len(strings.TrimSpace(html)) < 400 && strings.Contains(html, "<script")
}

func parseMemberCard(s *goquery.Selection, companyName string) domain.TeamMember {
	name := strings.TrimSpace(s.Find("h2, h3, h4, [class*=name]").First().Text())
	if name == "" {
		name = strings.TrimSpace(s.Find("strong, b").First().Text())
	}
	role := strings.TrimSpace(s.Find("[class*=role], [class*=title], p").First().Text())
	if role == "" {
		if m := roleHints.FindString(s.Text()); m != "" {
			role = m
		}
	}

	profileURL := ""
	s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "linkedin.com/in/") || strings.Contains(href, "twitter.com/") || strings.Contains(href, "x.com/") {
			profileURL = href
			return false
		}
		return true
	})

	if !plausibleName(name) {
		return domain.TeamMember{}
	}
	return domain.TeamMember{Name: name, Role: role, CompanyName: companyName, ProfileURL: profileURL}
}

// plausibleName filters out member cards whose heading text can't be a
// person's name.
func plausibleName(name string) bool {
	if name == "" || len(name) > 80 {
		return false
	}
	words := strings.Fields(name)
	return len(words) >= 2 && len(words) <= 5
}
