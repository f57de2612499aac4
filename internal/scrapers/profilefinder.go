package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	serpapi "github.com/serpapi/google-search-results-golang"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/httpclient"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

// ProfileFinder resolves a missing profile_url for a TeamMember by trying,
// in order: (a) a direct pattern-based guess validated with HEAD, (b) a
// short search-engine query (SerpAPI if configured, else a DuckDuckGo HTML
// scrape via goquery), (c) heuristic URL synthesis. Negative results are
// cached and short-circuit future attempts within the TTL.
type ProfileFinder struct {
	client *httpclient.Client
	cache  *cache.Cache
	cfg    config.ScrapingConfig
}

// NewProfileFinder builds a ProfileFinder.
func NewProfileFinder(client *httpclient.Client, c *cache.Cache, cfg config.ScrapingConfig) *ProfileFinder {
	return &ProfileFinder{client: client, cache: c, cfg: cfg}
}

const profileFinderCeiling = 8 * time.Second

// Find attempts to resolve member.ProfileURL. Returns ("", nil) on a
// negative result, not an error: the member remains usable without a
// profile URL.
func (f *ProfileFinder) Find(ctx context.Context, member domain.TeamMember) (string, error) {
	key := "profilefinder:" + domain.NormalizeCompanyKey(member.Name) + "|" + domain.NormalizeCompanyKey(member.CompanyName)

	if cached, ok := f.cache.Get(ctx, key); ok {
		return string(cached), nil
	}

	ctx, cancel := context.WithTimeout(ctx, profileFinderCeiling)
	defer cancel()

	found := f.tryPatternGuess(ctx, member)
	if found == "" {
		found = f.trySearchEngine(ctx, member)
	}
	if found == "" {
		found = f.synthesizeURL(ctx, member)
	}

	// Cache negative results too, TTL'd, so repeated attempts within the
	// window short-circuit immediately.
	ttl := 6 * time.Hour
	if found == "" {
		ttl = 1 * time.Hour
	}
	_ = f.cache.Set(ctx, key, []byte(found), ttl)
	return found, nil
}

// candidateLinkedInURL builds a linkedin.com/in/<slug> guess from a
// member's name, or "" when the name has no usable slug.
func candidateLinkedInURL(name string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	if slug == "" {
		return ""
	}
	return fmt.Sprintf("https://www.linkedin.com/in/%s", slug)
}

// tryPatternGuess builds a linkedin.com/in/<slug> URL from the member's
// name and validates it with a HEAD request.
func (f *ProfileFinder) tryPatternGuess(ctx context.Context, member domain.TeamMember) string {
	candidate := candidateLinkedInURL(member.Name)
	if candidate == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
	if err != nil {
		return ""
	}
	resp, err := f.client.Do(ctx, "profile_finder", req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return candidate
	}
	return ""
}

// trySearchEngine runs a short, tightly-timed search query: SerpAPI when
// configured, otherwise a DuckDuckGo HTML results scrape.
func (f *ProfileFinder) trySearchEngine(ctx context.Context, member domain.TeamMember) string {
	query := fmt.Sprintf("%s %s linkedin", member.Name, member.CompanyName)

	if f.cfg.SerpAPIKey != "" {
		if link := f.searchViaSerpAPI(query); link != "" {
			return link
		}
		return ""
	}
	return f.searchViaDuckDuckGo(ctx, query)
}

func (f *ProfileFinder) searchViaSerpAPI(query string) string {
	params := map[string]string{"q": query, "engine": "google", "num": "5"}
	search := serpapi.NewGoogleSearch(params, f.cfg.SerpAPIKey)
	result, err := search.GetJSON()
	if err != nil {
		logger.Warn("serpapi search failed", "error", err.Error())
		return ""
	}
	organic, ok := result["organic_results"].([]interface{})
	if !ok {
		return ""
	}
	for _, item := range organic {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if link, ok := entry["link"].(string); ok && strings.Contains(link, "linkedin.com/in/") {
			return link
		}
	}
	return ""
}

func (f *ProfileFinder) searchViaDuckDuckGo(ctx context.Context, query string) string {
	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(ctx, "profile_finder", req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return ""
	}

	found := ""
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "linkedin.com/in/") {
			found = href
			return false
		}
		return true
	})
	return found
}

// synthesizedSlugVariants produces alternate LinkedIn vanity-URL slugs
// for a name beyond the plain "first-last" guess tryPatternGuess already
// tried: initial+last, and first+last with a numeric suffix, both common
// when the straightforward slug is taken. Returns nil when the name has
// no usable parts.
func synthesizedSlugVariants(name string) []string {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) < 2 {
		return nil
	}
	first := strings.ToLower(parts[0])
	last := strings.ToLower(parts[len(parts)-1])
	if first == "" || last == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("https://www.linkedin.com/in/%c%s", first[0], last),
		fmt.Sprintf("https://www.linkedin.com/in/%s%s1", first, last),
	}
}

// synthesizeURL is the last-resort heuristic: try alternate vanity-URL
// slug conventions (initial+last, first+last+1), each validated with a
// HEAD request, before giving up and leaving the member without a
// profile_url.
func (f *ProfileFinder) synthesizeURL(ctx context.Context, member domain.TeamMember) string {
	for _, candidate := range synthesizedSlugVariants(member.Name) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
		if err != nil {
			continue
		}
		resp, err := f.client.Do(ctx, "profile_finder", req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return candidate
		}
	}
	return ""
}
