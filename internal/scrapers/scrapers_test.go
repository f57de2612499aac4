package scrapers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/httpclient"
	"github.com/ignite/prospectai/internal/ratelimit"
)

func testClient(t *testing.T) *httpclient.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })
	limiter := ratelimit.New(redisClient, map[string]config.ServiceLimit{
		"scraper":        {PerMinute: 1000, PerHour: 10000, PerDay: 100000},
		"profile_finder": {PerMinute: 1000, PerHour: 10000, PerDay: 100000},
	})
	return httpclient.New(limiter, 5*time.Second)
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	backend, err := cache.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	c, err := cache.New(100, backend)
	require.NoError(t, err)
	return c
}

const teamPageHTML = `<html><body>
<div class="team-members">
  <div class="team-member">
    <h3 class="name">Ada Lovelace</h3>
    <p class="role">Chief Executive Officer</p>
    <a href="https://www.linkedin.com/in/ada-lovelace">LinkedIn</a>
  </div>
  <div class="team-member">
    <h3 class="name">X</h3>
    <p class="role">CTO</p>
  </div>
</div>
</body></html>`

func TestTeamExtractor_ExtractParsesMemberCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(teamPageHTML))
	}))
	defer srv.Close()

	extractor := NewTeamExtractor(testClient(t), nil, config.ScrapingConfig{UserAgent: "test-agent"}, config.BrowserConfig{})
	company := domain.Company{Name: "Acme", ProductURL: srv.URL}

	members, err := extractor.Extract(context.Background(), company)
	require.NoError(t, err)
	require.Len(t, members, 1, "the single-letter name card must be dropped as implausible")
	assert.Equal(t, "Ada Lovelace", members[0].Name)
	assert.Equal(t, "Acme", members[0].CompanyName)
	assert.Equal(t, "https://www.linkedin.com/in/ada-lovelace", members[0].ProfileURL)
}

func TestTeamExtractor_NoProductURLReturnsEmpty(t *testing.T) {
	extractor := NewTeamExtractor(testClient(t), nil, config.ScrapingConfig{}, config.BrowserConfig{})
	members, err := extractor.Extract(context.Background(), domain.Company{Name: "NoURL"})
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestTeamExtractor_NoTeamSectionReturnsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Nothing here.</p></body></html>"))
	}))
	defer srv.Close()

	extractor := NewTeamExtractor(testClient(t), nil, config.ScrapingConfig{}, config.BrowserConfig{})
	members, err := extractor.Extract(context.Background(), domain.Company{Name: "Empty", ProductURL: srv.URL})
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestPlausibleName(t *testing.T) {
	cases := map[string]bool{
		"Ada Lovelace":          true,
		"Jean-Luc Marie Picard": true,
		"X":                     false,
		"":                      false,
		"This Name Has Way Too Many Words To Be Plausible": false,
	}
	for name, want := range cases {
		assert.Equal(t, want, plausibleName(name), "plausibleName(%q)", name)
	}
}

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Launches</title>
<item><title>Acme</title><link>https://acme.example.com</link><description>Acme does things</description></item>
<item><title>Beta</title><link>https://beta.example.com</link><description>Beta does other things</description></item>
<item><title></title><link>https://nameless.example.com</link></item>
</channel></rss>`

func TestProductFeed_ListRespectsLimitAndSkipsNameless(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeed))
	}))
	defer srv.Close()

	feed := NewProductFeed(testClient(t), config.ScrapingConfig{ProductFeedURL: srv.URL, UserAgent: "test"})
	companies, err := feed.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Acme", companies[0].Name)
}

func TestProductFeed_ListZeroLimitReturnsNothing(t *testing.T) {
	feed := NewProductFeed(testClient(t), config.ScrapingConfig{ProductFeedURL: "https://unused.example.com"})
	companies, err := feed.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, companies)
}

func TestCandidateLinkedInURL(t *testing.T) {
	assert.Equal(t, "https://www.linkedin.com/in/grace-hopper", candidateLinkedInURL("Grace Hopper"))
	assert.Equal(t, "", candidateLinkedInURL("   "))
}

func TestSynthesizedSlugVariants(t *testing.T) {
	variants := synthesizedSlugVariants("Grace Hopper")
	require.Len(t, variants, 2)
	assert.Equal(t, "https://www.linkedin.com/in/ghopper", variants[0])
	assert.Equal(t, "https://www.linkedin.com/in/gracehopper1", variants[1])
	assert.Empty(t, synthesizedSlugVariants("Cher"), "a single-word name has no first/last split")
}

func TestProfileFinder_NegativeResultIsCached(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testCache(t)
	finder := NewProfileFinder(testClient(t), c, config.ScrapingConfig{UserAgent: "test"})
	member := domain.TeamMember{Name: "Nobody Findable", CompanyName: "Ghost Co"}

	key := "profilefinder:" + domain.NormalizeCompanyKey(member.Name) + "|" + domain.NormalizeCompanyKey(member.CompanyName)
	require.NoError(t, c.Set(context.Background(), key, []byte(""), time.Hour))

	found, err := finder.Find(context.Background(), member)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, 0, calls, "a cached negative result must short-circuit without issuing requests")
}
