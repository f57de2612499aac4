package emailfinder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/httpclient"
	"github.com/ignite/prospectai/internal/ratelimit"
)

func newTestFinder(t *testing.T, baseURL string, enabled bool) *Finder {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	limiter := ratelimit.New(redisClient, map[string]config.ServiceLimit{
		"email_finder": {PerMinute: 1000, PerHour: 10000, PerDay: 100000},
	})
	client := httpclient.New(limiter, 0)

	backend, err := cache.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	c, err := cache.New(100, backend)
	require.NoError(t, err)

	return New(client, c, config.EmailFinderConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Enabled: enabled,
	})
}

func TestFindDisabledReturnsConfigError(t *testing.T) {
	f := newTestFinder(t, "http://example.invalid", false)
	_, err := f.Find(context.Background(), "acme.com", "Ada Lovelace")
	require.Error(t, err)
	require.Equal(t, errkind.ConfigError, errkind.As(err))
}

func TestFindSuccessCachesResult(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := finderAPIResponse{}
		resp.Data.Email = "ada@acme.com"
		resp.Data.Score = 0.9
		resp.Data.Verification.Status = "valid"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL, true)
	ctx := context.Background()

	result, err := f.Find(ctx, "acme.com", "Ada Lovelace")
	require.NoError(t, err)
	require.Equal(t, "ada@acme.com", result.Email)
	require.True(t, result.Verified)

	// Second call for the same pair must hit the cache, not the server.
	_, err = f.Find(ctx, "acme.com", "Ada Lovelace")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestFindQuotaExceededOnPaymentRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL, true)
	_, err := f.Find(context.Background(), "acme.com", "Ada Lovelace")
	require.Error(t, err)
	require.Equal(t, errkind.QuotaExceeded, errkind.As(err))
}

// A sustained 429 is retried by httpclient itself (rate limiting is
// presumed transient there); once retries are exhausted it still reads
// as quota exhaustion for this provider specifically.
func TestFindQuotaExceededOnSustainedRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL, true)
	_, err := f.Find(context.Background(), "acme.com", "Ada Lovelace")
	require.Error(t, err)
	require.Equal(t, errkind.QuotaExceeded, errkind.As(err))
}

func TestFindNoMatchIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(finderAPIResponse{})
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL, true)
	_, err := f.Find(context.Background(), "acme.com", "Nobody Here")
	require.Error(t, err)
	require.Equal(t, errkind.Permanent, errkind.As(err))
}
