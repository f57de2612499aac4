package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/ratelimit"
)

func newTestLimiter(t *testing.T, limits map[string]config.ServiceLimit) *ratelimit.RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })
	return ratelimit.New(redisClient, limits)
}

func generousLimiter(t *testing.T) *ratelimit.RateLimiter {
	return newTestLimiter(t, map[string]config.ServiceLimit{
		"svc": {PerMinute: 1000, PerHour: 10000, PerDay: 100000},
	})
}

func TestClient_SucceedsOnFirstTry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(generousLimiter(t), 5*time.Second)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), "svc", req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RetriesTransient5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(generousLimiter(t), 5*time.Second)
	c.baseDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), "svc", req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_PermanentStatusNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(generousLimiter(t), 5*time.Second)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), "svc", req)
	require.Error(t, err)
	assert.Equal(t, errkind.Permanent, errkind.As(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a 404 must not be retried")
}

func TestClient_ExhaustsRetryBudgetOnPersistent5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(generousLimiter(t), 5*time.Second)
	c.baseDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), "svc", req)
	require.Error(t, err)
	assert.Equal(t, errkind.Transient, errkind.As(err))
	assert.Equal(t, int32(c.maxRetries+1), atomic.LoadInt32(&calls))
}

func TestClient_HonorsRetryAfterHeader(t *testing.T) {
	var calls int32
	var firstCallTime, secondCallTime time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			firstCallTime = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		secondCallTime = time.Now()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(generousLimiter(t), 5*time.Second)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), "svc", req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, secondCallTime.Sub(firstCallTime), 900*time.Millisecond)
}

func TestClient_CancellationDuringRetryWaitReturnsCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(generousLimiter(t), 5*time.Second)
	c.baseDelay = 2 * time.Second
	c.maxDelay = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(ctx, "svc", req)
	require.Error(t, err)
	assert.Equal(t, errkind.Cancelled, errkind.As(err))
}
