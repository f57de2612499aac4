// Package httpclient implements the shared pooled HTTP client: every
// outward request acquires from the named service's RateLimiter first,
// then retries transient failures with exponential backoff and jitter,
// honoring Retry-After on 429s and classifying every terminal failure
// into the errkind taxonomy.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/pkg/logger"
	"github.com/ignite/prospectai/internal/ratelimit"
)

// Client is a pooled HTTP client shared by every subsystem that reaches
// out over plain HTTP (Scrapers, EmailFinder, the Orchestrator's
// profile-page fetch). Connection
// pooling is per-host via the standard transport; rate limiting is per
// logical service name via RateLimiter.
type Client struct {
	http       *http.Client
	limiter    *ratelimit.RateLimiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	hardCap    time.Duration
}

// New builds a Client pooling connections through a shared transport and
// gating every request through limiter.
func New(limiter *ratelimit.RateLimiter, hardCapTimeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if hardCapTimeout <= 0 {
		hardCapTimeout = 60 * time.Second
	}
	return &Client{
		http:       &http.Client{Transport: transport, Timeout: hardCapTimeout},
		limiter:    limiter,
		maxRetries: 3,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
		hardCap:    hardCapTimeout,
	}
}

// Do acquires a token from the service's rate limiter, then issues req
// with retry/backoff. service is the logical RateLimiter bucket name
// ("scraper", "email_finder", "email_sender", ...). A per-request
// deadline should already be set on req's context by the caller; Do adds
// no additional timeout beyond the client's hard cap.
func (c *Client) Do(ctx context.Context, service string, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Acquire(ctx, service, 1); err != nil {
		c.limiter.RecordOutcome(service, false)
		return nil, err
	}

	resp, err := c.doWithRetry(ctx, req)
	c.limiter.RecordOutcome(service, err == nil && resp != nil && resp.StatusCode < 500)
	return resp, err
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	var retryAfter time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, ctx.Err())
		}

		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			if retryAfter > 0 {
				delay = retryAfter
				retryAfter = 0
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, errkind.New(errkind.Permanent, fmt.Errorf("httpclient: reset body: %w", err))
				}
				req.Body = body
			}
			logger.Debug("httpclient retry", "attempt", attempt, "url", req.URL.String(), "delay", delay.String())
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, errkind.New(errkind.Cancelled, ctx.Err())
			}
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		kind := errkind.ClassifyHTTP(resp, err)
		if err != nil {
			lastErr = err
			if kind == errkind.Cancelled {
				return nil, errkind.New(errkind.Cancelled, err)
			}
			continue
		}

		if kind == "" {
			return resp, nil
		}
		if !kind.Retryable() {
			return resp, errkind.New(kind, fmt.Errorf("httpclient: status %d", resp.StatusCode))
		}

		if kind == errkind.RateLimited {
			if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
				retryAfter = ra
			}
		}
		if attempt == c.maxRetries {
			return resp, errkind.New(kind, fmt.Errorf("httpclient: status %d after %d attempts", resp.StatusCode, attempt+1))
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpclient: retryable status %d", resp.StatusCode)
	}

	return nil, errkind.New(errkind.Transient, lastErr)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	exp := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(c.maxDelay) {
		exp = float64(c.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		return time.Until(t)
	}
	return 0
}
