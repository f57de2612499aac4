// Package emailfinder is a thin JSON adapter over a third-party
// email-finder HTTP API, reusing the shared httpclient.Client for
// rate-limit gating, retry, and errkind classification.
package emailfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/httpclient"
)

// Finder resolves an email address for a full name at a given company
// domain via a third-party finder API.
type Finder struct {
	client *httpclient.Client
	cache  *cache.Cache
	cfg    config.EmailFinderConfig
}

// New builds a Finder. When cfg.Enabled is false, Find always returns a
// Classified(ConfigError) so callers can skip the stage cleanly.
func New(client *httpclient.Client, c *cache.Cache, cfg config.EmailFinderConfig) *Finder {
	return &Finder{client: client, cache: c, cfg: cfg}
}

// Result is the resolved email plus the provider's own confidence signal.
type Result struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
	Verified   bool    `json:"verified"`
}

type finderAPIResponse struct {
	Data struct {
		Email        string  `json:"email"`
		Score        float64 `json:"score"`
		Verification struct {
			Status string `json:"status"`
		} `json:"verification"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Find resolves the best-guess email for fullName at domainName. Results
// are cached for 24 hours so repeated lookups for the same (domain, name)
// pair don't re-spend API quota.
func (f *Finder) Find(ctx context.Context, domainName, fullName string) (Result, error) {
	if !f.cfg.Enabled {
		return Result{}, errkind.New(errkind.ConfigError, fmt.Errorf("emailfinder: disabled in config"))
	}

	key := "emailfinder:" + domainName + "|" + fullName
	if cached, ok := f.cache.Get(ctx, key); ok {
		var result Result
		if err := json.Unmarshal(cached, &result); err == nil {
			return result, nil
		}
	}

	endpoint := fmt.Sprintf("%s/v1/people/find?domain=%s&full_name=%s",
		f.cfg.BaseURL, url.QueryEscape(domainName), url.QueryEscape(fullName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, errkind.New(errkind.Permanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(ctx, "email_finder", req)
	if err != nil {
		// httpclient hands back non-retryable responses together with a
		// Permanent error; an account out of credits is quota exhaustion.
		if resp != nil && resp.StatusCode == http.StatusPaymentRequired {
			resp.Body.Close()
			return Result{}, errkind.New(errkind.QuotaExceeded, fmt.Errorf("emailfinder: payment required (status %d)", resp.StatusCode))
		}
		// httpclient has already retried and classified the failure; for
		// this provider a sustained rate-limit (or the account being out
		// of credits, surfaced the same way) means the quota is spent,
		// not that a retry will ever succeed.
		if errkind.As(err) == errkind.RateLimited {
			return Result{}, errkind.New(errkind.QuotaExceeded, fmt.Errorf("emailfinder: quota exhausted: %w", err))
		}
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusPaymentRequired {
		return Result{}, errkind.New(errkind.QuotaExceeded, fmt.Errorf("emailfinder: payment required (status %d)", resp.StatusCode))
	}

	var body finderAPIResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
		return Result{}, errkind.New(errkind.ParseError, fmt.Errorf("emailfinder: decode response: %w", decodeErr))
	}
	if body.Error.Message != "" {
		return Result{}, errkind.New(errkind.Permanent, fmt.Errorf("emailfinder: %s", body.Error.Message))
	}
	if body.Data.Email == "" {
		return Result{}, errkind.New(errkind.Permanent, fmt.Errorf("emailfinder: no match for %q at %q", fullName, domainName))
	}

	result := Result{
		Email:      body.Data.Email,
		Confidence: body.Data.Score,
		Verified:   body.Data.Verification.Status == "valid",
	}

	if encoded, marshalErr := json.Marshal(result); marshalErr == nil {
		_ = f.cache.Set(ctx, key, encoded, 24*time.Hour)
	}
	return result, nil
}
