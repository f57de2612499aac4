// Package aiservice implements the high-level AI operations: profile
// parsing, product analysis, and email generation, composed from the
// LLM provider registry and the two-tier cache. Every operation is
// served through Cache.GetOrCompute with an operation-typed key so
// duplicate requests coalesce, and returns a uniform result envelope.
package aiservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/llm"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

// opMetrics tracks per-operation counters exposed for SystemStatus and
// operator diagnostics.
type opMetrics struct {
	count        atomic.Int64
	successes    atomic.Int64
	cacheHits    atomic.Int64
	parseErrors  atomic.Int64 // malformed LLM JSON needing a repair round-trip
	totalLatency atomic.Int64 // nanoseconds
}

func (m *opMetrics) record(d time.Duration, success, cached bool) {
	m.count.Add(1)
	if success {
		m.successes.Add(1)
	}
	if cached {
		m.cacheHits.Add(1)
	}
	m.totalLatency.Add(int64(d))
}

// MetricsSnapshot is a point-in-time read of one operation's counters.
type MetricsSnapshot struct {
	Count        int64
	SuccessRate  float64
	CacheHitRate float64
	ParseErrors  int64
	AvgLatency   time.Duration
}

func (m *opMetrics) snapshot() MetricsSnapshot {
	count := m.count.Load()
	if count == 0 {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Count:        count,
		SuccessRate:  float64(m.successes.Load()) / float64(count),
		CacheHitRate: float64(m.cacheHits.Load()) / float64(count),
		ParseErrors:  m.parseErrors.Load(),
		AvgLatency:   time.Duration(m.totalLatency.Load() / count),
	}
}

// Service composes the LLM registry and cache into the three
// parse/analyze/generate operations.
type Service struct {
	registry *llm.Registry
	cache    *cache.Cache
	cfg      *config.Config

	mu      sync.Mutex
	metrics map[string]*opMetrics
}

// New builds a Service over registry and cache, sized per cfg.
func New(registry *llm.Registry, c *cache.Cache, cfg *config.Config) *Service {
	return &Service{
		registry: registry,
		cache:    c,
		cfg:      cfg,
		metrics:  make(map[string]*opMetrics),
	}
}

func (s *Service) metricsFor(op string) *opMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[op]
	if !ok {
		m = &opMetrics{}
		s.metrics[op] = m
	}
	return m
}

// Metrics returns a snapshot of every operation's counters (count, avg
// latency, success rate, cache hit rate).
func (s *Service) Metrics() map[string]MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]MetricsSnapshot, len(s.metrics))
	for op, m := range s.metrics {
		out[op] = m.snapshot()
	}
	return out
}

// opKey builds the cache key for operation op: a hash of the payload,
// prefixed with the operation name so identical payloads to different
// operations never collide.
func opKey(op string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return "aiservice:" + op + ":" + hex.EncodeToString(sum[:])
}

// completeJSON issues a completion and on malformed JSON makes exactly
// one repair attempt before surfacing ParseError.
func (s *Service) completeJSON(ctx context.Context, messages []llm.Message, out any) (repaired bool, err error) {
	provider, err := s.registry.Active()
	if err != nil {
		return false, errkind.New(errkind.ConfigError, err)
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		Messages:       messages,
		ResponseFormat: llm.FormatJSON,
	})
	if err != nil {
		return false, errkind.New(errkind.Transient, err)
	}
	if !resp.Success {
		return false, errkind.New(errkind.Permanent, errors.New(resp.ErrorMessage))
	}

	if jsonErr := json.Unmarshal([]byte(extractJSON(resp.Content)), out); jsonErr == nil {
		return false, nil
	}

	logger.Warn("aiservice: malformed LLM JSON, attempting repair")
	repairMessages := append(append([]llm.Message{}, messages...), llm.Message{
		Role:    llm.RoleUser,
		Content: "Your previous response was not valid JSON. Reply again with ONLY valid JSON matching the requested shape.",
	})
	resp2, err := provider.Complete(ctx, llm.CompletionRequest{
		Messages:       repairMessages,
		ResponseFormat: llm.FormatJSON,
	})
	if err != nil || !resp2.Success {
		return true, errkind.New(errkind.ParseError, errors.New("repair attempt failed"))
	}
	if jsonErr := json.Unmarshal([]byte(extractJSON(resp2.Content)), out); jsonErr != nil {
		return true, errkind.New(errkind.ParseError, jsonErr)
	}
	return true, nil
}

// extractJSON trims any surrounding prose/fencing a chat model adds
// around a JSON object despite being asked for JSON only.
func extractJSON(s string) string {
	start := -1
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	if start != -1 {
		return s[start:]
	}
	return s
}
