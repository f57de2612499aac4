// Package cache implements the two-tier cache: a bounded in-memory LRU
// fronting a pluggable persistent backend, with pattern invalidation,
// single-flight coalescing, and background warming.
package cache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ignite/prospectai/internal/pkg/logger"
)

// Backend is the persistent tier. Implementations: local file-per-key,
// S3, DynamoDB (see local_backend.go, s3_backend.go, dynamodb_backend.go).
type Backend interface {
	Get(ctx context.Context, key string) (entry, bool, error)
	Set(ctx context.Context, key string, e entry) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// entry is the value carried by both tiers.
type entry struct {
	Value     []byte        `json:"value"`
	CreatedTS time.Time     `json:"created_ts"`
	TTL       time.Duration `json:"ttl"`
	SizeBytes int           `json:"size_bytes"`
}

func (e entry) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return now.Sub(e.CreatedTS) >= e.TTL
}

// Stats is a snapshot of cache counters, exposed read-only.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	EntryCount  int
	MemoryBytes int64
	HitRate     float64
}

// Cache is the two-tier TTL cache shared by AI and scraping operations.
type Cache struct {
	mem      *lru.Cache
	backend  Backend
	maxBytes int64 // memory-tier byte cap; 0 means entry-count bound only

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	memBytes  atomic.Int64

	inflight sync.Map // key -> *inflightCall

	warnings atomic.Int64
}

type inflightCall struct {
	done chan struct{}
	val  []byte
	err  error
}

// New builds a Cache with a bounded LRU memory tier of maxEntries capacity
// fronting backend.
func New(maxEntries int, backend Backend) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c := &Cache{backend: backend}
	mem, err := lru.NewWithEvict(maxEntries, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.mem = mem
	return c, nil
}

func (c *Cache) onEvict(key interface{}, value interface{}) {
	c.evictions.Add(1)
	if e, ok := value.(entry); ok {
		c.memBytes.Add(-int64(e.SizeBytes))
	}
}

// Get looks in memory first, then the persistent tier, promoting a disk
// hit back into memory. A persistent-tier I/O error is treated as a miss
// and increments the warning counter; it is never raised to the caller.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := time.Now()

	if v, ok := c.mem.Get(key); ok {
		e := v.(entry)
		if !e.expired(now) {
			c.hits.Add(1)
			return e.Value, true
		}
		c.mem.Remove(key)
	}

	e, found, err := c.backend.Get(ctx, key)
	if err != nil {
		c.warnings.Add(1)
		c.misses.Add(1)
		return nil, false
	}
	if !found || e.expired(now) {
		c.misses.Add(1)
		return nil, false
	}

	c.promote(key, e)
	c.hits.Add(1)
	return e.Value, true
}

// promote installs e in the memory tier, keeping the byte accounting
// straight when an existing key is overwritten (lru.Add on a present key
// replaces the value without firing the eviction callback) and evicting
// oldest entries while the tier is over its byte cap.
func (c *Cache) promote(key string, e entry) {
	if old, ok := c.mem.Peek(key); ok {
		if oe, isEntry := old.(entry); isEntry {
			c.memBytes.Add(-int64(oe.SizeBytes))
		}
	}
	c.mem.Add(key, e)
	c.memBytes.Add(int64(e.SizeBytes))

	if c.maxBytes > 0 {
		for c.memBytes.Load() > c.maxBytes && c.mem.Len() > 1 {
			c.mem.RemoveOldest()
		}
	}
}

// Set writes both tiers. A non-positive ttl creates an already-expired
// entry (expired-on-write).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{Value: value, CreatedTS: time.Now(), TTL: ttl, SizeBytes: len(value)}
	c.promote(key, e)
	if err := c.backend.Set(ctx, key, e); err != nil {
		c.warnings.Add(1)
		logger.Warn("cache persistent write failed", "key", key, "error", err.Error())
	}
	return nil
}

// InvalidatePattern glob-matches keys in both tiers and evicts matches,
// returning the number of distinct keys invalidated (a key present in
// both tiers counts once). Memory-tier matching walks the current LRU
// keys; persistent-tier matching walks the backend's key enumeration.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	removed := make(map[string]struct{})
	for _, k := range c.mem.Keys() {
		key := k.(string)
		if match(pattern, key) {
			c.mem.Remove(key)
			removed[key] = struct{}{}
		}
	}

	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return len(removed), err
	}
	for _, key := range keys {
		if match(pattern, key) {
			_ = c.backend.Delete(ctx, key)
			removed[key] = struct{}{}
		}
	}
	return len(removed), nil
}

func match(pattern, key string) bool {
	ok, err := filepath.Match(pattern, key)
	return err == nil && ok
}

// Factory computes the value for a cache miss.
type Factory func(ctx context.Context) ([]byte, error)

// GetOrCompute guarantees at-most-one concurrent compute per key:
// concurrent callers coalesce onto the first in-flight computation and
// receive its result. A failed computation is not cached and propagates
// to every waiter.
func (c *Cache) GetOrCompute(ctx context.Context, key string, factory Factory, ttl time.Duration) ([]byte, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	call := &inflightCall{done: make(chan struct{})}
	actual, loaded := c.inflight.LoadOrStore(key, call)
	if loaded {
		waiting := actual.(*inflightCall)
		select {
		case <-waiting.done:
			return waiting.val, waiting.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	defer func() {
		c.inflight.Delete(key)
		close(call.done)
	}()

	val, err := factory(ctx)
	if err != nil {
		call.err = err
		return nil, err
	}
	call.val = val
	if setErr := c.Set(ctx, key, val, ttl); setErr != nil {
		logger.Warn("cache set after compute failed", "key", key, "error", setErr.Error())
	}
	return val, nil
}

// WarmTask is one precomputation to run during warming, highest priority
// first.
type WarmTask struct {
	Key      string
	Priority int
	Factory  Factory
	TTL      time.Duration
}

// Warm kicks off background precomputation in priority order. It never
// blocks the caller; each task runs on its own goroutine and reuses
// GetOrCompute so a foreground request racing a warm task still coalesces.
func (c *Cache) Warm(ctx context.Context, tasks []WarmTask) {
	ordered := append([]WarmTask(nil), tasks...)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Priority > ordered[i].Priority {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	for _, task := range ordered {
		task := task
		go func() {
			if _, err := c.GetOrCompute(ctx, task.Key, task.Factory, task.TTL); err != nil {
				logger.Warn("cache warm task failed", "key", task.Key, "error", err.Error())
			}
		}()
	}
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		EntryCount:  c.mem.Len(),
		MemoryBytes: c.memBytes.Load(),
		HitRate:     rate,
	}
}
