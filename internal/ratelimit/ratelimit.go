// Package ratelimit implements the per-service token-bucket rate
// limiter: one bucket per window (minute/hour/day), blocking acquire
// with cancellation, FIFO tie-break among local contenders, and Redis
// Lua scripts so the cross-window check-and-increment is atomic even
// across multiple process instances sharing the same Redis.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/errkind"
)

// multiWindowScript atomically checks minute/hour/day counters and only
// increments if every window still has headroom for cost, so an acquire
// succeeds only when all configured windows permit it.
const multiWindowScript = `
local minuteKey = KEYS[1]
local hourKey = KEYS[2]
local dayKey = KEYS[3]
local cost = tonumber(ARGV[1])
local minuteLimit = tonumber(ARGV[2])
local hourLimit = tonumber(ARGV[3])
local dayLimit = tonumber(ARGV[4])

local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local hourCurrent = tonumber(redis.call("GET", hourKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dayKey) or "0")

if minuteLimit > 0 and minCurrent + cost > minuteLimit then
    return {0, 1, minCurrent}
end
if hourLimit > 0 and hourCurrent + cost > hourLimit then
    return {0, 2, hourCurrent}
end
if dayLimit > 0 and dayCurrent + cost > dayLimit then
    return {0, 3, dayCurrent}
end

local newMin = redis.call("INCRBY", minuteKey, cost)
if newMin == cost then redis.call("EXPIRE", minuteKey, 120) end
local newHour = redis.call("INCRBY", hourKey, cost)
if newHour == cost then redis.call("EXPIRE", hourKey, 7200) end
local newDay = redis.call("INCRBY", dayKey, cost)
if newDay == cost then redis.call("EXPIRE", dayKey, 90000) end

return {1, 0, newDay}
`

// ErrRateLimitTimeout is returned by Acquire when the deadline elapses
// before tokens become available.
var ErrRateLimitTimeout = fmt.Errorf("ratelimit: timed out waiting for tokens")

// RateLimiter holds one Redis-backed multi-window bucket per configured
// service name, plus an in-process FIFO queue per name so local goroutine
// contention resolves fairly instead of by scheduler luck.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script

	mu     sync.RWMutex
	limits map[string]config.ServiceLimit

	queuesMu sync.Mutex
	queues   map[string]*fifoQueue

	outcomesMu sync.Mutex
	outcomes   map[string]*outcomeWindow
}

type fifoQueue struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// enqueue appends a ticket and returns a channel that is closed when it is
// this caller's turn to attempt acquisition.
func (q *fifoQueue) enqueue() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	if len(q.waiters) == 1 {
		close(ch)
	}
	return ch
}

// advance lets the next waiter in line proceed.
func (q *fifoQueue) advance() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return
	}
	q.waiters = q.waiters[1:]
	if len(q.waiters) > 0 {
		close(q.waiters[0])
	}
}

// cancel withdraws ch from the queue without waiting for its turn, used
// when a caller's context is done before enqueue's channel closes. If ch
// was already at the front, the next waiter is released exactly as
// advance would; otherwise the queue is untouched. Without this, a
// caller that loses the enqueue/ctx.Done race never calls advance and
// every later Acquire for the same service name blocks forever.
func (q *fifoQueue) cancel(ch chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.waiters {
		if c != ch {
			continue
		}
		q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
		if i == 0 && len(q.waiters) > 0 {
			close(q.waiters[0])
		}
		return
	}
}

type outcomeWindow struct {
	mu          sync.Mutex
	successes   int
	failures    int
	windowStart time.Time
}

// New builds a RateLimiter over redisClient with the named service limits
// from config.
func New(redisClient *redis.Client, limits map[string]config.ServiceLimit) *RateLimiter {
	copied := make(map[string]config.ServiceLimit, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	return &RateLimiter{
		redis:    redisClient,
		script:   redis.NewScript(multiWindowScript),
		limits:   copied,
		queues:   make(map[string]*fifoQueue),
		outcomes: make(map[string]*outcomeWindow),
	}
}

func (r *RateLimiter) queueFor(name string) *fifoQueue {
	r.queuesMu.Lock()
	defer r.queuesMu.Unlock()
	q, ok := r.queues[name]
	if !ok {
		q = &fifoQueue{}
		r.queues[name] = q
	}
	return q
}

// CurrentLimit returns the configured limit for name.
func (r *RateLimiter) CurrentLimit(name string) (config.ServiceLimit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limits[name]
	return l, ok
}

// UpdateLimit atomically swaps the configured limit for name, used by
// adaptive tuning.
func (r *RateLimiter) UpdateLimit(name string, newLimit config.ServiceLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[name] = newLimit
}

// Acquire blocks until tokens are available across every configured
// window for cost, or ctx is cancelled/its deadline elapses, whichever
// comes first. Contenders for the same name are served FIFO.
func (r *RateLimiter) Acquire(ctx context.Context, name string, cost int) error {
	limit, ok := r.CurrentLimit(name)
	if !ok {
		return errkind.New(errkind.ConfigError, fmt.Errorf("ratelimit: unknown service %q", name))
	}
	if cost <= 0 {
		cost = 1
	}

	queue := r.queueFor(name)
	turn := queue.enqueue()

	select {
	case <-turn:
		defer queue.advance()
	case <-ctx.Done():
		queue.cancel(turn)
		return errkind.New(errkind.Cancelled, ctx.Err())
	}

	for {
		allowed, wait, err := r.tryAcquire(ctx, name, cost, limit)
		if err != nil {
			return errkind.New(errkind.Transient, err)
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			if ctx.Err() == context.DeadlineExceeded {
				return errkind.New(errkind.RateLimited, ErrRateLimitTimeout)
			}
			return errkind.New(errkind.Cancelled, ctx.Err())
		}
	}
}

func (r *RateLimiter) tryAcquire(ctx context.Context, name string, cost int, limit config.ServiceLimit) (allowed bool, wait time.Duration, err error) {
	now := time.Now()
	minuteKey := fmt.Sprintf("ratelimit:%s:min:%d", name, now.Unix()/60)
	hourKey := fmt.Sprintf("ratelimit:%s:hour:%d", name, now.Unix()/3600)
	dayKey := fmt.Sprintf("ratelimit:%s:day:%s", name, now.Format("2006-01-02"))

	result, err := r.script.Run(ctx, r.redis,
		[]string{minuteKey, hourKey, dayKey},
		cost, limit.PerMinute, limit.PerHour, limit.PerDay,
	).Slice()
	if err != nil {
		return false, 0, err
	}

	allowedInt, _ := result[0].(int64)
	reason, _ := result[1].(int64)
	if allowedInt == 1 {
		return true, 0, nil
	}

	switch reason {
	case 1: // minute window
		return false, time.Duration(60-now.Second()) * time.Second, nil
	case 2: // hour window
		return false, time.Duration(3600-int(now.Unix()%3600)) * time.Second, nil
	default: // day window: no point retrying within this run
		return false, 0, fmt.Errorf("ratelimit: daily limit exhausted for %s", name)
	}
}

// GetCurrentUsage reports the current counter value for each window of
// name, for SystemStatus quota_used reporting.
func (r *RateLimiter) GetCurrentUsage(ctx context.Context, name string) (map[string]int64, error) {
	now := time.Now()
	minuteKey := fmt.Sprintf("ratelimit:%s:min:%d", name, now.Unix()/60)
	hourKey := fmt.Sprintf("ratelimit:%s:hour:%d", name, now.Unix()/3600)
	dayKey := fmt.Sprintf("ratelimit:%s:day:%s", name, now.Format("2006-01-02"))

	pipe := r.redis.Pipeline()
	minCmd := pipe.Get(ctx, minuteKey)
	hourCmd := pipe.Get(ctx, hourKey)
	dayCmd := pipe.Get(ctx, dayKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	min, _ := minCmd.Int64()
	hour, _ := hourCmd.Int64()
	day, _ := dayCmd.Int64()

	limit, _ := r.CurrentLimit(name)
	return map[string]int64{
		"minute_current": min,
		"minute_limit":   int64(limit.PerMinute),
		"hour_current":   hour,
		"hour_limit":     int64(limit.PerHour),
		"day_current":    day,
		"day_limit":      int64(limit.PerDay),
	}, nil
}

// RecordOutcome feeds the adaptive-tuning sliding window: call after every
// acquire-gated request completes, success or failure.
func (r *RateLimiter) RecordOutcome(name string, success bool) {
	r.outcomesMu.Lock()
	w, ok := r.outcomes[name]
	if !ok {
		w = &outcomeWindow{windowStart: time.Now()}
		r.outcomes[name] = w
	}
	r.outcomesMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.windowStart) > 5*time.Minute {
		w.successes, w.failures = 0, 0
		w.windowStart = time.Now()
	}
	if success {
		w.successes++
	} else {
		w.failures++
	}
}

// AdaptiveTune raises the per-minute target 10% when the sliding-window
// success rate exceeds 95%, lowers it 10% below 80%, bounded by
// [floor,ceiling]. It is a no-op below minSamples observations.
func (r *RateLimiter) AdaptiveTune(name string, floor, ceiling, minSamples int) {
	r.outcomesMu.Lock()
	w, ok := r.outcomes[name]
	r.outcomesMu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	total := w.successes + w.failures
	var rate float64
	if total > 0 {
		rate = float64(w.successes) / float64(total)
	}
	w.mu.Unlock()
	if total < minSamples {
		return
	}

	limit, ok := r.CurrentLimit(name)
	if !ok {
		return
	}

	switch {
	case rate > 0.95:
		limit.PerMinute = clamp(int(float64(limit.PerMinute)*1.1), floor, ceiling)
	case rate < 0.80:
		limit.PerMinute = clamp(int(float64(limit.PerMinute)*0.9), floor, ceiling)
	default:
		return
	}
	r.UpdateLimit(name, limit)
}

func clamp(v, lo, hi int) int {
	if lo > 0 && v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// Close releases the underlying Redis connection.
func (r *RateLimiter) Close() error {
	return r.redis.Close()
}
