// Package browserpool implements a bounded pool of headless browser
// sessions, used only when HTTP-only retrieval can't render a page's
// JavaScript: one chromedp allocator context backs a fixed number of
// exclusive per-session browser tabs, FIFO acquire, and an idle-owner
// watchdog that reclaims leaked sessions.
package browserpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/pkg/logger"
)

// Session is a single exclusive browser tab checked out from the Pool.
type Session struct {
	pool       *Pool
	ctx        context.Context
	cancel     context.CancelFunc
	owner      string
	acquiredAt time.Time
	destroyed  bool
}

// Pool bounds outstanding+idle browser sessions to its configured size.
type Pool struct {
	cfg        config.BrowserConfig
	allocCtx   context.Context
	allocClose context.CancelFunc

	sem chan struct{} // capacity gate; buffered to pool size

	mu       sync.Mutex
	sessions map[*Session]struct{}

	watchdogStop chan struct{}
}

// New starts the shared chromedp allocator and the idle-owner watchdog.
func New(cfg config.BrowserConfig) (*Pool, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	p := &Pool{
		cfg:          cfg,
		allocCtx:     allocCtx,
		allocClose:   cancel,
		sem:          make(chan struct{}, cfg.PoolSize),
		sessions:     make(map[*Session]struct{}),
		watchdogStop: make(chan struct{}),
	}
	go p.watchdog()
	return p, nil
}

// Acquire waits FIFO (via the buffered semaphore) for a free pool slot,
// or returns Cancelled if ctx elapses first, or deadline is exceeded.
func (p *Pool) Acquire(ctx context.Context, owner string, deadline time.Duration) (*Session, error) {
	acquireCtx := ctx
	var cancelDeadline context.CancelFunc
	if deadline > 0 {
		acquireCtx, cancelDeadline = context.WithTimeout(ctx, deadline)
		defer cancelDeadline()
	}

	select {
	case p.sem <- struct{}{}:
	case <-acquireCtx.Done():
		if ctx.Err() != nil {
			return nil, errkind.New(errkind.Cancelled, ctx.Err())
		}
		return nil, errkind.New(errkind.Transient, fmt.Errorf("browserpool: acquire deadline exceeded for %s", owner))
	}

	sessCtx, sessCancel := chromedp.NewContext(p.allocCtx)
	if err := chromedp.Run(sessCtx); err != nil {
		sessCancel()
		<-p.sem
		return nil, errkind.New(errkind.Transient, fmt.Errorf("browserpool: start session: %w", err))
	}

	s := &Session{pool: p, ctx: sessCtx, cancel: sessCancel, owner: owner, acquiredAt: time.Now()}
	p.mu.Lock()
	p.sessions[s] = struct{}{}
	p.mu.Unlock()
	return s, nil
}

// Load navigates to url with a page-load timeout, and waits for waitSelector
// (if non-empty) as a readiness hint. The caller's ctx cancels an
// in-flight load even though the navigation itself runs on the session's
// own chromedp context.
func (s *Session) Load(ctx context.Context, url, waitSelector string, timeout time.Duration) error {
	loadCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}
	if err := chromedp.Run(loadCtx, actions...); err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("browserpool: load %s: %w", url, err))
	}
	return nil
}

// HTML returns the currently rendered page's outer HTML.
func (s *Session) HTML() (string, error) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", errkind.New(errkind.Transient, fmt.Errorf("browserpool: html: %w", err))
	}
	return html, nil
}

// Release returns s to the pool. Idempotent: the idle-owner watchdog can
// reclaim a session the same moment its owner's own deferred Release
// fires, and only the first of the two may free the slot; a second
// receive from the semaphore would free another session's slot, or
// block the releasing goroutine when no other slot is held.
func (p *Pool) Release(s *Session) {
	p.mu.Lock()
	if s.destroyed {
		p.mu.Unlock()
		return
	}
	s.destroyed = true
	delete(p.sessions, s)
	p.mu.Unlock()

	s.cancel()
	<-p.sem
}

// watchdog reclaims sessions held past the configured idle-owner
// threshold, logging a warning; this catches a worker that crashed
// between Acquire and Release without returning its slot.
func (p *Pool) watchdog() {
	threshold := time.Duration(p.cfg.IdleOwnerThresholdSeconds) * time.Second
	if threshold <= 0 {
		threshold = 120 * time.Second
	}
	ticker := time.NewTicker(threshold / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.watchdogStop:
			return
		case <-ticker.C:
			p.mu.Lock()
			var stale []*Session
			for s := range p.sessions {
				if time.Since(s.acquiredAt) > threshold {
					stale = append(stale, s)
				}
			}
			p.mu.Unlock()
			for _, s := range stale {
				logger.Warn("browserpool reclaiming leaked session", "owner", s.owner, "held_for", time.Since(s.acquiredAt).String())
				p.Release(s)
			}
		}
	}
}

// Close tears down the watchdog and the shared allocator, force-closing
// any outstanding sessions, used on Orchestrator cancellation.
func (p *Pool) Close() {
	close(p.watchdogStop)
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
	p.allocClose()
}
