// Package ratelimit gates every outbound marketplace call with two
// cooperating policies: a sliding-window rate limiter that protects the
// remote server, and a circuit breaker that protects this process from
// wasting effort on an endpoint that is already failing. Both are keyed by
// endpoint class and safe for concurrent use.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// Class groups endpoints that share a rate budget.
type Class string

const (
	ClassMarket    Class = "market"    // catalog listings, aggregated prices
	ClassAccount   Class = "account"   // balance, inventory
	ClassTrading   Class = "trading"   // buy/sell intent create + cancel
	ClassReference Class = "reference" // secondary price source
)

// WindowConfig bounds one endpoint class.
type WindowConfig struct {
	Limit   int           // requests allowed per Window
	Window  time.Duration // sliding window span
	MaxWait time.Duration // bound on how long Acquire may block
}

// DefaultWindow is the stock budget: 30 requests per rolling 60 seconds.
func DefaultWindow() WindowConfig {
	return WindowConfig{Limit: 30, Window: time.Minute, MaxWait: 2 * time.Minute}
}

// window is the in-memory sliding window of request timestamps for one
// class. It is owned exclusively by the Limiter and never exposed.
type window struct {
	cfg    WindowConfig
	stamps []time.Time // ascending
}

// trim drops timestamps that have aged out of the window.
func (w *window) trim(now time.Time) {
	cutoff := now.Add(-w.cfg.Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Limiter is a per-class sliding-window rate limiter. Acquire blocks the
// caller (it never drops requests) until a slot frees or MaxWait elapses.
type Limiter struct {
	mu      sync.Mutex
	windows map[Class]*window
	byClass map[Class]WindowConfig
	def     WindowConfig

	// now and sleep are swappable so tests can simulate time.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a Limiter with the given default budget and optional
// per-class overrides.
func NewLimiter(def WindowConfig, byClass map[Class]WindowConfig) *Limiter {
	if def.Limit <= 0 {
		def = DefaultWindow()
	}
	return &Limiter{
		windows: make(map[Class]*window),
		byClass: byClass,
		def:     def,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) windowFor(class Class) *window {
	if w, ok := l.windows[class]; ok {
		return w
	}
	cfg := l.def
	if c, ok := l.byClass[class]; ok {
		cfg = c
	}
	w := &window{cfg: cfg}
	l.windows[class] = w
	return w
}

// Acquire blocks until a request slot for class is available, then records
// the request. It fails with domain.ErrRateLimitTimeout once the class's
// MaxWait is exhausted, or with the context error on cancellation. The
// internal lock is held only for window bookkeeping, never across a sleep.
func (l *Limiter) Acquire(ctx context.Context, class Class) error {
	var waited time.Duration

	for {
		l.mu.Lock()
		w := l.windowFor(class)
		now := l.now()
		w.trim(now)

		if len(w.stamps) < w.cfg.Limit {
			w.stamps = append(w.stamps, now)
			l.mu.Unlock()
			return nil
		}

		// Next slot frees when the oldest stamp leaves the window.
		wait := w.stamps[0].Add(w.cfg.Window).Sub(now)
		maxWait := w.cfg.MaxWait
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if maxWait > 0 && waited+wait > maxWait {
			return fmt.Errorf("ratelimit: class %s: %w", class, domain.ErrRateLimitTimeout)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("ratelimit: class %s: %w", class, err)
		}
		waited += wait
	}
}

// Pending returns how many requests currently occupy the class's window.
func (l *Limiter) Pending(class Class) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.windowFor(class)
	w.trim(l.now())
	return len(w.stamps)
}

// Pacer is a token-bucket pacer for endpoints with an informal rate
// convention rather than a documented hard window (the secondary price
// source, ~30/min). It complements the window limiter instead of replacing
// it: the bucket smooths bursts, the window enforces the budget.
type Pacer struct {
	rl *rate.Limiter
}

// NewPacer creates a pacer allowing perMinute requests per minute with a
// burst of one.
func NewPacer(perMinute int) *Pacer {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Pacer{rl: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)}
}

// Wait blocks until the next token is available or ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.rl.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: pacer: %w", err)
	}
	return nil
}
