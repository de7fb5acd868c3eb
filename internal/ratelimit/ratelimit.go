// Package ratelimit implements a fixed-window request limiter.
//
// The limiter guards the batch-translate endpoint: each credential identity
// gets an independent window, and requests over the limit are rejected
// locally without a network round trip.
package ratelimit

import (
	"sync"
	"time"
)

// Config bounds one window.
type Config struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the fixed window duration.
	Window time.Duration
}

// Result reports the outcome of an Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the current window resets. Zero when
	// the request was allowed.
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

// FixedWindow is a keyed fixed-window limiter. Safe for concurrent use.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     Config
	now     func() time.Time
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source. Used by tests to step windows
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(fw *FixedWindow) {
		if now != nil {
			fw.now = now
		}
	}
}

// New creates a limiter allowing cfg.Max requests per cfg.Window per key.
func New(cfg Config, opts ...Option) *FixedWindow {
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	fw := &FixedWindow{
		windows: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw
}

// Allow consumes one slot for key, opening a fresh window when the current
// one has elapsed.
func (fw *FixedWindow) Allow(key string) Result {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	w, ok := fw.windows[key]
	if !ok || now.Sub(w.start) >= fw.cfg.Window {
		w = &window{start: now}
		fw.windows[key] = w
	}

	if w.count >= fw.cfg.Max {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.start.Add(fw.cfg.Window).Sub(now),
		}
	}

	w.count++
	return Result{Allowed: true, Remaining: fw.cfg.Max - w.count}
}

// Reset clears the window for key.
func (fw *FixedWindow) Reset(key string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.windows, key)
}
