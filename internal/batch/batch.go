// Package batch coalesces individual translate calls into windowed batches.
//
// Enqueue appends a request and arms a fixed-delay flush timer if one is not
// already armed. This is a fixed window, not a sliding debounce: per-item
// added latency is bounded by the window regardless of arrival pattern.
// Requests arriving after a flush has begun join the next window.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the flush delay when none is configured.
const DefaultWindow = 100 * time.Millisecond

var (
	// ErrCancelled means the request's scheduling epoch was superseded by
	// a locale switch before its result could be delivered.
	ErrCancelled = errors.New("batch: cancelled by locale switch")

	// ErrMissingResult means the response did not contain a translation
	// for the request's id and fallback is disabled.
	ErrMissingResult = errors.New("batch: translation missing from response")
)

// FlushFunc performs one batch translation call. entries maps synthetic ids
// to source text; the result maps those same ids to translations.
type FlushFunc func(ctx context.Context, entries map[string]string, srcLocale, tgtLocale string) (map[string]string, error)

type outcome struct {
	value string
	err   error
}

type item struct {
	id        string
	text      string
	srcLocale string
	tgtLocale string
	ch        chan outcome
}

// Scheduler is the windowed batching scheduler. Safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	queue []*item
	timer *time.Timer
	epoch uint64
	seq   uint64

	window   time.Duration
	flush    FlushFunc
	fallback bool
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWindow sets the flush window.
func WithWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithFallback controls whether items missing from a response resolve to
// their original text instead of failing with ErrMissingResult.
func WithFallback(enabled bool) Option {
	return func(s *Scheduler) { s.fallback = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scheduler that flushes through fn.
func New(fn FlushFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		window: DefaultWindow,
		flush:  fn,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Epoch returns the current scheduling epoch (the request token).
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Pending returns the number of queued, unflushed items.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Enqueue schedules text for the next batch flush and blocks until its
// translation arrives, the batch is cancelled, or ctx is done.
func (s *Scheduler) Enqueue(ctx context.Context, text, srcLocale, tgtLocale string) (string, error) {
	s.mu.Lock()
	s.seq++
	it := &item{
		id:        fmt.Sprintf("e%d", s.seq),
		text:      text,
		srcLocale: srcLocale,
		tgtLocale: tgtLocale,
		ch:        make(chan outcome, 1),
	}
	s.queue = append(s.queue, it)
	if s.timer == nil {
		s.timer = time.AfterFunc(s.window, s.fire)
	}
	s.mu.Unlock()

	select {
	case out := <-it.ch:
		return out.value, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Bump invalidates the current scheduling epoch. Queued-but-unflushed items
// fail with ErrCancelled and no network call is made for them; a flush
// already in flight has its response discarded on arrival. Returns the new
// epoch.
func (s *Scheduler) Bump() uint64 {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, it := range dropped {
		it.ch <- outcome{err: ErrCancelled}
	}
	if len(dropped) > 0 {
		s.logger.Debug("batch queue cancelled", "items", len(dropped), "epoch", epoch)
	}
	return epoch
}

// fire runs in the timer goroutine when the window elapses.
func (s *Scheduler) fire() {
	s.mu.Lock()
	items := s.queue
	s.queue = nil
	s.timer = nil
	epoch := s.epoch
	s.mu.Unlock()

	if len(items) == 0 {
		return
	}

	// One batch call per locale pair. A window normally holds a single
	// pair; mixed pairs can only appear around a locale switch.
	type pair struct{ src, tgt string }
	groups := make(map[pair][]*item)
	for _, it := range items {
		p := pair{it.srcLocale, it.tgtLocale}
		groups[p] = append(groups[p], it)
	}

	for p, group := range groups {
		s.flushGroup(group, p.src, p.tgt, epoch)
	}
}

func (s *Scheduler) flushGroup(group []*item, srcLocale, tgtLocale string, epoch uint64) {
	entries := make(map[string]string, len(group))
	for _, it := range group {
		entries[it.id] = it.text
	}

	translations, err := s.flush(context.Background(), entries, srcLocale, tgtLocale)

	// A locale switch while the call was in flight makes the whole
	// response stale: discard it rather than deliver another locale's
	// data to waiting callers.
	if s.Epoch() != epoch {
		s.logger.Debug("discarding stale batch response",
			"items", len(group), "epoch", epoch, "current", s.Epoch())
		for _, it := range group {
			it.ch <- outcome{err: ErrCancelled}
		}
		return
	}

	if err != nil {
		for _, it := range group {
			it.ch <- outcome{err: err}
		}
		return
	}

	for _, it := range group {
		if v, ok := translations[it.id]; ok {
			it.ch <- outcome{value: v}
		} else if s.fallback {
			it.ch <- outcome{value: it.text}
		} else {
			it.ch <- outcome{err: fmt.Errorf("%w: id %s", ErrMissingResult, it.id)}
		}
	}
}
