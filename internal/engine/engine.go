// Package engine orchestrates the translation pipeline: content keying,
// tiered cache resolution, request deduplication, windowed batching,
// retries with backoff, offline handling, and the plugin hook chain.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rustledotdev/rustle.dev-sub001/internal/api"
	"github.com/rustledotdev/rustle.dev-sub001/internal/batch"
	"github.com/rustledotdev/rustle.dev-sub001/internal/bundle"
	"github.com/rustledotdev/rustle.dev-sub001/internal/cache"
	"github.com/rustledotdev/rustle.dev-sub001/internal/config"
	"github.com/rustledotdev/rustle.dev-sub001/internal/dedup"
	"github.com/rustledotdev/rustle.dev-sub001/internal/fingerprint"
	"github.com/rustledotdev/rustle.dev-sub001/internal/offline"
	"github.com/rustledotdev/rustle.dev-sub001/internal/plugin"
	"github.com/rustledotdev/rustle.dev-sub001/internal/ratelimit"
	"github.com/rustledotdev/rustle.dev-sub001/internal/validator"
)

// ErrOffline is returned when the engine is offline, no cached translation
// exists, and the fallback policy is disabled.
var ErrOffline = errors.New("engine: offline and no cached translation")

// Cache tiers reported on resolution.
const (
	TierBundle       = "bundle"
	TierCachedBundle = "cached-bundle"
	TierPersistent   = "persistent"
)

// BatchClient is the transport surface the engine depends on.
type BatchClient interface {
	TranslateBatch(ctx context.Context, entries []api.Entry, srcLocale, tgtLocale string, opts ...api.CallOption) (*api.BatchResult, error)
}

// Engine is the translation engine. Construct with New; Close releases the
// persistent cache and destroys plugins.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	bundles *bundle.Set
	store   *cache.Store
	client  BatchClient
	plugins *plugin.Registry
	offline *offline.Manager
	valid   *validator.Validator

	group dedup.Group
	sched *batch.Scheduler

	backoffUnit time.Duration

	mu            sync.Mutex
	currentLocale string
	localeSubs    []func(locale string)

	discMu     sync.Mutex
	discovered map[string]*TranslationEntry

	quotaMu   sync.Mutex
	quotaSeen map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClient overrides the transport. Tests inject stubs here.
func WithClient(c BatchClient) Option {
	return func(e *Engine) {
		if c != nil {
			e.client = c
		}
	}
}

// WithStore overrides the persistent cache.
func WithStore(s *cache.Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithBundles overrides the static bundle set.
func WithBundles(s *bundle.Set) Option {
	return func(e *Engine) {
		if s != nil {
			e.bundles = s
		}
	}
}

// WithValidator enables advisory language validation of network results.
func WithValidator(v *validator.Validator) Option {
	return func(e *Engine) { e.valid = v }
}

// WithBackoffUnit overrides the base retry delay (default one second).
// Tests shrink it to keep backoff measurable without slow runs.
func WithBackoffUnit(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.backoffUnit = d
		}
	}
}

// New creates an Engine for cfg. Components not supplied via options are
// built from the configuration: a SQLite cache at cfg.DBPath, bundles from
// cfg.BundleDir, and an API client against cfg.APIBase.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		backoffUnit: time.Second,
		discovered:  make(map[string]*TranslationEntry),
		quotaSeen:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.offline = offline.New(offline.WithLogger(e.logger))
	e.plugins = plugin.NewRegistry(e.logger)

	if e.bundles == nil {
		set, err := bundle.LoadDir(cfg.BundleDir)
		if err != nil {
			return nil, fmt.Errorf("loading bundles: %w", err)
		}
		e.bundles = set
	}

	if e.store == nil {
		store, err := cache.New(cfg.DBPath,
			cache.WithTTL(cfg.CacheTTLs.Translation, cfg.CacheTTLs.Bundle))
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		e.store = store
	}

	if e.client == nil {
		e.client = api.NewClient(api.Config{
			BaseURL: cfg.APIBase,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
			RateLimit: ratelimit.Config{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateWindow(),
			},
		}, api.WithLogger(e.logger))
	}

	e.sched = batch.New(e.flushBatch,
		batch.WithWindow(cfg.BatchWindow()),
		batch.WithFallback(cfg.Fallback),
		batch.WithLogger(e.logger))

	if len(cfg.TargetLanguages) > 0 {
		e.currentLocale = cfg.TargetLanguages[0]
	}

	e.plugins.Init(cfg)
	return e, nil
}

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Default returns the process-wide engine, creating it from cfg on first
// call. Later calls return the existing instance and ignore cfg. Callers
// that need isolated lifecycles should construct engines with New.
func Default(cfg config.Config, opts ...Option) (*Engine, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine != nil {
		return defaultEngine, nil
	}
	e, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultEngine = e
	return e, nil
}

// Close destroys plugins and releases the persistent cache.
func (e *Engine) Close() error {
	e.plugins.Destroy()
	return e.store.Close()
}

// Use registers a plugin.
func (e *Engine) Use(p plugin.Plugin) error {
	return e.plugins.Use(p)
}

// SetOnline records a connectivity change.
func (e *Engine) SetOnline(online bool) {
	e.offline.SetOnline(online)
}

// OfflinePending returns the number of requests queued while offline.
func (e *Engine) OfflinePending() int {
	return e.offline.Pending()
}

// CurrentLocale returns the active target locale.
func (e *Engine) CurrentLocale() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocale
}

// RequestToken returns the current locale epoch. Batch responses tagged
// with an older token are discarded on arrival.
func (e *Engine) RequestToken() uint64 {
	return e.sched.Epoch()
}

// OnLocaleChanged subscribes fn to locale switches. The discovery layer
// uses this to know when to re-render.
func (e *Engine) OnLocaleChanged(fn func(locale string)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.localeSubs = append(e.localeSubs, fn)
	e.mu.Unlock()
}

// SetLocale switches the active target locale. Queued batch items are
// cancelled, in-flight responses become stale, and plugins plus locale
// subscribers are notified. Last switch wins.
func (e *Engine) SetLocale(locale string) error {
	if !api.ValidLocale(locale) {
		return &api.ValidationError{Field: "locale", Message: fmt.Sprintf("invalid locale %q", locale)}
	}

	e.mu.Lock()
	old := e.currentLocale
	if old == locale {
		e.mu.Unlock()
		return nil
	}
	e.currentLocale = locale
	subs := make([]func(string), len(e.localeSubs))
	copy(subs, e.localeSubs)
	e.mu.Unlock()

	token := e.sched.Bump()
	e.logger.Debug("locale switched", "from", old, "to", locale, "token", token)

	e.plugins.EmitLocaleChange(locale, old)
	for _, fn := range subs {
		fn(locale)
	}
	return nil
}

// TranslateOption configures a single Translate call.
type TranslateOption func(*translateOptions)

type translateOptions struct {
	cache   bool
	retries int
	context string
}

// WithoutCache skips cache resolution and write-through for this call.
func WithoutCache() TranslateOption {
	return func(o *translateOptions) { o.cache = false }
}

// WithRetries overrides the configured retry budget for this call.
func WithRetries(n int) TranslateOption {
	return func(o *translateOptions) {
		if n > 0 {
			o.retries = n
		}
	}
}

// WithContext attaches translation context passed through to the API.
func WithContext(c string) TranslateOption {
	return func(o *translateOptions) { o.context = c }
}

// Translate returns text rendered in tgtLocale, using the cheapest source
// available: static bundle, persistent cache, or the batched remote API.
// An empty tgtLocale means the engine's current locale.
func (e *Engine) Translate(ctx context.Context, text, tgtLocale string, opts ...TranslateOption) (string, error) {
	o := translateOptions{cache: true, retries: e.cfg.MaxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	if tgtLocale == "" {
		tgtLocale = e.CurrentLocale()
	}
	src := e.cfg.SourceLanguage

	if !fingerprint.IsTranslatable(text) || tgtLocale == src {
		return text, nil
	}

	popts := plugin.Options{Cache: o.cache, Retries: o.retries, Context: o.context}
	subject := e.plugins.RunBeforeTranslate(text, tgtLocale, popts)
	key := dedup.Key(fingerprint.Normalize(subject), src, tgtLocale)

	if o.cache {
		if v, tier, ok := e.resolveCached(ctx, subject, src, tgtLocale); ok {
			e.logger.Debug("cache hit", "tier", tier, "key", key)
			e.plugins.EmitCacheHit(key, v)
			return e.plugins.RunAfterTranslate(v, text, tgtLocale, popts), nil
		}
		e.plugins.EmitCacheMiss(key)
	}

	if v, ok := e.plugins.FirstResolve(subject, tgtLocale); ok {
		if o.cache {
			if err := e.store.Put(ctx, subject, src, tgtLocale, v); err != nil {
				e.logger.Warn("cache write failed", "err", err)
			}
		}
		return e.plugins.RunAfterTranslate(v, text, tgtLocale, popts), nil
	}

	if !e.offline.Online() {
		e.offline.Enqueue(subject, src, tgtLocale)
		e.logger.Debug("offline, request queued", "key", key)
		if e.cfg.Fallback {
			return text, nil
		}
		return "", ErrOffline
	}

	value, err := e.fetchWithRetry(ctx, key, subject, src, tgtLocale, o)
	if err != nil {
		e.plugins.EmitError(err, "translate")

		var qe *api.QuotaError
		if errors.As(err, &qe) {
			e.notifyQuota(qe)
		}

		// A cancellation from a locale switch is benign; do not fall
		// back to stale cached data for the superseded locale.
		cancelled := errors.Is(err, batch.ErrCancelled) || errors.Is(err, context.Canceled)
		if !cancelled && o.cache {
			if v, _, ok := e.resolveCached(ctx, subject, src, tgtLocale); ok {
				return e.plugins.RunAfterTranslate(v, text, tgtLocale, popts), nil
			}
		}
		if e.cfg.Fallback {
			return text, nil
		}
		return "", err
	}

	return e.plugins.RunAfterTranslate(value, text, tgtLocale, popts), nil
}

// TranslateBatch is the direct batch surface: validation, rate limiting,
// and response cleaning apply, but no windowing or retries. Results are
// written through to the persistent cache.
func (e *Engine) TranslateBatch(ctx context.Context, entries []api.Entry, srcLocale, tgtLocale string) (*api.BatchResult, error) {
	res, err := e.client.TranslateBatch(ctx, entries, srcLocale, tgtLocale)
	if err != nil {
		var qe *api.QuotaError
		if errors.As(err, &qe) {
			e.notifyQuota(qe)
		}
		e.plugins.EmitError(err, "translateBatch")
		return nil, err
	}

	for _, en := range entries {
		v, ok := res.Translations[en.ID]
		if !ok {
			continue
		}
		if err := e.store.Put(ctx, en.Text, srcLocale, tgtLocale, v); err != nil {
			e.logger.Warn("cache write failed", "err", err)
		}
		e.recordTranslated(en.Text, tgtLocale, v)
	}
	return res, nil
}

// resolveCached checks the static bundle tier, then bundles imported into
// the persistent store, then per-translation store records.
func (e *Engine) resolveCached(ctx context.Context, text, srcLocale, tgtLocale string) (string, string, bool) {
	if v, ok := e.bundles.Lookup(text, tgtLocale); ok {
		return v, TierBundle, true
	}
	if m, ok, err := e.store.GetBundle(ctx, tgtLocale); err != nil {
		e.logger.Warn("bundle cache read failed", "err", err)
	} else if ok {
		// Same keying as static bundles: fingerprint first, then text.
		if v, ok := m[fingerprint.Fingerprint(text)]; ok {
			return v, TierCachedBundle, true
		}
		if v, ok := m[text]; ok {
			return v, TierCachedBundle, true
		}
	}
	v, ok, err := e.store.Get(ctx, text, srcLocale, tgtLocale)
	if err != nil {
		e.logger.Warn("cache read failed", "err", err)
		return "", "", false
	}
	if ok {
		return v, TierPersistent, true
	}
	return "", "", false
}

// fetchWithRetry runs the deduplicated scheduler/network path with
// exponential backoff. Before each retry the persistent cache is
// re-checked: a concurrent caller may have already populated it.
func (e *Engine) fetchWithRetry(ctx context.Context, key, text, srcLocale, tgtLocale string, o translateOptions) (string, error) {
	var lastErr error

	for attempt := 0; attempt < o.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * e.backoffUnit
			e.logger.Debug("retrying translation", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			if o.cache {
				if v, ok, _ := e.store.Get(ctx, text, srcLocale, tgtLocale); ok {
					return v, nil
				}
			}
		}

		value, shared, err := e.group.Do(key, func() (string, error) {
			v, err := e.sched.Enqueue(ctx, text, srcLocale, tgtLocale)
			if err != nil {
				return "", err
			}
			if e.valid != nil {
				if verr := e.valid.Check(v, tgtLocale); verr != nil {
					e.logger.Debug("translation failed language validation",
						"target", tgtLocale, "err", verr)
				}
			}
			// Persist before handing back: a repeated identical request
			// inside the TTL must never reach the network again.
			if o.cache {
				if perr := e.store.Put(ctx, text, srcLocale, tgtLocale, v); perr != nil {
					e.logger.Warn("cache write failed", "err", perr)
				}
			}
			e.recordTranslated(text, tgtLocale, v)
			return v, nil
		})
		if err == nil {
			if shared {
				e.logger.Debug("request deduplicated", "key", key)
			}
			return value, nil
		}

		lastErr = err
		if errors.Is(err, batch.ErrCancelled) || errors.Is(err, context.Canceled) {
			return "", err
		}
		if !api.IsRetryable(err) && !errors.Is(err, batch.ErrMissingResult) {
			return "", err
		}
	}
	return "", lastErr
}

// flushBatch is the scheduler's flush function: one network call per window.
func (e *Engine) flushBatch(ctx context.Context, entries map[string]string, srcLocale, tgtLocale string) (map[string]string, error) {
	apiEntries := make([]api.Entry, 0, len(entries))
	for id, text := range entries {
		apiEntries = append(apiEntries, api.Entry{ID: id, Text: text})
	}
	res, err := e.client.TranslateBatch(ctx, apiEntries, srcLocale, tgtLocale)
	if err != nil {
		return nil, err
	}
	return res.Translations, nil
}

// QuotaExhausted reports whether any quota error was observed. The
// fallback policy can mask quota failures into original-text results, so
// automated callers check this to still finish with a non-zero status.
func (e *Engine) QuotaExhausted() bool {
	e.quotaMu.Lock()
	defer e.quotaMu.Unlock()
	return len(e.quotaSeen) > 0
}

// notifyQuota surfaces a quota error once per quota-limit signature;
// repeats are suppressed.
func (e *Engine) notifyQuota(qe *api.QuotaError) {
	e.quotaMu.Lock()
	seen := e.quotaSeen[qe.Signature()]
	if !seen {
		e.quotaSeen[qe.Signature()] = true
	}
	e.quotaMu.Unlock()

	if !seen {
		e.logger.Warn("translation quota exceeded",
			"code", qe.Code, "limit", qe.Limit, "used", qe.Used, "detail", qe.Message)
	}
}
