// Package plugin implements the hook chain wrapping the translate pipeline.
//
// Plugins are capability structs with optional hook members, registered by
// unique name. Registration order is execution order. A failing plugin never
// destabilizes the pipeline: panics inside hooks are recovered, logged, and
// routed to that plugin's own OnError.
package plugin

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Options carries the per-call translate options hooks may inspect.
type Options struct {
	Cache   bool
	Retries int
	Context string
}

// ErrorContext tells an OnError hook where the error originated.
type ErrorContext struct {
	Operation string
	Plugin    string
}

// Plugin is a named set of optional hooks.
//
// BeforeTranslate and AfterTranslate are chain hooks: each plugin's output
// feeds the next in registration order; returning ok=false leaves the value
// unchanged. OnCacheHit, OnCacheMiss, OnLocaleChange, and OnError are
// fan-out hooks: every plugin runs regardless of the others' outcomes.
// ResolveTranslation is a first-result hook: the first plugin returning
// ok=true short-circuits the rest.
type Plugin struct {
	Name    string
	Version string

	OnInit    func(config any) error
	OnDestroy func()

	BeforeTranslate func(text, locale string, opts Options) (string, bool)
	AfterTranslate  func(result, original, locale string, opts Options) (string, bool)

	OnLocaleChange func(newLocale, oldLocale string)
	OnError        func(err error, ctx ErrorContext)
	OnCacheHit     func(key, value string)
	OnCacheMiss    func(key string)

	ResolveTranslation func(text, locale string) (string, bool)
}

// Registry holds registered plugins and dispatches their hooks.
// Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	plugins     map[string]*Plugin
	initialized bool
	initConfig  any
	logger      *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		plugins: make(map[string]*Plugin),
		logger:  logger,
	}
}

// Use registers p under its name. Re-registration overwrites the previous
// plugin (keeping its position in the execution order) and logs a warning;
// when the engine is already initialized the new plugin's OnInit runs
// immediately.
func (r *Registry) Use(p Plugin) error {
	if p.Name == "" {
		return fmt.Errorf("plugin name is required")
	}

	r.mu.Lock()
	if _, exists := r.plugins[p.Name]; exists {
		r.logger.Warn("plugin re-registered, overwriting", "plugin", p.Name)
	} else {
		r.order = append(r.order, p.Name)
	}
	r.plugins[p.Name] = &p
	initialized := r.initialized
	cfg := r.initConfig
	r.mu.Unlock()

	if initialized {
		r.initPlugin(&p, cfg)
	}
	return nil
}

// Init marks the registry initialized and runs every plugin's OnInit with
// config. Plugins registered afterwards are initialized on registration.
func (r *Registry) Init(config any) {
	r.mu.Lock()
	r.initialized = true
	r.initConfig = config
	plugins := r.snapshotLocked()
	r.mu.Unlock()

	for _, p := range plugins {
		r.initPlugin(p, config)
	}
}

// Destroy runs every plugin's OnDestroy in registration order.
func (r *Registry) Destroy() {
	for _, p := range r.snapshot() {
		if p.OnDestroy != nil {
			r.safeCall(p, "onDestroy", func() { p.OnDestroy() })
		}
	}
}

func (r *Registry) initPlugin(p *Plugin, config any) {
	if p.OnInit == nil {
		return
	}
	r.safeCall(p, "onInit", func() {
		if err := p.OnInit(config); err != nil {
			r.handleHookError(p, "onInit", err)
		}
	})
}

// RunBeforeTranslate threads text through every BeforeTranslate hook in
// registration order.
func (r *Registry) RunBeforeTranslate(text, locale string, opts Options) string {
	for _, p := range r.snapshot() {
		if p.BeforeTranslate == nil {
			continue
		}
		r.safeCall(p, "beforeTranslate", func() {
			if v, ok := p.BeforeTranslate(text, locale, opts); ok {
				text = v
			}
		})
	}
	return text
}

// RunAfterTranslate threads result through every AfterTranslate hook in
// registration order.
func (r *Registry) RunAfterTranslate(result, original, locale string, opts Options) string {
	for _, p := range r.snapshot() {
		if p.AfterTranslate == nil {
			continue
		}
		r.safeCall(p, "afterTranslate", func() {
			if v, ok := p.AfterTranslate(result, original, locale, opts); ok {
				result = v
			}
		})
	}
	return result
}

// EmitLocaleChange fans out a locale switch to every plugin.
func (r *Registry) EmitLocaleChange(newLocale, oldLocale string) {
	for _, p := range r.snapshot() {
		if p.OnLocaleChange == nil {
			continue
		}
		r.safeCall(p, "onLocaleChange", func() { p.OnLocaleChange(newLocale, oldLocale) })
	}
}

// EmitCacheHit fans out a cache hit to every plugin.
func (r *Registry) EmitCacheHit(key, value string) {
	for _, p := range r.snapshot() {
		if p.OnCacheHit == nil {
			continue
		}
		r.safeCall(p, "onCacheHit", func() { p.OnCacheHit(key, value) })
	}
}

// EmitCacheMiss fans out a cache miss to every plugin.
func (r *Registry) EmitCacheMiss(key string) {
	for _, p := range r.snapshot() {
		if p.OnCacheMiss == nil {
			continue
		}
		r.safeCall(p, "onCacheMiss", func() { p.OnCacheMiss(key) })
	}
}

// EmitError fans out a pipeline error to every plugin's OnError.
func (r *Registry) EmitError(err error, operation string) {
	for _, p := range r.snapshot() {
		if p.OnError == nil {
			continue
		}
		ec := ErrorContext{Operation: operation, Plugin: p.Name}
		r.safeCall(p, "onError", func() { p.OnError(err, ec) })
	}
}

// FirstResolve asks plugins for a translation in registration order and
// returns the first result offered.
func (r *Registry) FirstResolve(text, locale string) (string, bool) {
	for _, p := range r.snapshot() {
		if p.ResolveTranslation == nil {
			continue
		}
		var (
			value string
			found bool
		)
		r.safeCall(p, "resolveTranslation", func() {
			value, found = p.ResolveTranslation(text, locale)
		})
		if found {
			return value, true
		}
	}
	return "", false
}

// Names returns the registered plugin names in execution order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// snapshot returns the plugins in execution order.
func (r *Registry) snapshot() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []*Plugin {
	out := make([]*Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name])
	}
	return out
}

// safeCall runs fn, containing any panic to the failing plugin: the panic is
// logged, routed to the plugin's own OnError, and never reaches the caller.
func (r *Registry) safeCall(p *Plugin, hook string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.handleHookError(p, hook, fmt.Errorf("plugin panic: %v", rec))
		}
	}()
	fn()
}

func (r *Registry) handleHookError(p *Plugin, hook string, err error) {
	r.logger.Warn("plugin hook failed", "plugin", p.Name, "hook", hook, "err", err)
	if p.OnError == nil || hook == "onError" {
		return
	}
	ec := ErrorContext{Operation: hook, Plugin: p.Name}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("plugin onError panicked", "plugin", p.Name, "err", rec)
		}
	}()
	p.OnError(err, ec)
}
