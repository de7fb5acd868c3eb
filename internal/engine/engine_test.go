package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustledotdev/rustle.dev-sub001/internal/api"
	"github.com/rustledotdev/rustle.dev-sub001/internal/batch"
	"github.com/rustledotdev/rustle.dev-sub001/internal/bundle"
	"github.com/rustledotdev/rustle.dev-sub001/internal/cache"
	"github.com/rustledotdev/rustle.dev-sub001/internal/config"
	"github.com/rustledotdev/rustle.dev-sub001/internal/fingerprint"
	"github.com/rustledotdev/rustle.dev-sub001/internal/plugin"
)

type stubClient struct {
	mu    sync.Mutex
	calls int
	seen  []string
	fn    func(call int, entries []api.Entry, srcLocale, tgtLocale string) (*api.BatchResult, error)
}

func (s *stubClient) TranslateBatch(ctx context.Context, entries []api.Entry, srcLocale, tgtLocale string, opts ...api.CallOption) (*api.BatchResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	for _, e := range entries {
		s.seen = append(s.seen, e.Text)
	}
	fn := s.fn
	s.mu.Unlock()
	return fn(call, entries, srcLocale, tgtLocale)
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubClient) seenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.seen))
	copy(out, s.seen)
	return out
}

// echoStub answers every entry with prefix + source text.
func echoStub(prefix string) *stubClient {
	s := &stubClient{}
	s.fn = func(_ int, entries []api.Entry, _, _ string) (*api.BatchResult, error) {
		out := make(map[string]string, len(entries))
		for _, e := range entries {
			out[e.ID] = prefix + e.Text
		}
		return &api.BatchResult{Success: true, Translations: out}, nil
	}
	return s
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = "test-api-key"
	cfg.TargetLanguages = []string{"es"}
	cfg.BatchWindowMs = 20
	cfg.DBPath = filepath.Join(t.TempDir(), "cache.db")
	cfg.BundleDir = ""
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config, stub *stubClient, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClient(stub), WithBackoffUnit(5 * time.Millisecond)}, opts...)
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestTranslate_WriteThrough(t *testing.T) {
	stub := &stubClient{}
	stub.fn = func(_ int, entries []api.Entry, _, _ string) (*api.BatchResult, error) {
		out := make(map[string]string, len(entries))
		for _, e := range entries {
			out[e.ID] = "Hola mundo"
		}
		return &api.BatchResult{Success: true, Translations: out}, nil
	}
	e := newTestEngine(t, testConfig(t), stub)
	ctx := context.Background()

	got, err := e.Translate(ctx, "Hello world", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hola mundo" {
		t.Errorf("got %q, want %q", got, "Hola mundo")
	}

	// The repeat must resolve from the persistent cache.
	got, err = e.Translate(ctx, "Hello world", "es")
	if err != nil {
		t.Fatalf("repeat Translate: %v", err)
	}
	if got != "Hola mundo" {
		t.Errorf("repeat got %q", got)
	}
	if n := stub.callCount(); n != 1 {
		t.Errorf("expected 1 network call, got %d", n)
	}

	// WithoutCache bypasses resolution and goes back to the network.
	if _, err := e.Translate(ctx, "Hello world", "es", WithoutCache()); err != nil {
		t.Fatalf("uncached Translate: %v", err)
	}
	if n := stub.callCount(); n != 2 {
		t.Errorf("expected 2 network calls after uncached request, got %d", n)
	}
}

func TestTranslate_ConcurrentCallersCollapse(t *testing.T) {
	stub := echoStub("es: ")
	e := newTestEngine(t, testConfig(t), stub)

	const callers = 5
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Translate(context.Background(), "Shared greeting", "es")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != "es: Shared greeting" {
			t.Errorf("caller %d got %q", i, results[i])
		}
	}
	if n := stub.callCount(); n != 1 {
		t.Errorf("expected 1 network call for %d concurrent callers, got %d", callers, n)
	}
}

func TestTranslate_RetriesTransientFailures(t *testing.T) {
	stub := &stubClient{}
	stub.fn = func(call int, entries []api.Entry, _, _ string) (*api.BatchResult, error) {
		if call <= 2 {
			return nil, &api.NetworkError{Err: errors.New("connection reset")}
		}
		out := make(map[string]string, len(entries))
		for _, e := range entries {
			out[e.ID] = "aceptado"
		}
		return &api.BatchResult{Success: true, Translations: out}, nil
	}
	e := newTestEngine(t, testConfig(t), stub)

	start := time.Now()
	got, err := e.Translate(context.Background(), "Please retry", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "aceptado" {
		t.Errorf("got %q", got)
	}
	if n := stub.callCount(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	// Backoff unit is 5ms: delays of 5ms and 10ms precede attempts 2 and 3.
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected cumulative backoff of at least 15ms, took %v", elapsed)
	}
}

func TestTranslate_QuotaErrorIsNotRetried(t *testing.T) {
	stub := &stubClient{}
	stub.fn = func(_ int, _ []api.Entry, _, _ string) (*api.BatchResult, error) {
		return nil, &api.QuotaError{
			APIError: api.APIError{StatusCode: 429, Code: "quota_exceeded", Message: "monthly limit"},
			Limit:    1000,
			Used:     1000,
		}
	}
	cfg := testConfig(t)
	cfg.Fallback = true
	e := newTestEngine(t, cfg, stub)

	if e.QuotaExhausted() {
		t.Error("QuotaExhausted true before any call")
	}

	got, err := e.Translate(context.Background(), "Over the limit", "es")
	if err != nil {
		t.Fatalf("Translate with fallback: %v", err)
	}
	if got != "Over the limit" {
		t.Errorf("expected fallback to original text, got %q", got)
	}
	if n := stub.callCount(); n != 1 {
		t.Errorf("expected no retries on quota error, got %d calls", n)
	}
	// Fallback masked the error from the caller; the engine still has to
	// report the exhausted quota for exit-status purposes.
	if !e.QuotaExhausted() {
		t.Error("QuotaExhausted false after quota error")
	}
}

func TestSetLocale_CancelsQueuedRequests(t *testing.T) {
	stub := echoStub("x: ")
	cfg := testConfig(t)
	cfg.BatchWindowMs = 1000
	cfg.Fallback = false
	e := newTestEngine(t, cfg, stub)

	texts := []string{"First pending line", "Second pending line", "Third pending line"}
	errs := make(chan error, len(texts))
	for _, text := range texts {
		go func(text string) {
			_, err := e.Translate(context.Background(), text, "es")
			errs <- err
		}(text)
	}

	// Let all three join the batch window before switching.
	time.Sleep(100 * time.Millisecond)
	if err := e.SetLocale("fr"); err != nil {
		t.Fatalf("SetLocale: %v", err)
	}

	for range texts {
		err := <-errs
		if !errors.Is(err, batch.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	}
	if n := stub.callCount(); n != 0 {
		t.Errorf("expected 0 network calls for cancelled window, got %d", n)
	}
	if got := e.CurrentLocale(); got != "fr" {
		t.Errorf("CurrentLocale = %q, want fr", got)
	}
}

func TestSetLocale_NotifiesSubscribers(t *testing.T) {
	e := newTestEngine(t, testConfig(t), echoStub(""))

	var mu sync.Mutex
	var notified []string
	e.OnLocaleChanged(func(locale string) {
		mu.Lock()
		notified = append(notified, locale)
		mu.Unlock()
	})

	if err := e.SetLocale("de"); err != nil {
		t.Fatalf("SetLocale: %v", err)
	}
	if err := e.SetLocale("de"); err != nil { // no-op switch
		t.Fatalf("repeat SetLocale: %v", err)
	}
	if err := e.SetLocale("not a locale"); err == nil {
		t.Error("expected invalid locale to be rejected")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 || notified[0] != "de" {
		t.Errorf("notified = %v, want [de]", notified)
	}
}

func TestTranslate_OfflineQueuesWithoutNetwork(t *testing.T) {
	stub := echoStub("es: ")
	cfg := testConfig(t)
	cfg.Fallback = false
	e := newTestEngine(t, cfg, stub)

	e.SetOnline(false)
	_, err := e.Translate(context.Background(), "While disconnected", "es")
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if n := e.OfflinePending(); n != 1 {
		t.Errorf("OfflinePending = %d, want 1", n)
	}
	if n := stub.callCount(); n != 0 {
		t.Errorf("expected no network calls while offline, got %d", n)
	}

	e.SetOnline(true)
	if n := e.OfflinePending(); n != 0 {
		t.Errorf("queue not cleared on reconnect: %d pending", n)
	}
}

func TestTranslate_OfflineFallsBackToOriginal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fallback = true
	e := newTestEngine(t, cfg, echoStub("es: "))

	e.SetOnline(false)
	got, err := e.Translate(context.Background(), "Still readable", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Still readable" {
		t.Errorf("got %q, want original text", got)
	}
}

func TestTranslate_SkipsNonTranslatableAndSourceLocale(t *testing.T) {
	stub := echoStub("es: ")
	e := newTestEngine(t, testConfig(t), stub)
	ctx := context.Background()

	for _, text := range []string{"12345", "MAX_RETRIES", "{{name}}"} {
		got, err := e.Translate(ctx, text, "es")
		if err != nil {
			t.Fatalf("Translate(%q): %v", text, err)
		}
		if got != text {
			t.Errorf("Translate(%q) = %q, want passthrough", text, got)
		}
	}

	got, err := e.Translate(ctx, "Hello world", "en")
	if err != nil || got != "Hello world" {
		t.Errorf("same-locale translate = %q, %v", got, err)
	}

	if n := stub.callCount(); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestTranslate_BundleTierWinsOverNetwork(t *testing.T) {
	b, err := bundle.Parse("es", []byte(`{
		"_meta": {"name": "Español", "sourceLanguage": "en"},
		"translations": {"Welcome back": "Bienvenido de nuevo"}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	stub := echoStub("net: ")
	e := newTestEngine(t, testConfig(t), stub, WithBundles(bundle.NewSet(b)))

	got, err := e.Translate(context.Background(), "Welcome back", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Bienvenido de nuevo" {
		t.Errorf("got %q, want bundle value", got)
	}
	if n := stub.callCount(); n != 0 {
		t.Errorf("expected bundle hit without network, got %d calls", n)
	}
}

func TestTranslate_ImportedBundleResolves(t *testing.T) {
	cfg := testConfig(t)
	store, err := cache.New(cfg.DBPath)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	// What `rustle bundle import` writes: a whole-locale record keyed by
	// fingerprint or source text.
	if err := store.PutBundle(context.Background(), "es", map[string]string{
		fingerprint.Fingerprint("Add to cart"): "Añadir al carrito",
		"Remove from cart":                     "Quitar del carrito",
	}); err != nil {
		t.Fatalf("PutBundle: %v", err)
	}

	stub := echoStub("net: ")
	e := newTestEngine(t, cfg, stub, WithStore(store))

	for text, want := range map[string]string{
		"Add to cart":      "Añadir al carrito",
		"Remove from cart": "Quitar del carrito",
	} {
		got, err := e.Translate(context.Background(), text, "es")
		if err != nil {
			t.Fatalf("Translate(%q): %v", text, err)
		}
		if got != want {
			t.Errorf("Translate(%q) = %q, want %q", text, got, want)
		}
	}
	if n := stub.callCount(); n != 0 {
		t.Errorf("expected imported bundle to resolve without network, got %d calls", n)
	}
}

func TestTranslate_PluginPanicDoesNotBreakPipeline(t *testing.T) {
	stub := echoStub("es: ")
	e := newTestEngine(t, testConfig(t), stub)

	var hookErrs []error
	if err := e.Use(plugin.Plugin{
		Name: "explosive",
		BeforeTranslate: func(text, locale string, opts plugin.Options) (string, bool) {
			panic("hook gone wrong")
		},
		OnError: func(err error, ctx plugin.ErrorContext) {
			hookErrs = append(hookErrs, err)
		},
	}); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if err := e.Use(plugin.Plugin{
		Name: "suffixer",
		BeforeTranslate: func(text, locale string, opts plugin.Options) (string, bool) {
			return text + ", please", true
		},
	}); err != nil {
		t.Fatalf("Use: %v", err)
	}

	got, err := e.Translate(context.Background(), "Open the door", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "es: Open the door, please" {
		t.Errorf("got %q", got)
	}
	seen := stub.seenTexts()
	if len(seen) != 1 || seen[0] != "Open the door, please" {
		t.Errorf("network saw %v, want the suffixed text", seen)
	}
	if len(hookErrs) != 1 {
		t.Errorf("expected the panicking plugin's OnError to fire once, got %d", len(hookErrs))
	}
}

func TestTranslate_PluginResolverShortCircuits(t *testing.T) {
	stub := echoStub("net: ")
	e := newTestEngine(t, testConfig(t), stub)

	if err := e.Use(plugin.Plugin{
		Name: "glossary",
		ResolveTranslation: func(text, locale string) (string, bool) {
			if text == "Sign in" && locale == "es" {
				return "Iniciar sesión", true
			}
			return "", false
		},
	}); err != nil {
		t.Fatalf("Use: %v", err)
	}

	got, err := e.Translate(context.Background(), "Sign in", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Iniciar sesión" {
		t.Errorf("got %q", got)
	}
	if n := stub.callCount(); n != 0 {
		t.Errorf("expected resolver to short-circuit the network, got %d calls", n)
	}
}

func TestTranslateBatch_WritesThrough(t *testing.T) {
	stub := echoStub("es: ")
	e := newTestEngine(t, testConfig(t), stub)
	ctx := context.Background()

	entries := []api.Entry{
		{ID: "a", Text: "Good morning"},
		{ID: "b", Text: "Good night"},
	}
	res, err := e.TranslateBatch(ctx, entries, "en", "es")
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if res.Translations["a"] != "es: Good morning" {
		t.Errorf("entry a = %q", res.Translations["a"])
	}

	// Singular Translate calls now hit the cache seeded by the batch.
	got, err := e.Translate(ctx, "Good night", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "es: Good night" {
		t.Errorf("got %q", got)
	}
	if n := stub.callCount(); n != 1 {
		t.Errorf("expected 1 network call total, got %d", n)
	}
}

func TestDiscovery_VersionBumpPreservesTranslations(t *testing.T) {
	e := newTestEngine(t, testConfig(t), echoStub("es: "))

	fp := e.NotifyContentDiscovered("Checkout now")
	if fp2 := e.NotifyContentDiscovered("Checkout now"); fp2 != fp {
		t.Fatalf("re-discovery changed fingerprint: %s vs %s", fp, fp2)
	}
	if e.DiscoveredCount() != 1 {
		t.Fatalf("DiscoveredCount = %d, want 1", e.DiscoveredCount())
	}

	en, ok := e.DiscoveredEntry(fp)
	if !ok || en.Status != StatusNew || en.Version != 1 {
		t.Fatalf("unexpected entry after discovery: %+v", en)
	}

	if _, err := e.Translate(context.Background(), "Checkout now", "es"); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	en, _ = e.DiscoveredEntry(fp)
	if en.Translations["es"] != "es: Checkout now" {
		t.Errorf("translation not recorded: %+v", en.Translations)
	}
	if en.Status != StatusTranslated {
		t.Errorf("Status = %s, want translated", en.Status)
	}

	// A whitespace edit keeps the fingerprint but bumps the version.
	if fp2 := e.NotifyContentDiscovered("Checkout  now"); fp2 != fp {
		t.Fatalf("normalized edit changed fingerprint")
	}
	en, _ = e.DiscoveredEntry(fp)
	if en.Version != 2 || en.Status != StatusUpdated {
		t.Errorf("expected version 2 / updated, got %d / %s", en.Version, en.Status)
	}
	if en.Translations["es"] != "es: Checkout now" {
		t.Errorf("version bump dropped translations: %+v", en.Translations)
	}
}

func TestDefault_ReturnsSingleInstance(t *testing.T) {
	cfg := testConfig(t)
	e1, err := Default(cfg, WithClient(echoStub("")))
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	e2, err := Default(cfg)
	if err != nil {
		t.Fatalf("second Default: %v", err)
	}
	if e1 != e2 {
		t.Error("Default returned distinct instances")
	}
}
