package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/rustledotdev/rustle.dev-sub001/internal/fingerprint"
)

// EntryStatus tracks the lifecycle of a discovered source string.
type EntryStatus string

const (
	// StatusNew marks content seen for the first time.
	StatusNew EntryStatus = "new"
	// StatusTranslated marks content with at least one completed translation.
	StatusTranslated EntryStatus = "translated"
	// StatusUpdated marks content whose source text changed after it was
	// first discovered. Existing translations are kept until refreshed.
	StatusUpdated EntryStatus = "updated"
)

// TranslationEntry is the engine's record of one discovered source string.
type TranslationEntry struct {
	ID               string
	Fingerprint      string
	SourceText       string
	ContentHash      string
	Version          int
	Translations     map[string]string
	Status           EntryStatus
	LastTranslatedAt time.Time
}

// NotifyContentDiscovered registers source text with the discovery layer
// and returns its fingerprint. Re-discovering identical content is a
// no-op; content whose hash changed bumps the entry version and marks it
// updated while keeping earlier translations.
func (e *Engine) NotifyContentDiscovered(text string) string {
	fp := fingerprint.Fingerprint(text)
	ch := fingerprint.ContentHash(text)

	e.discMu.Lock()
	defer e.discMu.Unlock()

	en, ok := e.discovered[fp]
	if !ok {
		e.discovered[fp] = &TranslationEntry{
			ID:           uuid.NewString(),
			Fingerprint:  fp,
			SourceText:   text,
			ContentHash:  ch,
			Version:      1,
			Translations: make(map[string]string),
			Status:       StatusNew,
		}
		return fp
	}

	if en.ContentHash != ch {
		en.SourceText = text
		en.ContentHash = ch
		en.Version++
		en.Status = StatusUpdated
	}
	return fp
}

// DiscoveredEntry returns a copy of the entry for fp, if known.
func (e *Engine) DiscoveredEntry(fp string) (TranslationEntry, bool) {
	e.discMu.Lock()
	defer e.discMu.Unlock()

	en, ok := e.discovered[fp]
	if !ok {
		return TranslationEntry{}, false
	}
	out := *en
	out.Translations = make(map[string]string, len(en.Translations))
	for k, v := range en.Translations {
		out.Translations[k] = v
	}
	return out, true
}

// DiscoveredCount returns the number of registered source strings.
func (e *Engine) DiscoveredCount() int {
	e.discMu.Lock()
	defer e.discMu.Unlock()
	return len(e.discovered)
}

// recordTranslated attaches a completed translation to the discovery
// entry for text, when one exists.
func (e *Engine) recordTranslated(text, locale, value string) {
	fp := fingerprint.Fingerprint(text)

	e.discMu.Lock()
	defer e.discMu.Unlock()

	en, ok := e.discovered[fp]
	if !ok {
		return
	}
	en.Translations[locale] = value
	en.Status = StatusTranslated
	en.LastTranslatedAt = time.Now()
}
