// Package bundle loads and serves static locale bundles.
//
// A bundle is a precomputed translation map for one target locale, produced
// by the extraction pipeline and shipped as JSON:
//
//	{
//	    "_meta": { "name": "Español", "sourceLanguage": "en" },
//	    "translations": {
//	        "fp_1a2b3c4d": "Hola mundo",
//	        "Goodbye": "Adiós"
//	    }
//	}
//
// Keys are fingerprints or natural source text. Bundles are immutable at
// runtime: the engine only ever reads them.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustledotdev/rustle.dev-sub001/internal/fingerprint"
)

// Meta holds the bundle metadata from the _meta field.
type Meta struct {
	Name           string `json:"name"`
	SourceLanguage string `json:"sourceLanguage"`
}

// Bundle is a parsed locale bundle for one target locale.
type Bundle struct {
	Locale       string
	Meta         Meta
	translations map[string]string
}

// Parse parses bundle JSON data for the given locale.
func Parse(locale string, data []byte) (*Bundle, error) {
	var raw struct {
		Meta         Meta              `json:"_meta"`
		Translations map[string]string `json:"translations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing bundle for %s: %w", locale, err)
	}
	if raw.Translations == nil {
		raw.Translations = make(map[string]string)
	}
	return &Bundle{Locale: locale, Meta: raw.Meta, translations: raw.Translations}, nil
}

// ParseFile reads and parses a bundle file; the locale is the file's base
// name without extension ("es.json" → "es").
func ParseFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	locale := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(locale, data)
}

// Len returns the number of entries.
func (b *Bundle) Len() int { return len(b.translations) }

// Translations returns a copy of the bundle's translation map.
func (b *Bundle) Translations() map[string]string {
	out := make(map[string]string, len(b.translations))
	for k, v := range b.translations {
		out[k] = v
	}
	return out
}

// Lookup resolves text against the bundle. Resolution order: exact match on
// the text's fingerprint, exact match on the source text itself, then a
// reverse value match (some callers hold the already-translated string and
// ask again after a re-render).
func (b *Bundle) Lookup(text string) (string, bool) {
	if v, ok := b.translations[fingerprint.Fingerprint(text)]; ok {
		return v, true
	}
	if v, ok := b.translations[text]; ok {
		return v, true
	}
	for _, v := range b.translations {
		if v == text {
			return text, true
		}
	}
	return "", false
}

// Set is an immutable collection of bundles keyed by locale.
type Set struct {
	bundles map[string]*Bundle
}

// NewSet builds a Set from parsed bundles.
func NewSet(bundles ...*Bundle) *Set {
	m := make(map[string]*Bundle, len(bundles))
	for _, b := range bundles {
		m[b.Locale] = b
	}
	return &Set{bundles: m}
}

// LoadDir loads every *.json file in dir as a locale bundle. A missing
// directory yields an empty set, not an error: shipping without static
// bundles is a supported configuration.
func LoadDir(dir string) (*Set, error) {
	s := &Set{bundles: make(map[string]*Bundle)}
	if dir == "" {
		return s, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bundle dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := ParseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		s.bundles[b.Locale] = b
	}
	return s, nil
}

// Lookup resolves text for a target locale across the set.
func (s *Set) Lookup(text, locale string) (string, bool) {
	b, ok := s.bundles[locale]
	if !ok {
		return "", false
	}
	return b.Lookup(text)
}

// Locales returns the locales with a loaded bundle.
func (s *Set) Locales() []string {
	out := make([]string, 0, len(s.bundles))
	for l := range s.bundles {
		out = append(out, l)
	}
	return out
}

// Get returns the bundle for locale, if loaded.
func (s *Set) Get(locale string) (*Bundle, bool) {
	b, ok := s.bundles[locale]
	return b, ok
}
