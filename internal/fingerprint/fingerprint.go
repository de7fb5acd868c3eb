// Package fingerprint derives stable content keys from source text.
//
// All caching, deduplication, and bundle addressing is keyed on the output
// of this package, so every function here is pure and deterministic: the
// same input must produce the same key across sessions and processes.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Digits, whitespace, and punctuation only — nothing worth translating.
	nonTextRe = regexp.MustCompile(`^[\d\s\p{P}\p{S}]+$`)

	// SCREAMING_SNAKE identifiers (API_KEY, HTTP_TIMEOUT, ...).
	identifierRe = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// Normalize canonicalizes text for key derivation: Unicode NFC, trimmed,
// lowercased, with internal whitespace runs collapsed to a single space.
// Visually identical strings normalize to the same value.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.TrimSpace(text)
	text = strings.ToLower(text)
	return whitespaceRe.ReplaceAllString(text, " ")
}

// Fingerprint returns the stable content key for text. Identical normalized
// text yields an identical fingerprint; collisions of the 32-bit hash are
// tolerated and treated as the same translatable unit.
func Fingerprint(text string) string {
	return "fp_" + hash32(Normalize(text))
}

// ContentHash returns a change-detection hash over the raw text. Unlike
// Fingerprint it skips normalization: two texts with the same fingerprint
// but different content hashes were edited in ways the fingerprint
// deliberately ignores, which still warrants a version bump.
func ContentHash(text string) string {
	return hash32(text)
}

// IsTranslatable reports whether text is worth sending to translation.
// It rejects near-empty strings, digit/punctuation runs, SCREAMING_SNAKE
// identifiers, URLs, and strings carrying template placeholder markers.
func IsTranslatable(text string) bool {
	trimmed := strings.TrimSpace(text)
	switch {
	case len([]rune(trimmed)) < 2:
		return false
	case nonTextRe.MatchString(trimmed):
		return false
	case identifierRe.MatchString(trimmed):
		return false
	case strings.HasPrefix(strings.ToLower(trimmed), "http"):
		return false
	case strings.Contains(trimmed, "{{") || strings.Contains(trimmed, "${"):
		return false
	}
	return true
}

// hash32 is the 32-bit FNV-1a digest as 8 hex characters. The width is part
// of the persisted key format; widening it would orphan every cached entry
// and shipped bundle.
func hash32(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}
