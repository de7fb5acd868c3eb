// Package detector wraps lingua-go language detection.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Detector identifies the language of a text. Building one is expensive;
// construct once and reuse.
type Detector struct {
	detector lingua.LanguageDetector
}

// New creates a Detector. When locale codes are given, detection is
// restricted to those languages, which is faster and less ambiguous than
// considering everything lingua knows; unrecognized codes are ignored.
// With fewer than two usable codes, all languages are considered.
func New(localeCodes ...string) *Detector {
	var det lingua.LanguageDetector
	if langs := languagesFor(localeCodes); len(langs) >= 2 {
		det = lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			Build()
	} else {
		det = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build()
	}
	return &Detector{detector: det}
}

func languagesFor(localeCodes []string) []lingua.Language {
	byISO := make(map[string]lingua.Language)
	for _, lang := range lingua.AllLanguages() {
		byISO[lang.IsoCode639_1().String()] = lang
	}

	var langs []lingua.Language
	seen := make(map[lingua.Language]bool)
	for _, code := range localeCodes {
		// "pt-BR" → "pt"
		if i := strings.IndexByte(code, '-'); i > 0 {
			code = code[:i]
		}
		lang, ok := byISO[strings.ToUpper(strings.TrimSpace(code))]
		if ok && !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	return langs
}

// Detect returns the detected language of text.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the ISO 639-1 code of the detected language,
// lowercased to match locale notation ("es", "pt").
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
