// Package validator checks that a returned translation is actually written
// in the requested target locale.
//
// The check is advisory: the engine logs and counts mismatches rather than
// rejecting the translation, since detection on short UI strings is noisy.
package validator

import (
	"fmt"
	"strings"

	"github.com/rustledotdev/rustle.dev-sub001/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt
// detection; shorter texts produce unreliable results and pass unchecked.
const minValidationLength = 20

// Validator validates translation results against a target locale.
// The underlying detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator whose detector considers only the given locales.
func New(locales ...string) *Validator {
	return &Validator{det: detector.New(locales...)}
}

// Check returns nil when translated plausibly matches tgtLocale. Texts too
// short to detect and texts of undeterminable language pass. A definite
// mismatch returns an error naming both codes.
func (v *Validator) Check(translated, tgtLocale string) error {
	if tgtLocale == "" {
		return nil
	}

	text := strings.TrimSpace(translated)
	if text == "" {
		return fmt.Errorf("translation is empty")
	}
	if len([]rune(text)) < minValidationLength {
		return nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}

	// "pt-BR" validates against "pt".
	want := tgtLocale
	if i := strings.IndexByte(want, '-'); i > 0 {
		want = want[:i]
	}
	if !strings.EqualFold(detected, want) {
		return fmt.Errorf("expected %s but detected %s", want, detected)
	}
	return nil
}
