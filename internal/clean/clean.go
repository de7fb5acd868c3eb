// Package clean normalizes raw strings returned by the batch-translate API.
//
// Model-backed translation endpoints routinely wrap their output in quotes,
// prepend a "Translation:" preamble, or add markdown emphasis. Clean strips
// these artifacts in phases and is idempotent: cleaning an already-clean
// string is a no-op.
package clean

import (
	"regexp"
	"strings"
)

// Clean removes translator artifacts from text in three phases and returns
// the trimmed result:
//  1. Preamble removal ("Translation:", "Here is the translation:", ...)
//  2. Markdown emphasis and backtick unwrapping
//  3. Quote wrapping removal
//
// Artifacts nest: unwrapping quotes can expose a preamble, and a preamble
// can hide markdown wrapping. The phases repeat until the string stops
// changing so one call reaches the fixed point.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	for {
		prev := text
		text = removePreambles(text)
		text = removeMarkdownWrapping(text)
		text = removeQuoteWrapping(text)
		text = strings.TrimSpace(text)
		if text == prev {
			return text
		}
	}
}

// --- Phase 1: translator preambles ---

// preamblePatterns match introductory phrases prepended to the translated
// text. Each pattern is anchored to the start of the string and requires a
// colon to reduce false positives on legitimate content. Localized variants
// cover the languages the remote endpoint itself answers in.
var preamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? translation\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?translation\s*:`),
	regexp.MustCompile(`(?i)^translated text\s*:`),
	regexp.MustCompile(`(?i)^traducción\s*:`),
	regexp.MustCompile(`(?i)^traduction\s*:`),
	regexp.MustCompile(`(?i)^übersetzung\s*:`),
	regexp.MustCompile(`(?i)^tradução\s*:`),
	regexp.MustCompile(`(?i)^переклад\s*:`),
	regexp.MustCompile(`(?i)^перевод\s*:`),
}

func removePreambles(text string) string {
	for _, re := range preamblePatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 2: markdown wrapping ---

// Only full-string wrapping is an artifact; emphasis inside a longer
// sentence is treated as content and left alone.
var markdownWrappers = []struct{ open, close string }{
	{"```", "```"},
	{"**", "**"},
	{"__", "__"},
	{"*", "*"},
	{"_", "_"},
	{"`", "`"},
}

func removeMarkdownWrapping(text string) string {
	for _, w := range markdownWrappers {
		if len(text) > len(w.open)+len(w.close) &&
			strings.HasPrefix(text, w.open) && strings.HasSuffix(text, w.close) {
			inner := text[len(w.open) : len(text)-len(w.close)]
			// Reject asymmetric cases like "*bold* and *more*" where the
			// inner text still begins or ends mid-marker.
			if !strings.Contains(inner, w.open) || w.open == "```" {
				return strings.TrimSpace(inner)
			}
		}
	}
	return text
}

// --- Phase 3: quote wrapping ---

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them. Supported pairs:
//
//	"…"  '…'  «…»  “…”  ‘…’
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		inner := string(runes[1 : n-1])
		// A quote character inside means the outer pair is likely content
		// ("he said "hi"" style); keep it.
		if !strings.ContainsRune(inner, first) {
			return strings.TrimSpace(inner)
		}
	}
	return text
}
