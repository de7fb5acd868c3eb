// Package dedup collapses concurrent identical translation requests.
//
// For N callers asking for the same (text, source, target) before the first
// settles, exactly one underlying fetch runs; all N share its outcome. The
// registration happens before any network work begins, and the key is
// released once the shared call settles, success or failure.
package dedup

import (
	"strings"

	"golang.org/x/sync/singleflight"
)

// Key builds the registry key for a translation request.
func Key(text, srcLocale, tgtLocale string) string {
	return strings.Join([]string{text, srcLocale, tgtLocale}, "|")
}

// Group deduplicates in-flight translation fetches by key.
// The zero value is ready to use.
type Group struct {
	sf singleflight.Group
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for and returns that call's result. shared reports whether
// the result was delivered to more than one caller.
func (g *Group) Do(key string, fn func() (string, error)) (value string, shared bool, err error) {
	v, err, shared := g.sf.Do(key, func() (any, error) {
		return fn()
	})
	if v == nil {
		return "", shared, err
	}
	return v.(string), shared, err
}
