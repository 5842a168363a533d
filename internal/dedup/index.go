// Package dedup tracks which tracks have already been identified within a
// single session, so a track recognized on several capture cycles surfaces
// (and notifies) only once. The index is session-scoped and never persisted:
// the same track played in two different sessions is two distinct events.
package dedup

import (
	"strings"
	"unicode"
)

type Index struct {
	seen map[string]bool
	keys []string
}

func New() *Index {
	return &Index{seen: make(map[string]bool)}
}

// IsNew reports whether the title has not been seen in this session, and on
// true permanently marks it as seen. Two titles count as the same track when
// their normalized forms are equal or one is a substring of the other, which
// absorbs truncated or "(extended mix)" style variants coming back from
// different recognition passes.
func (ix *Index) IsNew(title string) bool {
	key := Normalize(title)
	if key == "" {
		// A title that normalizes to nothing cannot identify a track; treating
		// it as new would let it surface and notify on every cycle.
		return false
	}
	if ix.seen[key] {
		return false
	}
	for _, k := range ix.keys {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return false
		}
	}
	ix.seen[key] = true
	ix.keys = append(ix.keys, key)
	return true
}

// Seed marks titles as already seen without reporting novelty. Reconciliation
// uses it to load the tracks a session already notified live.
func (ix *Index) Seed(titles ...string) {
	for _, t := range titles {
		key := Normalize(t)
		if key == "" || ix.seen[key] {
			continue
		}
		ix.seen[key] = true
		ix.keys = append(ix.keys, key)
	}
}

// Normalize lowercases, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
