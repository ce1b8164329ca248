// Package query implements the query cache and mutation engine (components
// D through H): a keyed, deduplicated, background-refreshing async result
// cache, one-shot mutations, multi-page infinite queries, and the typed
// error/retry policy they all share.
//
// It generalizes the teacher's state.QueryCache (state/querycache.go):
// same entry-table/dedup/staleness shape, but keyed by a structured,
// prefix-matchable Key instead of a bare string, with cancellation,
// optimistic writes, garbage collection, and a persisted cache file the
// teacher's version does not have.
package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key is a finite ordered sequence of primitive tokens identifying a cached
// result. Tokens may be strings, numbers, booleans, or nested []any
// sequences and map[string]any mappings; equality is structural.
type Key []any

// Of builds a Key from its tokens, e.g. Of("posts", "detail", 7).
func Of(tokens ...any) Key { return Key(tokens) }

// Fingerprint returns a stable digest of the key's canonical serialization,
// used as the in-memory entry table's index and the persisted cache file's
// record key (§3 "canonical serialization ... yields a string fingerprint").
func (k Key) Fingerprint() string {
	canon := canonicalize(k)
	sum := xxhash.Sum64String(canon)
	return fmt.Sprintf("%016x", sum)
}

// String returns the canonical serialization (useful for logging).
func (k Key) String() string { return canonicalize(k) }

// HasPrefix reports whether k starts with prefix, token-wise (§3
// "Prefix-match ... key A is a prefix of B iff B starts with A token-wise").
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, tok := range prefix {
		if !tokenEqual(tok, k[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural, deep equality between k and other.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !tokenEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

func tokenEqual(a, b any) bool {
	return canonicalizeToken(a) == canonicalizeToken(b)
}

// canonicalize produces a stable string form of a key: sequences keep their
// token order, embedded mappings have their keys sorted, so structurally
// identical keys always serialize identically regardless of construction
// order.
func canonicalize(k Key) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, tok := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(canonicalizeToken(tok))
	}
	b.WriteByte(']')
	return b.String()
}

func canonicalizeToken(tok any) string {
	switch v := tok.(type) {
	case Key:
		return canonicalize(v)
	case []any:
		return canonicalize(Key(v))
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(jsonQuote(k))
			b.WriteByte(':')
			b.WriteString(canonicalizeToken(v[k]))
		}
		b.WriteByte('}')
		return b.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
