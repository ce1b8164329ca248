package persist

import "sync"

// declaredKeys tracks every storage key a Scalar/Map/List has been declared
// against in this process, so a second cell accidentally declared against
// the same key gets a warning instead of silently racing the first one's
// saves (§9 open question: two persisted cells sharing a storage key).
// There is no cross-process coordination; this only catches the common
// mistake of declaring the same cell twice, or copy-pasting a Key literal.
var declaredKeys sync.Map

func warnDuplicateKey(log interface {
	Warn(msg string, fields map[string]any)
}, key string) {
	if _, loaded := declaredKeys.LoadOrStore(key, true); loaded {
		log.Warn("persist: storage key already in use by another cell", map[string]any{"key": key})
	}
}
