package query

import "testing"

func TestKeyFingerprintStableAcrossEquivalentConstruction(t *testing.T) {
	a := Of("posts", "detail", 7)
	b := Of("posts", "detail", 7)
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints differ for structurally equal keys: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
}

func TestKeyFingerprintSortsEmbeddedMapKeys(t *testing.T) {
	a := Of("search", map[string]any{"b": 2, "a": 1})
	b := Of("search", map[string]any{"a": 1, "b": 2})
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("map key order should not affect fingerprint: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
}

func TestKeyHasPrefix(t *testing.T) {
	posts := Of("posts")
	detail := Of("posts", "detail", 7)
	users := Of("users")

	if !detail.HasPrefix(posts) {
		t.Fatal("expected detail to have posts as prefix")
	}
	if detail.HasPrefix(users) {
		t.Fatal("did not expect detail to have users as prefix")
	}
	if !posts.HasPrefix(Of()) {
		t.Fatal("every key has the empty key as a prefix")
	}
	if posts.HasPrefix(detail) {
		t.Fatal("a shorter key cannot have a longer key as prefix")
	}
}

func TestKeyEqual(t *testing.T) {
	a := Of("posts", 1, true)
	b := Of("posts", 1, true)
	c := Of("posts", 2, true)
	if !a.Equal(b) {
		t.Fatal("expected equal keys to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different keys to compare unequal")
	}
}
