package persist

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dougbarrett/reactivequery/storage"
)

func TestMapHydratesFromStorage(t *testing.T) {
	store := storage.NewMemory()
	b, _ := json.Marshal(map[string]int{"a": 1, "b": 2})
	store.Set(context.Background(), "counts", string(b))

	m := NewMap(MapConfig[string, int]{Storage: store, Key: "counts", Log: testLog()})
	waitHydrated(t, m.WaitForHydration)
	all := m.All()
	if all["a"] != 1 || all["b"] != 2 || len(all) != 2 {
		t.Fatalf("All() = %v, want {a:1 b:2}", all)
	}
}

func TestMapSetDeleteClearPersist(t *testing.T) {
	store := storage.NewMemory()
	m := NewMap(MapConfig[string, int]{Storage: store, Key: "counts", Log: testLog()})

	m.Set("a", 1)
	m.Set("b", 2)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v,%v want 1,true", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected a to be deleted")
	}

	waitForSave(t, func() bool {
		raw, ok, _ := store.Get(context.Background(), "counts")
		if !ok {
			return false
		}
		var decoded map[string]int
		json.Unmarshal([]byte(raw), &decoded)
		return len(decoded) == 1 && decoded["b"] == 2
	})

	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", m.Len())
	}
}

func TestMapSetClonesRatherThanAliasingInitial(t *testing.T) {
	store := storage.NewMemory()
	initial := map[string]int{"a": 1}
	m := NewMap(MapConfig[string, int]{Storage: store, Key: "counts", Initial: initial, Log: testLog()})

	m.Set("a", 99)
	if initial["a"] != 1 {
		t.Fatalf("caller's initial map mutated: got %d, want 1", initial["a"])
	}
}

func waitForSave(t *testing.T, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("save did not reach storage in time")
}
