package persist

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dougbarrett/reactivequery/storage"
)

type listItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestListWholeBlobHydrateAndMutate(t *testing.T) {
	store := storage.NewMemory()
	l := NewList(ListConfig[int]{Storage: store, Key: "nums", Log: testLog()})

	l.Append(1)
	l.Append(2)
	l.Prepend(0)
	if got := l.All(); len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("All() = %v, want [0 1 2]", got)
	}

	l.Replace(1, 10)
	if got := l.All(); got[1] != 10 {
		t.Fatalf("Replace did not apply: %v", got)
	}

	l.RemoveAt(0)
	if got := l.All(); len(got) != 2 || got[0] != 10 {
		t.Fatalf("RemoveAt did not apply: %v", got)
	}

	waitForSave(t, func() bool {
		raw, ok, _ := store.Get(context.Background(), "nums")
		if !ok {
			return false
		}
		var decoded []int
		json.Unmarshal([]byte(raw), &decoded)
		return len(decoded) == 2 && decoded[0] == 10
	})
}

func TestListGranularPersistsPerRecordAndHydrates(t *testing.T) {
	store := storage.NewMemory()
	cfg := ListConfig[listItem]{
		Storage:   store,
		Key:       "items",
		Granular:  true,
		StoreName: "items",
		ItemID:    func(i listItem) string { return i.ID },
		Log:       testLog(),
	}

	l := NewList(cfg)
	l.Append(listItem{ID: "a", Name: "Alpha"})
	l.Append(listItem{ID: "b", Name: "Beta"})

	waitForSave(t, func() bool {
		recs, _ := store.GetRecords(context.Background(), "items")
		return len(recs) == 2
	})

	l2 := NewList(cfg)
	waitHydrated(t, l2.WaitForHydration)
	all := l2.All()
	if len(all) != 2 {
		t.Fatalf("All() = %v, want 2 items hydrated from records", all)
	}

	l.RemoveAt(0)
	waitForSave(t, func() bool {
		recs, _ := store.GetRecords(context.Background(), "items")
		return len(recs) == 1
	})
}

func TestListClearRemovesAllGranularRecords(t *testing.T) {
	store := storage.NewMemory()
	l := NewList(ListConfig[listItem]{
		Storage:   store,
		Key:       "items",
		Granular:  true,
		StoreName: "items",
		ItemID:    func(i listItem) string { return i.ID },
		Log:       testLog(),
	})
	l.Append(listItem{ID: "a", Name: "Alpha"})
	l.Append(listItem{ID: "b", Name: "Beta"})
	waitForSave(t, func() bool {
		recs, _ := store.GetRecords(context.Background(), "items")
		return len(recs) == 2
	})

	l.Clear()
	waitForSave(t, func() bool {
		recs, _ := store.GetRecords(context.Background(), "items")
		return len(recs) == 0
	})
	if l.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", l.Len())
	}
}

func TestListWaitForHydrationDoesNotDeadlockOnBadJSON(t *testing.T) {
	store := storage.NewMemory()
	store.Set(context.Background(), "nums", "not-json")

	l := NewList(ListConfig[int]{Storage: store, Key: "nums", Log: testLog()})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.WaitForHydration(ctx); err != nil {
		t.Fatalf("WaitForHydration: %v", err)
	}
	if got := l.All(); len(got) != 0 {
		t.Fatalf("All() = %v, want empty on decode failure", got)
	}
}
