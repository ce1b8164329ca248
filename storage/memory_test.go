package storage

import (
	"context"
	"testing"
)

func TestMemoryKVRoundtrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("Get(a) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	if err := m.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := m.Get(ctx, "a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true", v, ok)
	}
	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatal("expected a gone after Delete")
	}
}

func TestMemoryClearResetsRecordsToo(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "k", "v")
	_ = m.SetRecord(ctx, "s", "1", "x")

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("expected kv cleared")
	}
	if recs, _ := m.GetRecords(ctx, "s"); len(recs) != 0 {
		t.Fatal("expected records cleared")
	}
}

func TestMemoryRecordStoreBulkOps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.SetRecords(ctx, "posts", map[string]string{"1": "a", "2": "b", "3": "c"}); err != nil {
		t.Fatalf("SetRecords: %v", err)
	}
	recs, err := m.GetRecords(ctx, "posts")
	if err != nil || len(recs) != 3 {
		t.Fatalf("GetRecords = %v, %v; want 3 entries", recs, err)
	}

	if err := m.DeleteRecords(ctx, "posts", []string{"1", "2"}); err != nil {
		t.Fatalf("DeleteRecords: %v", err)
	}
	recs, _ = m.GetRecords(ctx, "posts")
	if len(recs) != 1 || recs["3"] != "c" {
		t.Fatalf("expected only record 3 left, got %v", recs)
	}
}
