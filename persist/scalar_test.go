package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/storage"
)

func testLog() querylog.Logger {
	return querylog.New(querylog.Config{Level: querylog.LevelNone})
}

func waitHydrated(t *testing.T, wait func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wait(ctx); err != nil {
		t.Fatalf("WaitForHydration: %v", err)
	}
}

func TestScalarHydratesFromStorage(t *testing.T) {
	store := storage.NewMemory()
	b, _ := json.Marshal(42)
	if err := store.Set(context.Background(), "count", string(b)); err != nil {
		t.Fatal(err)
	}

	s := NewScalar(ScalarConfig[int]{Storage: store, Key: "count", Initial: 0, Log: testLog()})
	waitHydrated(t, s.WaitForHydration)
	if got := s.Value(); got != 42 {
		t.Fatalf("Value() = %d, want 42", got)
	}
}

func TestScalarSetPersistsAndWinsOverSlowHydrate(t *testing.T) {
	store := storage.NewMemory()
	b, _ := json.Marshal(1)
	store.Set(context.Background(), "count", string(b))

	s := NewScalar(ScalarConfig[int]{Storage: store, Key: "count", Initial: 0, Log: testLog()})
	s.Set(99)
	waitHydrated(t, s.WaitForHydration)

	if got := s.Value(); got != 99 {
		t.Fatalf("Value() = %d, want 99 (write should win over hydration)", got)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		raw, ok, _ := store.Get(context.Background(), "count")
		if ok && raw == `99` {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("save of 99 never reached storage")
}

func TestScalarDecodeFailureKeepsInitialAndReportsError(t *testing.T) {
	store := storage.NewMemory()
	store.Set(context.Background(), "count", "not-json")

	var reported error
	s := NewScalar(ScalarConfig[int]{
		Storage:      store,
		Key:          "count",
		Initial:      7,
		Log:          testLog(),
		ErrorHandler: func(err error) { reported = err },
	})
	waitHydrated(t, s.WaitForHydration)

	if got := s.Value(); got != 7 {
		t.Fatalf("Value() = %d, want 7 (initial preserved on decode failure)", got)
	}
	if reported == nil {
		t.Fatal("expected decode error to be reported")
	}
}

func TestScalarClearCacheDeletesAndSkipsLoad(t *testing.T) {
	store := storage.NewMemory()
	b, _ := json.Marshal(5)
	store.Set(context.Background(), "count", string(b))

	s := NewScalar(ScalarConfig[int]{Storage: store, Key: "count", Initial: 0, ClearCache: true, Log: testLog()})
	waitHydrated(t, s.WaitForHydration)

	if got := s.Value(); got != 0 {
		t.Fatalf("Value() = %d, want 0 (ClearCache skips load)", got)
	}
	if _, ok, _ := store.Get(context.Background(), "count"); ok {
		t.Fatal("expected key to be deleted from storage")
	}
}

type failingKV struct {
	storage.KV
	setErr error
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.KV.Set(ctx, key, value)
}

func TestScalarSaveFailureIsLoggedNotPropagated(t *testing.T) {
	kv := &failingKV{KV: storage.NewMemory(), setErr: errors.New("boom")}
	s := NewScalar(ScalarConfig[int]{Storage: kv, Key: "count", Initial: 0, Log: testLog()})
	s.Set(1)
	time.Sleep(20 * time.Millisecond)
	if got := s.Value(); got != 1 {
		t.Fatalf("Value() = %d, want 1 (save failure must not roll back the cell)", got)
	}
}
