package persist

import (
	"context"
	"encoding/json"

	"github.com/dougbarrett/reactivequery/cell"
	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/storage"
)

// MapConfig configures a Map cell.
type MapConfig[K ~string, V any] struct {
	Storage storage.KV
	Key     string
	Initial map[K]V
	Log     querylog.Logger
}

// Map is a persisted map cell: every mutating operation saves the whole map
// as one JSON document (see List for the granular, record-store-backed
// alternative).
type Map[K ~string, V any] struct {
	cell     *cell.Cell[map[K]V]
	storage  storage.KV
	key      string
	log      querylog.Logger
	hydrator *hydrator
	save     *saver
}

// NewMap declares a persisted map cell. Hydration does not start until the
// first read.
func NewMap[K ~string, V any](cfg MapConfig[K, V]) *Map[K, V] {
	initial := cfg.Initial
	if initial == nil {
		initial = make(map[K]V)
	}

	m := &Map[K, V]{
		cell:     cell.New(cloneMap(initial)),
		storage:  cfg.Storage,
		key:      cfg.Key,
		log:      cfg.Log,
		hydrator: newHydrator(),
	}
	m.save = newSaver(cfg.Key, cfg.Log, func() (string, error) {
		// Peek: this runs on the saver's own goroutine, off whatever one is
		// mid-Effect-recomputation when the save fires.
		b, err := json.Marshal(m.cell.Peek())
		return string(b), err
	}, func(ctx context.Context, value string) error {
		return m.storage.Set(ctx, m.key, value)
	})
	warnDuplicateKey(m.log, cfg.Key)
	return m
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *Map[K, V]) hydrate() {
	ctx := context.Background()
	raw, ok, err := m.storage.Get(ctx, m.key)
	if err != nil {
		m.log.Error("persist: map hydration failed", err, map[string]any{"key": m.key})
		return
	}
	if !ok || m.hydrator.wasWrittenFirst() {
		return
	}
	var decoded map[K]V
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		m.log.Error("persist: map decode failed", err, map[string]any{"key": m.key})
		return
	}
	if m.hydrator.wasWrittenFirst() {
		return
	}
	m.cell.Set(decoded)
}

func (m *Map[K, V]) ensureHydrated() {
	m.hydrator.ensure(m.hydrate)
}

// All returns a copy of the current map, triggering hydration on first call.
func (m *Map[K, V]) All() map[K]V {
	m.ensureHydrated()
	return cloneMap(m.cell.Get())
}

// Get returns the value for k, triggering hydration on first call.
func (m *Map[K, V]) Get(k K) (V, bool) {
	m.ensureHydrated()
	v, ok := m.cell.Get()[k]
	return v, ok
}

// Len returns the number of entries, triggering hydration on first call.
func (m *Map[K, V]) Len() int {
	m.ensureHydrated()
	return len(m.cell.Get())
}

// Set inserts or overwrites the value for k and queues a save.
func (m *Map[K, V]) Set(k K, v V) {
	m.hydrator.markWritten()
	m.cell.Mutate(func(mp *map[K]V) {
		cp := cloneMap(*mp)
		cp[k] = v
		*mp = cp
	})
	m.save.enqueue()
}

// Delete removes k and queues a save.
func (m *Map[K, V]) Delete(k K) {
	m.hydrator.markWritten()
	m.cell.Mutate(func(mp *map[K]V) {
		cp := cloneMap(*mp)
		delete(cp, k)
		*mp = cp
	})
	m.save.enqueue()
}

// Clear empties the map and queues a save.
func (m *Map[K, V]) Clear() {
	m.hydrator.markWritten()
	m.cell.Mutate(func(mp *map[K]V) { *mp = make(map[K]V) })
	m.save.enqueue()
}

// Subscribe registers fn to run on every mutation.
func (m *Map[K, V]) Subscribe(fn func(map[K]V)) func() {
	return m.cell.Subscribe(fn)
}

// WaitForHydration triggers hydration if needed and blocks until it
// completes.
func (m *Map[K, V]) WaitForHydration(ctx context.Context) error {
	m.ensureHydrated()
	return m.hydrator.wait(ctx)
}
