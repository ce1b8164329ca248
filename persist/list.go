package persist

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dougbarrett/reactivequery/cell"
	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/storage"
)

// ListConfig configures a List cell.
type ListConfig[T any] struct {
	Storage storage.Storage
	Key     string
	Initial []T

	// Granular, if true, persists each item as its own record via the
	// storage record-store API instead of one JSON blob for the whole
	// list (§6, "persisted cell layout"). ItemID is required in this mode.
	Granular  bool
	StoreName string
	ItemID    func(T) string

	FromJSON func([]byte) (T, error)
	ToJSON   func(T) ([]byte, error)

	Log querylog.Logger
}

// List is a persisted list cell supporting the usual mutating slice
// operations, saving either as one JSON document or, with Granular set, as
// individually addressable records.
type List[T any] struct {
	cell      *cell.Cell[[]T]
	storage   storage.Storage
	key       string
	storeName string
	granular  bool
	itemID    func(T) string
	fromJSON  func([]byte) (T, error)
	toJSON    func(T) ([]byte, error)
	log       querylog.Logger
	hydrator  *hydrator

	wholeSave *saver // non-granular mode only

	recMu      sync.Mutex
	recordSave map[string]*saver // granular mode only, keyed by item ID
}

// NewList declares a persisted list cell. Hydration does not start until
// the first read.
func NewList[T any](cfg ListConfig[T]) *List[T] {
	fromJSON := cfg.FromJSON
	toJSON := cfg.ToJSON
	if fromJSON == nil {
		fromJSON = func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		}
	}
	if toJSON == nil {
		toJSON = func(v T) ([]byte, error) { return json.Marshal(v) }
	}
	storeName := cfg.StoreName
	if storeName == "" {
		storeName = cfg.Key
	}

	l := &List[T]{
		cell:      cell.New(append([]T(nil), cfg.Initial...)),
		storage:   cfg.Storage,
		key:       cfg.Key,
		storeName: storeName,
		granular:  cfg.Granular,
		itemID:    cfg.ItemID,
		fromJSON:  fromJSON,
		toJSON:    toJSON,
		log:       cfg.Log,
		hydrator:  newHydrator(),
	}
	if !l.granular {
		l.wholeSave = newSaver(cfg.Key, cfg.Log, func() (string, error) {
			// Peek: encode runs on the saver's own goroutine, not the one
			// that called Append/Replace/etc. and triggered this save.
			items := l.cell.Peek()
			raw := make([]json.RawMessage, 0, len(items))
			for _, item := range items {
				b, err := l.toJSON(item)
				if err != nil {
					return "", err
				}
				raw = append(raw, b)
			}
			b, err := json.Marshal(raw)
			return string(b), err
		}, func(ctx context.Context, value string) error {
			return l.storage.Set(ctx, l.key, value)
		})
	} else {
		l.recordSave = make(map[string]*saver)
	}
	if l.granular {
		warnDuplicateKey(l.log, "records:"+storeName)
	} else {
		warnDuplicateKey(l.log, cfg.Key)
	}
	return l
}

func (l *List[T]) hydrate() {
	ctx := context.Background()
	if l.granular {
		l.hydrateGranular(ctx)
		return
	}

	raw, ok, err := l.storage.Get(ctx, l.key)
	if err != nil {
		l.log.Error("persist: list hydration failed", err, map[string]any{"key": l.key})
		return
	}
	if !ok || l.hydrator.wasWrittenFirst() {
		return
	}
	var rawItems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rawItems); err != nil {
		l.log.Error("persist: list decode failed", err, map[string]any{"key": l.key})
		return
	}
	items := make([]T, 0, len(rawItems))
	for _, item := range rawItems {
		v, err := l.fromJSON(item)
		if err != nil {
			l.log.Error("persist: list item decode failed", err, map[string]any{"key": l.key})
			continue
		}
		items = append(items, v)
	}
	if l.hydrator.wasWrittenFirst() {
		return
	}
	l.cell.Set(items)
}

func (l *List[T]) hydrateGranular(ctx context.Context) {
	recs, err := l.storage.GetRecords(ctx, l.storeName)
	if err != nil {
		l.log.Error("persist: list granular hydration failed", err, map[string]any{"store": l.storeName})
		return
	}
	if l.hydrator.wasWrittenFirst() {
		return
	}
	items := make([]T, 0, len(recs))
	for id, raw := range recs {
		v, err := l.fromJSON([]byte(raw))
		if err != nil {
			l.log.Error("persist: list granular item decode failed", err, map[string]any{"store": l.storeName, "id": id})
			continue
		}
		items = append(items, v)
	}
	if l.hydrator.wasWrittenFirst() {
		return
	}
	l.cell.Set(items)
}

func (l *List[T]) ensureHydrated() {
	l.hydrator.ensure(l.hydrate)
}

// All returns a copy of the current items, triggering hydration on first
// call.
func (l *List[T]) All() []T {
	l.ensureHydrated()
	items := l.cell.Get()
	return append([]T(nil), items...)
}

// Len returns the number of items, triggering hydration on first call.
func (l *List[T]) Len() int {
	l.ensureHydrated()
	return len(l.cell.Get())
}

// Append adds v to the end of the list and persists it.
func (l *List[T]) Append(v T) {
	l.hydrator.markWritten()
	l.cell.Mutate(func(items *[]T) {
		*items = append(append([]T(nil), *items...), v)
	})
	l.persistItem(v)
	l.saveWhole()
}

// Prepend adds v to the front of the list and persists it.
func (l *List[T]) Prepend(v T) {
	l.hydrator.markWritten()
	l.cell.Mutate(func(items *[]T) {
		next := make([]T, 0, len(*items)+1)
		next = append(next, v)
		next = append(next, *items...)
		*items = next
	})
	l.persistItem(v)
	l.saveWhole()
}

// RemoveAt removes the item at index i, if in range, and persists the
// change.
func (l *List[T]) RemoveAt(i int) {
	l.hydrator.markWritten()
	var removed T
	var found bool
	l.cell.Mutate(func(items *[]T) {
		if i < 0 || i >= len(*items) {
			return
		}
		removed = (*items)[i]
		found = true
		next := append([]T(nil), (*items)[:i]...)
		*items = append(next, (*items)[i+1:]...)
	})
	if found && l.granular {
		l.deleteItem(removed)
	}
	l.saveWhole()
}

// Replace overwrites the item at index i, if in range, and persists the
// change.
func (l *List[T]) Replace(i int, v T) {
	l.hydrator.markWritten()
	l.cell.Mutate(func(items *[]T) {
		if i < 0 || i >= len(*items) {
			return
		}
		next := append([]T(nil), *items...)
		next[i] = v
		*items = next
	})
	l.persistItem(v)
	l.saveWhole()
}

// Clear empties the list and persists the change.
func (l *List[T]) Clear() {
	l.hydrator.markWritten()
	var old []T
	l.cell.Mutate(func(items *[]T) {
		old = *items
		*items = nil
	})
	if l.granular {
		ids := make([]string, 0, len(old))
		for _, item := range old {
			ids = append(ids, l.itemID(item))
		}
		ctx := context.Background()
		if err := l.storage.DeleteRecords(ctx, l.storeName, ids); err != nil {
			l.log.Error("persist: list clear failed", err, map[string]any{"store": l.storeName})
		}
	} else {
		l.wholeSave.enqueue()
	}
}

// Subscribe registers fn to run on every mutation.
func (l *List[T]) Subscribe(fn func([]T)) func() {
	return l.cell.Subscribe(fn)
}

// WaitForHydration triggers hydration if needed and blocks until it
// completes.
func (l *List[T]) WaitForHydration(ctx context.Context) error {
	l.ensureHydrated()
	return l.hydrator.wait(ctx)
}

func (l *List[T]) saveWhole() {
	if !l.granular {
		l.wholeSave.enqueue()
	}
}

func (l *List[T]) persistItem(v T) {
	if !l.granular {
		return
	}
	id := l.itemID(v)
	s := l.recordSaverFor(id)
	s.setEncode(func() (string, error) {
		b, err := l.toJSON(v)
		return string(b), err
	})
	s.enqueue()
}

func (l *List[T]) deleteItem(v T) {
	id := l.itemID(v)
	ctx := context.Background()
	if err := l.storage.DeleteRecord(ctx, l.storeName, id); err != nil {
		l.log.Error("persist: list item delete failed", err, map[string]any{"store": l.storeName, "id": id})
	}
}

func (l *List[T]) recordSaverFor(id string) *saver {
	l.recMu.Lock()
	defer l.recMu.Unlock()
	s, ok := l.recordSave[id]
	if !ok {
		s = newSaver(l.storeName+"/"+id, l.log, nil, func(ctx context.Context, value string) error {
			return l.storage.SetRecord(ctx, l.storeName, id, value)
		})
		l.recordSave[id] = s
	}
	return s
}
