package persist

import (
	"context"
	"encoding/json"

	"github.com/dougbarrett/reactivequery/cell"
	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/storage"
)

// ScalarConfig configures a Scalar cell.
type ScalarConfig[T any] struct {
	Storage storage.KV
	Key     string
	Initial T

	// FromJSON/ToJSON override the default encoding/json codec. Both must
	// be set together, or neither.
	FromJSON func([]byte) (T, error)
	ToJSON   func(T) ([]byte, error)

	// ClearCache, if true, skips loading on hydration and instead
	// asynchronously deletes Key from storage.
	ClearCache bool

	// ErrorHandler, if set, receives decode/load failures; the cell keeps
	// its Initial value regardless (hydration still completes).
	ErrorHandler func(err error)

	Log querylog.Logger
}

// Scalar is a single persisted value of type T: reads trigger lazy
// hydration from storage, writes update the value synchronously and queue a
// best-effort save.
type Scalar[T any] struct {
	cell     *cell.Cell[T]
	storage  storage.KV
	key      string
	fromJSON func([]byte) (T, error)
	toJSON   func(T) ([]byte, error)
	clear    bool
	onError  func(error)
	log      querylog.Logger
	hydrator *hydrator
	save     *saver
}

// NewScalar declares a persisted scalar cell. Hydration does not start until
// the first Value call or WaitForHydration.
func NewScalar[T any](cfg ScalarConfig[T]) *Scalar[T] {
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

	s := &Scalar[T]{
		cell:     cell.New(cfg.Initial),
		storage:  cfg.Storage,
		key:      cfg.Key,
		fromJSON: fromJSON,
		toJSON:   toJSON,
		clear:    cfg.ClearCache,
		onError:  cfg.ErrorHandler,
		log:      cfg.Log,
		hydrator: newHydrator(),
	}
	s.save = newSaver(cfg.Key, cfg.Log, func() (string, error) {
		// Peek, not Get: this closure runs on the saver's own goroutine
		// (saver.run), not whatever goroutine called Set, so a tracked read
		// here would attribute to an unrelated Effect/Computed recomputation.
		b, err := s.toJSON(s.cell.Peek())
		return string(b), err
	}, func(ctx context.Context, value string) error {
		return s.storage.Set(ctx, s.key, value)
	})
	warnDuplicateKey(s.log, cfg.Key)
	return s
}

func (s *Scalar[T]) hydrate() {
	ctx := context.Background()
	if s.clear {
		if err := s.storage.Delete(ctx, s.key); err != nil {
			s.reportError(err)
		}
		return
	}

	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		s.reportError(err)
		return
	}
	if !ok {
		return
	}
	if s.hydrator.wasWrittenFirst() {
		return
	}

	v, err := s.fromJSON([]byte(raw))
	if err != nil {
		s.reportError(err)
		return
	}
	if s.hydrator.wasWrittenFirst() {
		return
	}
	s.cell.Set(v)
}

func (s *Scalar[T]) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	s.log.Error("persist: scalar hydration failed", err, map[string]any{"key": s.key})
}

func (s *Scalar[T]) ensureHydrated() {
	s.hydrator.ensure(s.hydrate)
}

// Value returns the current value, triggering hydration on first call.
func (s *Scalar[T]) Value() T {
	s.ensureHydrated()
	return s.cell.Get()
}

// Set updates the value and enqueues a save. It does not wait for
// hydration: a write always wins over a load that has not applied yet.
func (s *Scalar[T]) Set(v T) {
	s.hydrator.markWritten()
	s.cell.Set(v)
	s.save.enqueue()
}

// Subscribe registers fn to run on every value change.
func (s *Scalar[T]) Subscribe(fn func(T)) func() {
	return s.cell.Subscribe(fn)
}

// WaitForHydration triggers hydration if it has not started yet and blocks
// until the initial load completes, successfully or not.
func (s *Scalar[T]) WaitForHydration(ctx context.Context) error {
	s.ensureHydrated()
	return s.hydrator.wait(ctx)
}
