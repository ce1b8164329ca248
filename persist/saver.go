// Package persist implements the persisted reactive cells (component C):
// scalar, map and list cells that hydrate from a storage.Storage on first
// read and save to it on every mutation.
//
// It generalizes the teacher's state.PersistentStore[T] (state/storage.go):
// same load-then-subscribe-and-persist shape, but against the storage.KV
// interface instead of a concrete browser Storage, with lazy rather than
// eager hydration, an explicit WaitForHydration handle, and coalesced saves
// instead of a save-per-Subscribe-callback.
package persist

import (
	"context"
	"sync"

	"github.com/dougbarrett/reactivequery/querylog"
)

// saver runs a best-effort, fire-and-forget save loop for one storage key.
// While a save is in flight, at most one more pending save is queued; extra
// writes during that window overwrite the pending one rather than queuing
// additional saves, satisfying the "at most one queued save beyond the
// in-flight one" resource policy (spec §5).
type saver struct {
	mu       sync.Mutex
	inFlight bool
	pending  bool
	encode   func() (string, error)
	write    func(ctx context.Context, value string) error
	log      querylog.Logger
	key      string
}

func newSaver(key string, log querylog.Logger, encode func() (string, error), write func(ctx context.Context, value string) error) *saver {
	return &saver{key: key, log: log, encode: encode, write: write}
}

// setEncode replaces the encode function used by future saves. Safe to call
// concurrently with enqueue/run.
func (s *saver) setEncode(encode func() (string, error)) {
	s.mu.Lock()
	s.encode = encode
	s.mu.Unlock()
}

// enqueue schedules a save. Calling it while a save is already in flight
// just marks a pending save; it does not block and never queues more than
// one pending save.
func (s *saver) enqueue() {
	s.mu.Lock()
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	go s.run()
}

func (s *saver) run() {
	ctx := context.Background()
	for {
		s.mu.Lock()
		encode := s.encode
		s.mu.Unlock()

		value, err := encode()
		if err != nil {
			s.log.Error("persist: encode failed", err, map[string]any{"key": s.key})
		} else if err := s.write(ctx, value); err != nil {
			s.log.Error("persist: save failed", err, map[string]any{"key": s.key})
		}

		s.mu.Lock()
		if s.pending {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.inFlight = false
		s.mu.Unlock()
		return
	}
}
