package persist

import (
	"context"
	"sync"
)

// hydrator runs a one-shot async load, shared by concurrent first reads, and
// lets a write that races ahead of the load win (§4.C contract 1–2: at most
// one hydration per cell, and it must never deadlock or clobber a value the
// caller already set).
type hydrator struct {
	mu      sync.Mutex
	once    sync.Once
	done    chan struct{}
	written bool
}

func newHydrator() *hydrator {
	return &hydrator{done: make(chan struct{})}
}

// markWritten records that the cell received a write. If load() has not run
// yet, it will see this and skip applying the loaded value.
func (h *hydrator) markWritten() {
	h.mu.Lock()
	h.written = true
	h.mu.Unlock()
}

func (h *hydrator) wasWrittenFirst() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written
}

// ensure starts load at most once, in the background, and closes done when
// it returns (regardless of success).
func (h *hydrator) ensure(load func()) {
	h.once.Do(func() {
		go func() {
			defer close(h.done)
			load()
		}()
	})
}

func (h *hydrator) wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
