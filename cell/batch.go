package cell

import "sync"

// batchMu guards the single active batch. The reactive substrate assumes the
// cooperative, single-logical-task-queue model the spec describes (§5): all
// cell mutations happen from one coordinating goroutine at a time, so a
// package-level batch pointer (rather than a per-goroutine one) is enough and
// matches how the teacher's Store.Subscribe callbacks are invoked inline,
// synchronously, from whichever goroutine called Set.
var (
	batchMu sync.Mutex
	active  *batchState
)

type batchState struct {
	order []any
	flush map[any]func()
}

// Batch runs fn and defers all cell notifications triggered during it until
// fn returns, collapsing multiple writes to the same cell into a single
// notification carrying the final value. Nested Batch calls join the
// outermost batch.
func Batch(fn func()) {
	batchMu.Lock()
	if active != nil {
		batchMu.Unlock()
		fn()
		return
	}
	b := &batchState{flush: make(map[any]func())}
	active = b
	batchMu.Unlock()

	fn()

	batchMu.Lock()
	active = nil
	batchMu.Unlock()

	for _, key := range b.order {
		b.flush[key]()
	}
}

// notify delivers v to subs, or queues the delivery on the active batch,
// keyed by the owning cell's identity so repeated writes within one batch
// collapse to the value in effect when the batch ends.
func notify[T any](owner any, subs []func(T), v T) {
	batchMu.Lock()
	b := active
	if b != nil {
		if _, exists := b.flush[owner]; !exists {
			b.order = append(b.order, owner)
		}
		b.flush[owner] = func() {
			for _, sub := range subs {
				sub(v)
			}
		}
		batchMu.Unlock()
		return
	}
	batchMu.Unlock()

	for _, sub := range subs {
		sub(v)
	}
}
