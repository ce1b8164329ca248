// Package cell implements the reactive primitive the rest of the module
// builds on: an observable value (Cell), a pure derived value (Computed),
// grouped writes (Batch) and auto-tracking side effects (Effect).
//
// It generalizes the teacher's state.Store[T]: same mutex-guarded value plus
// subscriber-slice shape, but adds equality-suppressed notification, batched
// dispatch, and dependency-tracked derivation, none of which Store needed for
// a browser UI store but which the query cache and persisted cells both rely
// on.
package cell

import (
	"reflect"
	"sync"
)

// Cell holds a value of type T and notifies subscribers when it changes.
type Cell[T any] struct {
	mu    sync.RWMutex
	value T
	subs  subscribers[T]
	equal func(a, b T) bool
}

// Option configures a Cell at construction.
type Option[T any] func(*Cell[T])

// WithEqual overrides the equality check used to suppress redundant
// notifications. The default compares by reference/value where T is
// comparable and otherwise always reports a change.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(c *Cell[T]) { c.equal = eq }
}

// New creates a Cell holding initial.
func New[T any](initial T, opts ...Option[T]) *Cell[T] {
	c := &Cell[T]{
		value: initial,
		subs:  newSubscribers[T](),
		equal: defaultEqual[T],
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultEqual[T any](a, b T) bool {
	av, bv := any(a), any(b)
	rv := reflect.ValueOf(av)
	if !rv.IsValid() || !rv.Type().Comparable() {
		return false
	}
	return av == bv
}

// Get returns the current value. Inside an active Effect or Computed
// recomputation, Get also registers this cell as a dependency.
func (c *Cell[T]) Get() T {
	recordRead(c)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Peek returns the current value without registering a dependency. It is
// for code that reads a cell from a goroutine other than the one driving an
// Effect/Computed recomputation — a background save, a metrics sampler —
// where a tracked Get would record the read into whatever recomputation
// happens to be on top of the (process-wide) tracker stack at that moment,
// not necessarily the recomputation the reader is part of.
func (c *Cell[T]) Peek() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value. Subscribers are notified only if the new value is
// unequal to the old one under the cell's equality function.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	if c.equal(c.value, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	subs := c.subs.snapshot()
	c.mu.Unlock()

	notify(c, subs, v)
}

// Mutate applies fn to the value in place and always notifies, regardless of
// the cell's equality function. Composite values (maps, lists) that mutate
// through their own methods route through Mutate so a changed-in-place
// container still triggers observers.
func (c *Cell[T]) Mutate(fn func(*T)) {
	c.mu.Lock()
	fn(&c.value)
	v := c.value
	subs := c.subs.snapshot()
	c.mu.Unlock()

	notify(c, subs, v)
}

// Subscribe registers fn to run whenever the value changes, and returns an
// unsubscribe function. fn is not called with the current value at
// subscription time; call Get first if an initial read is needed.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.subs.add(fn)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.subs.remove(id)
		c.mu.Unlock()
	}
}

// SubscriberCount reports how many observers are currently subscribed.
func (c *Cell[T]) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs.len()
}

// subscribeUntyped implements the observable interface used by dependency
// tracking: it re-subscribes without exposing T to the tracker.
func (c *Cell[T]) subscribeUntyped(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}
