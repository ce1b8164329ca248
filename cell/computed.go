package cell

import "sync"

// Computed derives a value from other cells and computeds via a pure
// function, tracking its dependencies automatically (like Effect) and
// recomputing only when one of them changes. A failing fn leaves a sticky
// error retrievable via Get/Err; the next dependency change retries fn.
type Computed[T any] struct {
	mu      sync.RWMutex
	value   T
	err     error
	subs    subscribers[T]
	dispose func()
}

// NewComputed derives a Computed from fn, which is invoked once immediately
// and again whenever any cell it read last time changes.
func NewComputed[T any](fn func() (T, error)) *Computed[T] {
	c := &Computed[T]{subs: newSubscribers[T]()}
	c.dispose = Effect(func() {
		v, err := fn()

		c.mu.Lock()
		prev, prevErr := c.value, c.err
		c.value, c.err = v, err
		subs := c.subs.snapshot()
		c.mu.Unlock()

		if err != nil || prevErr != nil || !defaultEqual(prev, v) {
			notify(c, subs, v)
		}
	})
	return c
}

// Get returns the current derived value and, if the last recomputation
// failed, the sticky error from that attempt. Inside an active Effect or
// outer Computed, Get also registers this Computed as a dependency.
func (c *Computed[T]) Get() (T, error) {
	recordRead(c)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.err
}

// Subscribe registers fn to run whenever the derived value (or its error
// state) changes.
func (c *Computed[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.subs.add(fn)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.subs.remove(id)
		c.mu.Unlock()
	}
}

// Dispose stops tracking dependencies and further recomputation.
func (c *Computed[T]) Dispose() {
	c.dispose()
}

func (c *Computed[T]) subscribeUntyped(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}
