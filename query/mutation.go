package query

import (
	"context"
	"sync"

	"github.com/dougbarrett/reactivequery/cell"
)

// MutationStatus is a Mutation handle's lifecycle status (§4.F).
type MutationStatus string

const (
	MutationIdle    MutationStatus = "idle"
	MutationLoading MutationStatus = "loading"
	MutationSuccess MutationStatus = "success"
	MutationError   MutationStatus = "error"
)

// MutationState is the observable snapshot of a Mutation handle.
type MutationState[T any] struct {
	Status MutationStatus
	Data   T
	Error  *QueryError
}

// MutationOption configures a Mutation at construction.
type MutationOption[T any] func(*mutationOptions[T])

type mutationOptions[T any] struct {
	onSuccess func(T)
	onError   func(*QueryError)
	onSettled func()
}

// WithOnSuccess registers a callback run after a successful mutate, before
// the call returns.
func WithOnSuccess[T any](fn func(T)) MutationOption[T] {
	return func(o *mutationOptions[T]) { o.onSuccess = fn }
}

// WithOnError registers a callback run after a failed mutate, before the
// call returns.
func WithOnError[T any](fn func(*QueryError)) MutationOption[T] {
	return func(o *mutationOptions[T]) { o.onError = fn }
}

// WithOnSettled registers a callback run after either outcome.
func WithOnSettled[T any](fn func()) MutationOption[T] {
	return func(o *mutationOptions[T]) { o.onSettled = fn }
}

// Mutation is a one-shot, not-cached-by-key async action (§4.F). It is not
// addressed by a Key and does not participate in the entry table; the
// caller composes cache updates (optimistic writes, invalidation) from its
// callbacks using Client.SetQueryData / InvalidateQueries.
type Mutation[V any, T any] struct {
	fn func(ctx context.Context, variables V) (T, error)

	onSuccess func(T)
	onError   func(*QueryError)
	onSettled func()

	mu    sync.Mutex
	state *cell.Cell[MutationState[T]]
}

// NewMutation declares a mutation around fn.
func NewMutation[V any, T any](fn func(ctx context.Context, variables V) (T, error), opts ...MutationOption[T]) *Mutation[V, T] {
	var o mutationOptions[T]
	for _, opt := range opts {
		opt(&o)
	}
	return &Mutation[V, T]{
		fn:        fn,
		onSuccess: o.onSuccess,
		onError:   o.onError,
		onSettled: o.onSettled,
		state:     cell.New(MutationState[T]{Status: MutationIdle}),
	}
}

// Mutate runs fn with variables. It never panics: the returned error, if
// any, is the same classified *QueryError left in the Error field of the
// handle's observable Get() state — callers that only care about the reactive projection can
// ignore it (§4.F, §8 "mutation never throws" realized as "never panics").
func (m *Mutation[V, T]) Mutate(ctx context.Context, variables V) (T, error) {
	m.mu.Lock()
	m.state.Set(MutationState[T]{Status: MutationLoading})
	m.mu.Unlock()

	data, err := m.fn(ctx, variables)

	if err == nil {
		m.mu.Lock()
		m.state.Set(MutationState[T]{Status: MutationSuccess, Data: data})
		m.mu.Unlock()
		if m.onSuccess != nil {
			m.onSuccess(data)
		}
		if m.onSettled != nil {
			m.onSettled()
		}
		return data, nil
	}

	qerr := Classify(err)
	m.mu.Lock()
	m.state.Set(MutationState[T]{Status: MutationError, Error: qerr})
	m.mu.Unlock()
	if m.onError != nil {
		m.onError(qerr)
	}
	if m.onSettled != nil {
		m.onSettled()
	}
	var zero T
	return zero, qerr
}

// Reset transitions the handle back to idle, clearing data and error.
func (m *Mutation[V, T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Set(MutationState[T]{Status: MutationIdle})
}

// Get returns the current observable state.
func (m *Mutation[V, T]) Get() MutationState[T] {
	return m.state.Get()
}

// Subscribe registers fn to run on every state transition.
func (m *Mutation[V, T]) Subscribe(fn func(MutationState[T])) func() {
	return m.state.Subscribe(fn)
}
