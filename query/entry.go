package query

import (
	"context"
	"time"

	"github.com/dougbarrett/reactivequery/cell"
)

// Status is a cache entry's lifecycle status (§3 CacheEntry).
type Status string

const (
	StatusIdle         Status = "idle"
	StatusLoading      Status = "loading"
	StatusSuccess      Status = "success"
	StatusError        Status = "error"
	StatusTimeout      Status = "timeout"
	StatusNetworkError Status = "networkError"
)

// State is the observable projection of a cache entry exposed to readers
// (§3 QueryState), plus the fields a Query handle derives at read time.
//
// IsStale is computed once, at publish time, rather than recomputed lazily
// by readers: every publish() call already holds the client's entries
// mutex. The passage of time alone does not republish, so a published
// State keeps the IsStale it had at its last publish until the next one
// (an invalidation, a fetch transition, or the background refetch that
// Query.Get starts when it finds success data stale). Freezing
// it here lets Query.Subscribe's callback — which cell.Set invokes
// synchronously while the publishing call site still holds Client.mu — read
// it without re-acquiring that same, non-reentrant mutex.
type State struct {
	Status     Status
	Data       any
	Error      *QueryError
	UpdatedAt  time.Time
	IsFetching bool
	IsStale    bool
}

// fetchFunc is the type-erased user fetch function an entry dedups. Query
// handles supply a typed wrapper; the entry only ever sees this shape,
// which is what lets one entry be shared by handles of the same T.
type fetchFunc func(ctx context.Context) (any, error)

// entry is the cache record for one key, shared by every handle that reads
// it. All field access goes through the Client's entries-table mutex
// (entry itself holds no lock): this mirrors the teacher's cacheEntry,
// generalized with cancellation, GC/refetch timers and a reactive
// projection cell.
type entry struct {
	client *Client

	key         Key
	fingerprint string

	status    Status
	data      any
	err       *QueryError
	updatedAt time.Time
	erroredAt time.Time

	staleDuration time.Duration
	cacheDuration time.Duration

	subscriberCount int
	gcTimer         *time.Timer
	refetchTimer    *time.Timer
	refetchInterval func(data any, err *QueryError) time.Duration

	// fetchFn, requestTimeout and retryPolicy are the most recently
	// registered fetcher and its settings, reused by invalidation-
	// triggered refetches, interval polling, and prefetch, none of which
	// have a typed Query handle at hand to supply one directly.
	fetchFn                fetchFunc
	requestTimeout         time.Duration
	retryPolicy            RetryPolicy
	refetchOnSignalChange  bool
	transformer            func(data any) (any, error)

	// attempt tracks the current in-flight fetch, if any.
	attemptID     string
	attemptCancel context.CancelFunc
	attemptWaiter []chan struct{}

	settled   bool
	settleGen int // bumped every time the entry settles

	// state is the reactive projection; Query handles read it via
	// cell.Get (dependency-tracked) and Subscribe to it directly.
	state *cell.Cell[State]

	signalUnsubs []func()
}

func newEntry(c *Client, key Key, staleDuration, cacheDuration time.Duration) *entry {
	e := &entry{
		client:        c,
		key:           key,
		fingerprint:   key.Fingerprint(),
		status:        StatusIdle,
		staleDuration: staleDuration,
		cacheDuration: cacheDuration,
		retryPolicy:   DefaultRetryPolicy(),
	}
	// State.Data is `any`: cell's default equality statically treats any
	// interface-typed field as comparable, then does `==` at runtime, which
	// panics if the boxed value (e.g. a PageData with slice fields) isn't
	// actually comparable. publish() is only ever called at a real
	// transition, so always notifying is correct, not just safe.
	e.state = cell.New(e.snapshot(), cell.WithEqual(func(a, b State) bool { return false }))
	return e
}

// snapshot builds the reactive projection from the entry's current fields.
// Callers must hold the client's entries mutex (the same requirement
// publish() itself carries), which is what makes it safe to compute IsStale
// here rather than at read time.
func (e *entry) snapshot() State {
	return State{
		Status:     e.status,
		Data:       e.data,
		Error:      e.err,
		UpdatedAt:  e.updatedAt,
		IsFetching: e.attemptID != "",
		IsStale:    e.isStale(time.Now()),
	}
}

// publish updates the reactive projection cell from the entry's current
// fields. Callers must hold the client's entries mutex.
func (e *entry) publish() {
	e.state.Set(e.snapshot())
}

func (e *entry) isStale(now time.Time) bool {
	if e.updatedAt.IsZero() {
		return true
	}
	if e.staleDuration <= 0 {
		return true
	}
	return now.Sub(e.updatedAt) >= e.staleDuration
}

// addSubscriber increments the reference count, canceling any pending GC.
func (e *entry) addSubscriber() {
	e.subscriberCount++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
}

// removeSubscriber decrements the reference count and, if it reaches zero,
// schedules garbage collection after cacheDuration (§4.D "Garbage
// collection").
func (e *entry) removeSubscriber() {
	if e.subscriberCount > 0 {
		e.subscriberCount--
	}
	if e.subscriberCount == 0 {
		e.scheduleGC()
	}
}

func (e *entry) scheduleGC() {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}
	if e.cacheDuration <= 0 {
		return // effectively infinite: never scheduled
	}
	fp := e.fingerprint
	c := e.client
	e.gcTimer = time.AfterFunc(e.cacheDuration, func() {
		c.collect(fp)
	})
}

func (e *entry) cancelTimers() {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	if e.refetchTimer != nil {
		e.refetchTimer.Stop()
		e.refetchTimer = nil
	}
}

func (e *entry) cancelInFlight() {
	if e.attemptCancel != nil {
		e.attemptCancel()
		e.attemptCancel = nil
	}
	e.attemptID = ""
}

func (e *entry) unsubscribeSignals() {
	for _, unsub := range e.signalUnsubs {
		unsub()
	}
	e.signalUnsubs = nil
}

// settleWaiter returns a channel closed the next time the entry settles
// (success or error), for WaitForHydration. If the entry has already
// settled at least once, the returned channel is already closed.
func (e *entry) settleWaiter() chan struct{} {
	ch := make(chan struct{})
	if e.settled {
		close(ch)
		return ch
	}
	e.attemptWaiter = append(e.attemptWaiter, ch)
	return ch
}

func (e *entry) markSettled() {
	e.settled = true
	e.settleGen++
	for _, ch := range e.attemptWaiter {
		close(ch)
	}
	e.attemptWaiter = nil
}

func (e *entry) scheduleRefetchTimer() {
	if e.refetchTimer != nil {
		e.refetchTimer.Stop()
		e.refetchTimer = nil
	}
	if e.refetchInterval == nil {
		return
	}
	d := e.refetchInterval(e.data, e.err)
	if d <= 0 {
		return
	}
	fp := e.fingerprint
	c := e.client
	e.refetchTimer = time.AfterFunc(d, func() {
		c.pollRefetch(fp)
	})
}
