package query

import (
	"context"
	"time"
)

// Result is the observable snapshot a Query handle hands to readers (§3
// QueryState, §4.E Query Handle).
type Result[T any] struct {
	Status     Status
	Data       T
	Error      *QueryError
	IsLoading  bool
	IsSuccess  bool
	IsError    bool
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

// Query is the observable handle for one cache entry, typed to the
// fetcher's result type. Handles sharing a key are reference-counted on
// the same entry (§4.E): all see the same state.
type Query[T any] struct {
	client *Client
	entry  *entry
}

// NewQuery declares a query for key, registering fn as the entry's fetcher
// and incrementing its subscriber count. No fetch happens at construction
// time: per the spec's resolved open question, entries are populated
// lazily, on first read (Get/WaitForHydration/Refetch).
func NewQuery[T any](c *Client, key Key, fn func(ctx context.Context) (T, error), opts ...QueryOption) *Query[T] {
	c.mu.Lock()
	e := c.getOrCreateEntry(key)
	applyQueryOptions(e, opts)
	e.fetchFn = func(ctx context.Context) (any, error) { return fn(ctx) }
	e.addSubscriber()
	c.mu.Unlock()

	return &Query[T]{client: c, entry: e}
}

// ensureRead implements §4.D's read-triggered fetch rule: no data yet
// schedules an initial fetch; stale success data schedules a background
// refresh while continuing to expose the stale data.
func (q *Query[T]) ensureRead() {
	q.client.mu.Lock()
	e := q.entry
	now := time.Now()
	needsInitial := e.status == StatusIdle
	needsBackground := e.status == StatusSuccess && e.isStale(now)
	q.client.mu.Unlock()

	if needsInitial || needsBackground {
		q.client.met.recordMiss(e.fingerprint)
		q.client.ensureFetch(e)
	} else {
		q.client.met.recordHit(e.fingerprint)
	}
}

// Get triggers the read-time fetch rule and returns the entry's current
// observable snapshot, decoded to T.
//
// IsStale comes straight off the published State rather than a fresh
// client.mu-guarded recompute: ensureRead, just above, already performed
// the live staleness check under that lock and — whenever it found the
// entry stale — triggered ensureFetch, which republishes (with IsStale
// recomputed at that same instant) before this call proceeds. So for an
// entry holding success data the snapshot read here is never behind the
// live answer; a loading or error snapshot carries the IsStale of its
// last publish.
func (q *Query[T]) Get() Result[T] {
	q.ensureRead()

	st := q.entry.state.Get() // tracked read: participates in Computed/Effect dependency graphs
	data, _ := decodeAny[T](st.Data)

	return Result[T]{
		Status:     st.Status,
		Data:       data,
		Error:      st.Error,
		IsLoading:  st.Status == StatusLoading,
		IsSuccess:  st.Status == StatusSuccess,
		IsError:    st.Status == StatusError || st.Status == StatusTimeout || st.Status == StatusNetworkError,
		IsFetching: st.IsFetching,
		IsStale:    st.IsStale,
		UpdatedAt:  st.UpdatedAt,
	}
}

// Subscribe registers fn to run whenever the entry's observable state
// changes (a lower-level alternative to polling Get from inside a
// cell.Effect).
//
// This callback runs synchronously from inside entry.publish, which is
// always called with Client.mu already held by the publishing goroutine
// (runAttempt, SetQueryData, InvalidateQueries, ...). Client.mu is a plain
// sync.Mutex, not reentrant, so fn and everything it calls must not try to
// acquire it — hence reading st.IsStale rather than recomputing it here.
func (q *Query[T]) Subscribe(fn func(Result[T])) func() {
	return q.entry.state.Subscribe(func(st State) {
		data, _ := decodeAny[T](st.Data)
		fn(Result[T]{
			Status:     st.Status,
			Data:       data,
			Error:      st.Error,
			IsLoading:  st.Status == StatusLoading,
			IsSuccess:  st.Status == StatusSuccess,
			IsError:    st.Status == StatusError || st.Status == StatusTimeout || st.Status == StatusNetworkError,
			IsFetching: st.IsFetching,
			IsStale:    st.IsStale,
			UpdatedAt:  st.UpdatedAt,
		})
	})
}

// Refetch forces a new fetch, bypassing the staleness check, but is still
// subject to dedup: if a fetch is already in flight, Refetch joins it
// instead of starting a second one (§4.E refetch).
func (q *Query[T]) Refetch() {
	q.client.ensureFetch(q.entry)
}

// WaitForHydration resolves when this entry's first settle (success or
// error) occurs, or immediately if it has already settled. It also ensures
// a fetch has been scheduled, so a handle that is only ever waited on (and
// never Get()) still makes progress.
func (q *Query[T]) WaitForHydration(ctx context.Context) error {
	q.ensureRead()

	q.client.mu.Lock()
	ch := q.entry.settleWaiter()
	q.client.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose decrements the entry's subscriber count, scheduling garbage
// collection once it reaches zero (§4.E dispose).
func (q *Query[T]) Dispose() {
	q.client.mu.Lock()
	q.entry.removeSubscriber()
	q.client.mu.Unlock()
}
