package query

import "time"

// QueryOption configures a Query handle at construction, mirroring the
// teacher's functional-options pattern for transport clients (ws.Option)
// rather than the Config struct used for top-level Client construction
// (§10 AMBIENT STACK, configuration).
type QueryOption func(*queryOptions)

type queryOptions struct {
	staleDuration          *time.Duration
	cacheDuration          *time.Duration
	retryPolicy            *RetryPolicy
	requestTimeout         *time.Duration
	refetchInterval        func(data any, err *QueryError) time.Duration
	refetchOnSignalChange  bool
	signals                []func(onChange func()) func()
	transformer            func(data any) (any, error)
}

// WithStaleDuration overrides the Client's default stale duration for this
// query.
func WithStaleDuration(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.staleDuration = &d }
}

// WithCacheDuration overrides the Client's default cache (GC) duration for
// this query.
func WithCacheDuration(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.cacheDuration = &d }
}

// WithRetryPolicy overrides the default retry policy for this query.
func WithRetryPolicy(p RetryPolicy) QueryOption {
	return func(o *queryOptions) { o.retryPolicy = &p }
}

// WithRequestTimeout overrides the Client's default per-attempt timeout for
// this query.
func WithRequestTimeout(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.requestTimeout = &d }
}

// WithRefetchInterval sets a function computing the interval polling
// period from the entry's most recent data/error; returning <= 0 disables
// polling until the next settle recomputes it (§4.D interval polling).
func WithRefetchInterval(fn func(data any, err *QueryError) time.Duration) QueryOption {
	return func(o *queryOptions) { o.refetchInterval = fn }
}

// WithSignal declares a dependency cell: subscribe is called once with a
// callback to invoke whenever the cell changes (§4.D signal-driven
// invalidation). Any change marks the entry stale; combine with
// WithRefetchOnSignalChange to also trigger an immediate refetch.
func WithSignal(subscribe func(onChange func()) func()) QueryOption {
	return func(o *queryOptions) { o.signals = append(o.signals, subscribe) }
}

// WithRefetchOnSignalChange makes a dependency cell change (§WithSignal)
// trigger an immediate refetch instead of only marking the entry stale.
func WithRefetchOnSignalChange() QueryOption {
	return func(o *queryOptions) { o.refetchOnSignalChange = true }
}

// WithTransformer sets a function applied to every successful fetch result
// before it is written to the cache. An error from the transformer fails
// the fetch as a parsing error (§4.D dedup & concurrency step 3, §7).
func WithTransformer(fn func(data any) (any, error)) QueryOption {
	return func(o *queryOptions) { o.transformer = fn }
}

// applyQueryOptions applies opts to e. Callers must hold the client's
// entries mutex, so signal subscriptions are registered under it; the
// registered callbacks take that mutex themselves when they fire.
func applyQueryOptions(e *entry, opts []QueryOption) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.staleDuration != nil {
		e.staleDuration = *o.staleDuration
	}
	if o.cacheDuration != nil {
		e.cacheDuration = *o.cacheDuration
	}
	if o.retryPolicy != nil {
		e.retryPolicy = *o.retryPolicy
	}
	if o.requestTimeout != nil {
		e.requestTimeout = *o.requestTimeout
	}
	if o.refetchInterval != nil {
		e.refetchInterval = o.refetchInterval
	}
	if o.transformer != nil {
		e.transformer = o.transformer
	}
	if o.refetchOnSignalChange {
		e.refetchOnSignalChange = true
	}
	for _, subscribe := range o.signals {
		client := e.client
		fp := e.fingerprint
		onChange := func() {
			client.mu.Lock()
			cur, ok := client.entries[fp]
			if !ok {
				client.mu.Unlock()
				return
			}
			cur.updatedAt = time.Time{}
			cur.publish()
			shouldRefetch := cur.refetchOnSignalChange && cur.subscriberCount > 0 && cur.fetchFn != nil
			client.mu.Unlock()
			if shouldRefetch {
				client.ensureFetch(cur)
			}
		}
		unsub := subscribe(onChange)
		e.signalUnsubs = append(e.signalUnsubs, unsub)
	}
}
