package query

import (
	"context"
	"sync"
	"time"
)

// PageData is the entry data an InfiniteQuery stores: a sequence of pages
// and the page parameters that produced them (§3 InfiniteData).
type PageData[T any, P any] struct {
	Pages      []T
	PageParams []P
}

// AddPage returns a copy of d with page and its param appended.
func (d PageData[T, P]) AddPage(page T, param P) PageData[T, P] {
	return PageData[T, P]{
		Pages:      append(append([]T(nil), d.Pages...), page),
		PageParams: append(append([]P(nil), d.PageParams...), param),
	}
}

// ReplacePage returns a copy of d with the page at index i replaced. An
// out-of-range index returns d unchanged.
func (d PageData[T, P]) ReplacePage(i int, page T) PageData[T, P] {
	if i < 0 || i >= len(d.Pages) {
		return d
	}
	pages := append([]T(nil), d.Pages...)
	pages[i] = page
	return PageData[T, P]{Pages: pages, PageParams: d.PageParams}
}

// FlatMap flattens every page of d through fn into one slice, in page
// order.
func FlatMap[T any, P any, U any](d PageData[T, P], fn func(page T) []U) []U {
	var out []U
	for _, p := range d.Pages {
		out = append(out, fn(p)...)
	}
	return out
}

// InfiniteConfig configures an InfiniteQuery at construction.
type InfiniteConfig[T any, P any] struct {
	StaleDuration        time.Duration
	CacheDuration        time.Duration
	RequestTimeout       time.Duration
	RetryPolicy          *RetryPolicy
	GetPreviousPageParam func(firstPage T, pages []T) (P, bool)
}

// dedup collapses concurrent calls to do into the single fetch already in
// flight, the same shape fetchNextPage/fetchPreviousPage need without
// going through the entry's single-fetch-per-key dedup (§4.G "concurrent
// next-page calls dedupe to the same in-flight promise").
type dedup struct {
	mu       sync.Mutex
	inFlight bool
	done     chan struct{}
}

func (d *dedup) do(fn func()) {
	d.mu.Lock()
	if d.inFlight {
		ch := d.done
		d.mu.Unlock()
		<-ch
		return
	}
	d.inFlight = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	fn()

	d.mu.Lock()
	close(d.done)
	d.inFlight = false
	d.mu.Unlock()
}

func (d *dedup) isInFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// InfiniteQuery is a multi-page query handle (§4.G).
type InfiniteQuery[T any, P any] struct {
	client *Client
	entry  *entry

	fetchPage     func(ctx context.Context, param P) (T, error)
	initialParam  P
	getNextParam  func(lastPage T, pages []T) (P, bool)
	getPrevParam  func(firstPage T, pages []T) (P, bool)

	nextDedup dedup
	prevDedup dedup
}

// NewInfiniteQuery declares an infinite query for key.
func NewInfiniteQuery[T any, P any](
	c *Client,
	key Key,
	initialParam P,
	fetchPage func(ctx context.Context, param P) (T, error),
	getNextPageParam func(lastPage T, pages []T) (P, bool),
	cfg InfiniteConfig[T, P],
) *InfiniteQuery[T, P] {
	iq := &InfiniteQuery[T, P]{
		client:       c,
		fetchPage:    fetchPage,
		initialParam: initialParam,
		getNextParam: getNextPageParam,
		getPrevParam: cfg.GetPreviousPageParam,
	}

	c.mu.Lock()
	e := c.getOrCreateEntry(key)
	if cfg.StaleDuration > 0 {
		e.staleDuration = cfg.StaleDuration
	}
	if cfg.CacheDuration > 0 {
		e.cacheDuration = cfg.CacheDuration
	}
	if cfg.RequestTimeout > 0 {
		e.requestTimeout = cfg.RequestTimeout
	}
	if cfg.RetryPolicy != nil {
		e.retryPolicy = *cfg.RetryPolicy
	}
	e.fetchFn = func(ctx context.Context) (any, error) { return iq.refetchAllPages(ctx) }
	e.addSubscriber()
	iq.entry = e
	c.mu.Unlock()

	return iq
}

// refetchAllPages is the entry's fetchFn: it re-fetches every currently
// known page, in order, and only replaces the stored InfiniteData if every
// page succeeds. A failure partway through leaves the previous InfiniteData
// untouched, because runAttempt never applies a failed result (§4.G
// "partial failure rolls back to the previous InfiniteData").
func (iq *InfiniteQuery[T, P]) refetchAllPages(ctx context.Context) (any, error) {
	iq.client.mu.Lock()
	raw := iq.entry.data
	iq.client.mu.Unlock()

	pd, ok := raw.(PageData[T, P])
	if !ok || len(pd.PageParams) == 0 {
		page, err := iq.fetchPage(ctx, iq.initialParam)
		if err != nil {
			return nil, err
		}
		return PageData[T, P]{Pages: []T{page}, PageParams: []P{iq.initialParam}}, nil
	}

	newPages := make([]T, 0, len(pd.PageParams))
	for _, param := range pd.PageParams {
		page, err := iq.fetchPage(ctx, param)
		if err != nil {
			return nil, err
		}
		newPages = append(newPages, page)
	}
	return PageData[T, P]{Pages: newPages, PageParams: pd.PageParams}, nil
}

func (iq *InfiniteQuery[T, P]) ensureRead() {
	iq.client.mu.Lock()
	e := iq.entry
	needsInitial := e.status == StatusIdle
	needsBackground := e.status == StatusSuccess && e.isStale(time.Now())
	iq.client.mu.Unlock()

	if needsInitial || needsBackground {
		iq.client.ensureFetch(e)
	}
}

// Get triggers the read-time fetch rule and returns the current page data.
func (iq *InfiniteQuery[T, P]) Get() Result[PageData[T, P]] {
	iq.ensureRead()

	st := iq.entry.state.Get()
	data, _ := decodeAny[PageData[T, P]](st.Data)

	return Result[PageData[T, P]]{
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

// HasNextPage reports whether getNextPageParam is non-null for the most
// recently settled last page (§8 testable property "infinite coherence").
func (iq *InfiniteQuery[T, P]) HasNextPage() bool {
	pd, ok := iq.currentPages()
	if !ok || len(pd.Pages) == 0 {
		return false
	}
	_, has := iq.getNextParam(pd.Pages[len(pd.Pages)-1], pd.Pages)
	return has
}

// HasPreviousPage reports the symmetric condition for the first page. It
// is always false if no GetPreviousPageParam was configured.
func (iq *InfiniteQuery[T, P]) HasPreviousPage() bool {
	if iq.getPrevParam == nil {
		return false
	}
	pd, ok := iq.currentPages()
	if !ok || len(pd.Pages) == 0 {
		return false
	}
	_, has := iq.getPrevParam(pd.Pages[0], pd.Pages)
	return has
}

func (iq *InfiniteQuery[T, P]) currentPages() (PageData[T, P], bool) {
	iq.client.mu.Lock()
	raw := iq.entry.data
	iq.client.mu.Unlock()
	pd, ok := raw.(PageData[T, P])
	return pd, ok
}

// IsFetchingNextPage reports whether fetchNextPage is currently in flight.
func (iq *InfiniteQuery[T, P]) IsFetchingNextPage() bool { return iq.nextDedup.isInFlight() }

// IsFetchingPreviousPage reports whether fetchPreviousPage is currently in
// flight.
func (iq *InfiniteQuery[T, P]) IsFetchingPreviousPage() bool { return iq.prevDedup.isInFlight() }

// FetchNextPage computes the next page param from the last page and
// fetches it, appending the result. A no-op if there is no next page.
// Concurrent calls dedupe to the single in-flight fetch (§4.G).
func (iq *InfiniteQuery[T, P]) FetchNextPage(ctx context.Context) {
	iq.nextDedup.do(func() {
		pd, ok := iq.currentPages()
		if !ok || len(pd.Pages) == 0 {
			return
		}
		param, hasNext := iq.getNextParam(pd.Pages[len(pd.Pages)-1], pd.Pages)
		if !hasNext {
			return
		}
		page, err := iq.fetchPage(ctx, param)
		if err != nil {
			iq.client.log.Error("query: fetchNextPage failed", err, map[string]any{"key": iq.entry.key.String()})
			return
		}
		iq.appendPage(page, param, true)
	})
}

// FetchPreviousPage is the symmetric operation, prepending the result.
// A no-op if GetPreviousPageParam was not configured or reports no page.
func (iq *InfiniteQuery[T, P]) FetchPreviousPage(ctx context.Context) {
	if iq.getPrevParam == nil {
		return
	}
	iq.prevDedup.do(func() {
		pd, ok := iq.currentPages()
		if !ok || len(pd.Pages) == 0 {
			return
		}
		param, hasPrev := iq.getPrevParam(pd.Pages[0], pd.Pages)
		if !hasPrev {
			return
		}
		page, err := iq.fetchPage(ctx, param)
		if err != nil {
			iq.client.log.Error("query: fetchPreviousPage failed", err, map[string]any{"key": iq.entry.key.String()})
			return
		}
		iq.appendPage(page, param, false)
	})
}

func (iq *InfiniteQuery[T, P]) appendPage(page T, param P, toEnd bool) {
	iq.client.mu.Lock()
	defer iq.client.mu.Unlock()

	cur, ok := iq.client.entries[iq.entry.fingerprint]
	if !ok {
		return
	}
	pd, _ := cur.data.(PageData[T, P])
	if toEnd {
		pd = pd.AddPage(page, param)
	} else {
		pd.Pages = append([]T{page}, pd.Pages...)
		pd.PageParams = append([]P{param}, pd.PageParams...)
	}
	cur.data = pd
	cur.status = StatusSuccess
	cur.updatedAt = time.Now()
	cur.markSettled()
	cur.publish()
}

// WaitForHydration resolves when the entry's first settle occurs, or
// immediately if already settled.
func (iq *InfiniteQuery[T, P]) WaitForHydration(ctx context.Context) error {
	iq.ensureRead()

	iq.client.mu.Lock()
	ch := iq.entry.settleWaiter()
	iq.client.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose decrements the entry's subscriber count.
func (iq *InfiniteQuery[T, P]) Dispose() {
	iq.client.mu.Lock()
	iq.entry.removeSubscriber()
	iq.client.mu.Unlock()
}
