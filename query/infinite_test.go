package query

import (
	"context"
	"testing"
	"time"
)

type page struct {
	Items []int
	Next  int
	More  bool
}

func fetchPageFn(t *testing.T) func(ctx context.Context, param int) (page, error) {
	return func(ctx context.Context, param int) (page, error) {
		switch param {
		case 0:
			return page{Items: []int{1, 2}, Next: 1, More: true}, nil
		case 1:
			return page{Items: []int{3, 4}, Next: 2, More: true}, nil
		case 2:
			return page{Items: []int{5}, Next: 0, More: false}, nil
		default:
			t.Fatalf("unexpected page param %d", param)
			return page{}, nil
		}
	}
}

func getNextParam(last page, pages []page) (int, bool) {
	if !last.More {
		return 0, false
	}
	return last.Next, true
}

// --- infinite coherence (§8 testable property 10) ---

func TestInfiniteQueryPaginationAndHasNextPage(t *testing.T) {
	c := testClient(t, Config{})
	iq := NewInfiniteQuery[page, int](c, Of("feed"), 0, fetchPageFn(t), getNextParam, InfiniteConfig[page, int]{})

	waitUntil(t, time.Second, func() bool { return iq.Get().Status == StatusSuccess })
	res := iq.Get()
	if len(res.Data.Pages) != 1 {
		t.Fatalf("expected 1 page after initial fetch, got %d", len(res.Data.Pages))
	}
	if !iq.HasNextPage() {
		t.Fatal("expected HasNextPage after first page (More=true)")
	}

	iq.FetchNextPage(context.Background())
	waitUntil(t, time.Second, func() bool { return len(iq.Get().Data.Pages) == 2 })

	iq.FetchNextPage(context.Background())
	waitUntil(t, time.Second, func() bool { return len(iq.Get().Data.Pages) == 3 })

	final := iq.Get()
	if iq.HasNextPage() {
		t.Fatal("expected HasNextPage false once the last page reports More=false")
	}
	allItems := 0
	for _, p := range final.Data.Pages {
		allItems += len(p.Items)
	}
	if allItems != 5 {
		t.Fatalf("expected 5 total items across all pages, got %d", allItems)
	}
}

func TestInfiniteQueryConcurrentFetchNextPageDedupes(t *testing.T) {
	c := testClient(t, Config{})
	var calls int
	release := make(chan struct{})
	fetch := func(ctx context.Context, param int) (page, error) {
		if param == 1 {
			calls++
			<-release
		}
		return page{Items: []int{1}, Next: param + 1, More: param < 1}, nil
	}

	iq := NewInfiniteQuery[page, int](c, Of("dedupe-feed"), 0, fetch, getNextParam, InfiniteConfig[page, int]{})
	waitUntil(t, time.Second, func() bool { return iq.Get().Status == StatusSuccess })

	done := make(chan struct{}, 2)
	go func() { iq.FetchNextPage(context.Background()); done <- struct{}{} }()
	go func() { iq.FetchNextPage(context.Background()); done <- struct{}{} }()

	waitUntil(t, time.Second, func() bool { return iq.IsFetchingNextPage() })
	close(release)
	<-done
	<-done

	if calls != 1 {
		t.Fatalf("concurrent FetchNextPage calls should dedupe to a single fetch, got %d calls", calls)
	}
}

// --- PageData helpers ---

func TestPageDataHelpers(t *testing.T) {
	d := PageData[page, int]{}
	d = d.AddPage(page{Items: []int{1, 2}}, 0)
	d = d.AddPage(page{Items: []int{3}}, 1)

	if len(d.Pages) != 2 || len(d.PageParams) != 2 {
		t.Fatalf("AddPage: got %d pages / %d params, want 2 / 2", len(d.Pages), len(d.PageParams))
	}

	replaced := d.ReplacePage(1, page{Items: []int{3, 4}})
	if got := len(replaced.Pages[1].Items); got != 2 {
		t.Fatalf("ReplacePage: page 1 has %d items, want 2", got)
	}
	if got := len(d.Pages[1].Items); got != 1 {
		t.Fatal("ReplacePage must not mutate the receiver")
	}
	if out := d.ReplacePage(5, page{}); len(out.Pages) != 2 {
		t.Fatal("ReplacePage with an out-of-range index must return the data unchanged")
	}

	flat := FlatMap(replaced, func(p page) []int { return p.Items })
	if len(flat) != 4 {
		t.Fatalf("FlatMap: got %d items, want 4", len(flat))
	}
}

// --- refetchAllPages rolls back on partial failure ---

func TestInfiniteQueryRefetchRollsBackOnPartialFailure(t *testing.T) {
	c := testClient(t, Config{})
	attempt := 0
	fetch := func(ctx context.Context, param int) (page, error) {
		attempt++
		return page{Items: []int{param}, Next: param + 1, More: param < 1}, nil
	}
	iq := NewInfiniteQuery[page, int](c, Of("rollback-feed"), 0, fetch, getNextParam, InfiniteConfig[page, int]{})
	waitUntil(t, time.Second, func() bool { return iq.Get().Status == StatusSuccess })
	iq.FetchNextPage(context.Background())
	waitUntil(t, time.Second, func() bool { return len(iq.Get().Data.Pages) == 2 })

	before := iq.Get().Data

	failing := func(ctx context.Context, param int) (page, error) {
		if param == 1 {
			return page{}, NewNetworkError(nil)
		}
		return fetch(ctx, param)
	}
	iq2 := &InfiniteQuery[page, int]{client: c, entry: iq.entry, fetchPage: failing, initialParam: 0, getNextParam: getNextParam}
	if _, err := iq2.refetchAllPages(context.Background()); err == nil {
		t.Fatal("expected refetchAllPages to surface the mid-sequence failure")
	}

	after := iq.Get().Data
	if len(after.Pages) != len(before.Pages) {
		t.Fatalf("entry data should be untouched after a failed refetch: before %d pages, after %d", len(before.Pages), len(after.Pages))
	}
}
