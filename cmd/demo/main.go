// Command demo wires every component of the reactivequery module together
// against a small in-process posts API: an HTTP+WebSocket server (server.go,
// adapted from the teacher's example/server package), a query.Client doing
// real network fetches (client.go), and a persisted cell tracking the last
// viewed post across restarts. It exercises the library the way the
// teacher's own example/app exercised state/querycache.go, except natively
// instead of compiled to WASM.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dougbarrett/reactivequery/cell"
	"github.com/dougbarrett/reactivequery/persist"
	"github.com/dougbarrett/reactivequery/query"
	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/storage"
	"github.com/dougbarrett/reactivequery/transport/ws"
)

func main() {
	log := querylog.New(querylog.Config{Level: querylog.LevelInfo, Component: "demo"})

	svc := NewPostsService()
	hub := newBroadcastHub(log)
	mux := newMux(svc, hub, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Error("listen failed", err, nil)
		return
	}
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", err, nil)
		}
	}()
	defer srv.Close()

	baseURL := "http://" + ln.Addr().String()
	fmt.Println("demo server listening on", baseURL)

	runDemo(context.Background(), baseURL, log)
}

func runDemo(ctx context.Context, baseURL string, log querylog.Logger) {
	hc := newHTTPClient(baseURL)

	store := storage.NewMemory()
	client := query.NewClient(query.Config{
		DefaultStaleDuration: 200 * time.Millisecond,
		DefaultCacheDuration: time.Minute,
		RefetchOnReconnect:   true,
		RequestTimeout:       5 * time.Second,
		LogLevel:             querylog.LevelInfo,
	})
	if err := client.Init(ctx, store); err != nil {
		log.Error("client init failed", err, nil)
		return
	}

	// A reactive signal driven by server push: the WebSocket client bumps
	// this cell on every "post.created" broadcast, and the "posts.all"
	// query below is wired to refetch immediately when it changes (§4.D
	// signal-driven invalidation).
	createdSignal := cell.New(0)
	wsClient := ws.NewClient(wsURL(baseURL),
		// The socket opening doubles as the "connectivity returned" event:
		// any subscribed stale query refetches (RefetchOnReconnect above).
		ws.WithOnOpen(client.NotifyReconnect))
	ws.OnTyped[Post](wsClient, "post.created", func(Post) {
		createdSignal.Set(createdSignal.Get() + 1)
	})
	if err := wsClient.Connect(); err != nil {
		log.Warn("ws connect failed, signal-driven refetch disabled for this run", map[string]any{"err": err.Error()})
	} else {
		defer wsClient.Close()
	}

	// --- Query: the full posts list, refetched on server push ---
	allPosts := query.NewQuery(client, query.Of("posts", "all"), fetchAllPosts(hc),
		query.WithSignal(signalFromCell(createdSignal)),
		query.WithRefetchOnSignalChange(),
	)
	defer allPosts.Dispose()

	if err := allPosts.WaitForHydration(ctx); err != nil {
		log.Error("initial posts fetch failed", err, nil)
	}
	initial := allPosts.Get()
	fmt.Printf("posts.all: %d posts, status=%s isStale=%v\n", len(initial.Data), initial.Status, initial.IsStale)

	// --- Mutation with optimistic update + rollback-on-error pattern ---
	snapshot, _ := client.GetQueryData(query.Of("posts", "all"))
	snapshotPosts, _ := snapshot.([]Post)

	optimistic := Post{ID: -1, Title: "optimistic draft", Body: "not yet confirmed by the server"}
	client.SetQueryData(query.Of("posts", "all"), append(append([]Post(nil), snapshotPosts...), optimistic))
	fmt.Println("posts.all: optimistic write applied, now", len(snapshotPosts)+1, "posts")

	createMutation := query.NewMutation(createPost(hc),
		query.WithOnSuccess(func(p Post) {
			fmt.Printf("mutation succeeded: created post %d %q\n", p.ID, p.Title)
		}),
		query.WithOnError[Post](func(err *query.QueryError) {
			fmt.Println("mutation failed, rolling back optimistic write:", err)
			client.SetQueryData(query.Of("posts", "all"), snapshotPosts)
		}),
	)
	if _, err := createMutation.Mutate(ctx, CreatePostRequest{UserID: 1, Title: "Hello from the demo", Body: "written by cmd/demo"}); err != nil {
		log.Warn("mutate returned an error (already reflected in MutationState)", map[string]any{"err": err.Error()})
	}

	// A server push for the create above should have already landed and
	// bumped createdSignal, triggering a refetch; give it a moment and
	// replace the optimistic placeholder with the server-confirmed list.
	waitFor(ctx, 20*time.Millisecond, func() bool { return !allPosts.Get().IsFetching })
	settled := allPosts.Get()
	fmt.Printf("posts.all after settle: %d posts, status=%s\n", len(settled.Data), settled.Status)

	// --- Invalidation ---
	client.InvalidateQueries(query.Of("posts"))
	waitFor(ctx, 20*time.Millisecond, func() bool { return !allPosts.Get().IsFetching })
	fmt.Println("posts.all: refetched after InvalidateQueries(posts)")

	// --- Infinite query over the same posts, 20 per page ---
	paged := query.NewInfiniteQuery(client, query.Of("posts", "paged"), 0, fetchPostsPage(hc), getNextPageParam,
		query.InfiniteConfig[PostsPage, int]{StaleDuration: time.Minute})
	defer paged.Dispose()

	if err := paged.WaitForHydration(ctx); err != nil {
		log.Error("initial page fetch failed", err, nil)
	}
	first := paged.Get()
	fmt.Printf("posts.paged: page 1 has %d items, hasNextPage=%v\n", len(first.Data.Pages[0].Items), paged.HasNextPage())

	for paged.HasNextPage() {
		paged.FetchNextPage(ctx)
		waitFor(ctx, 20*time.Millisecond, func() bool { return !paged.IsFetchingNextPage() })
	}
	final := paged.Get()
	fmt.Printf("posts.paged: fetched %d pages, hasNextPage=%v\n", len(final.Data.Pages), paged.HasNextPage())

	// --- Persisted cell: remember the last post viewed across restarts ---
	lastViewed := persist.NewScalar(persist.ScalarConfig[int]{
		Storage: store,
		Key:     "demo:last_viewed_post",
		Initial: 0,
		Log:     log,
	})
	if len(settled.Data) > 0 {
		lastViewed.Set(settled.Data[0].ID)
	}
	if err := lastViewed.WaitForHydration(ctx); err != nil {
		log.Error("persisted cell hydration failed", err, nil)
	}
	fmt.Println("last viewed post id (persisted):", lastViewed.Value())

	log.Info("demo complete", nil)
}
