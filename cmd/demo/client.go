package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dougbarrett/reactivequery/cell"
	"github.com/dougbarrett/reactivequery/query"
)

// httpClient is the demo's "HTTP-like fetch function" collaborator (spec
// §1: the core only consumes a fetch function's shape, never an HTTP
// client implementation). It is a thin net/http wrapper, the natural
// native-Go analogue of the teacher's browser-bound fetch package (removed;
// see DESIGN.md).
type httpClient struct {
	base string
	hc   *http.Client
}

func newHTTPClient(base string) *httpClient {
	return &httpClient{base: base, hc: &http.Client{}}
}

func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return query.NewUnknownError(err)
	}
	return c.do(req, out)
}

func (c *httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return query.NewParsingError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return query.NewUnknownError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return query.NewTimeoutError(ctxErr)
		}
		return query.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return query.NewServerError(resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return query.NewUnknownError(fmt.Errorf("status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return query.NewParsingError(err)
	}
	return nil
}

// signalFromCell adapts a cell.Cell's Subscribe method to the
// func(onChange func()) func() shape query.WithSignal expects, so any
// observable cell (here, a counter bumped on a WebSocket broadcast) can
// drive a query's signal-driven invalidation (§4.D).
func signalFromCell[T any](c *cell.Cell[T]) func(onChange func()) func() {
	return func(onChange func()) func() {
		return c.Subscribe(func(T) { onChange() })
	}
}

func fetchAllPosts(hc *httpClient) func(ctx context.Context) ([]Post, error) {
	return func(ctx context.Context) ([]Post, error) {
		var page PostsPage
		if err := hc.getJSON(ctx, "/api/posts?skip=0&limit=200", &page); err != nil {
			return nil, err
		}
		return page.Items, nil
	}
}

func createPost(hc *httpClient) func(ctx context.Context, req CreatePostRequest) (Post, error) {
	return func(ctx context.Context, req CreatePostRequest) (Post, error) {
		var post Post
		if err := hc.postJSON(ctx, "/api/posts", req, &post); err != nil {
			return Post{}, err
		}
		return post, nil
	}
}

func fetchPostsPage(hc *httpClient) func(ctx context.Context, skip int) (PostsPage, error) {
	return func(ctx context.Context, skip int) (PostsPage, error) {
		var page PostsPage
		path := fmt.Sprintf("/api/posts?skip=%d&limit=20", skip)
		if err := hc.getJSON(ctx, path, &page); err != nil {
			return PostsPage{}, err
		}
		return page, nil
	}
}

func getNextPageParam(lastPage PostsPage, pages []PostsPage) (int, bool) {
	if !lastPage.HasMore {
		return 0, false
	}
	return lastPage.NextSkip, true
}

// waitFor polls cond every interval until it reports true or ctx is done.
func waitFor(ctx context.Context, interval time.Duration, cond func() bool) bool {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return false
		}
	}
}
