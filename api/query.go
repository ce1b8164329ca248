package api

import (
	"net/http"
	"strconv"
)

// QueryParams provides helpers for parsing URL query parameters.
type QueryParams struct {
	r *http.Request
}

// Query returns a QueryParams helper for the request
func Query(r *http.Request) QueryParams {
	return QueryParams{r: r}
}

// String returns a query parameter as string, or default if not present
func (q QueryParams) String(key, def string) string {
	if v := q.r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

// Int returns a query parameter as int, or default if not present/invalid
func (q QueryParams) Int(key string, def int) int {
	v := q.r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Bool returns a query parameter as bool, or default if not present
func (q QueryParams) Bool(key string, def bool) bool {
	v := q.r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// SkipLimit is this module's pagination convention: an offset into the
// collection (Skip) and a page size (Limit). Every paginated fetcher in the
// module — InfiniteQuery's page-param driver (§4.G) and PostsService.GetPage
// alike — advances by skip rather than by page number, so handlers parse
// their "skip"/"limit" query parameters through this instead of a page/
// per_page scheme nothing here actually uses.
type SkipLimit struct {
	Skip  int
	Limit int
}

// DefaultLimit is applied when the request omits "limit", or supplies one
// that is not a positive integer; a limit above maxLimit is clamped to
// maxLimit instead.
const DefaultLimit = 20

// SkipLimit parses the "skip" and "limit" query parameters, clamping limit
// to (0, maxLimit] and skip to a non-negative value.
func (q QueryParams) SkipLimit(maxLimit int) SkipLimit {
	skip := q.Int("skip", 0)
	if skip < 0 {
		skip = 0
	}
	limit := q.Int("limit", DefaultLimit)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return SkipLimit{Skip: skip, Limit: limit}
}
