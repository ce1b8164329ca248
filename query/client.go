package query

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/dougbarrett/reactivequery/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// persistedCacheKey is the storage root key under which the query cache
// file lives (§6 "Persisted query cache layout").
const persistedCacheKey = "__query_cache__"

// Config configures a Client. Zero values are defaulted by normalize(),
// following the teacher's QueryOptions/CORSOptions pattern of a plain
// options struct rather than functional options for top-level construction.
type Config struct {
	DefaultStaleDuration time.Duration
	DefaultCacheDuration time.Duration
	RefetchOnWindowFocus bool
	RefetchOnReconnect   bool
	RequestTimeout       time.Duration
	LogLevel             querylog.Level

	// Registerer, if set, registers the cache's Prometheus collectors.
	Registerer prometheus.Registerer
}

func (c Config) normalize() Config {
	if c.DefaultStaleDuration <= 0 {
		c.DefaultStaleDuration = 5 * time.Minute
	}
	// DefaultCacheDuration <= 0 means "effectively infinite" (never GC'd),
	// which is already the zero value's behavior (see entry.scheduleGC).
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = querylog.LevelInfo
	}
	return c
}

// Client owns the cache entry table and the (optional) persisted cache
// file. It generalizes the teacher's QueryCache (state/querycache.go): the
// same entries map + mutex + fetch/notify shape, but keyed by a structured
// Key, with cancellation, GC, signal-driven invalidation and a persisted
// snapshot the teacher's version lacks.
type Client struct {
	cfg Config
	log querylog.Logger
	met *Metrics

	store storage.Storage // optional; nil disables the persisted cache file

	mu      sync.Mutex
	entries map[string]*entry

	persist *persistence
}

// NewClient builds a Client. Storage, if any, is attached by Init.
func NewClient(cfg Config) *Client {
	cfg = cfg.normalize()
	c := &Client{
		cfg:     cfg,
		log:     querylog.New(querylog.Config{Level: cfg.LogLevel, Component: "query"}),
		met:     newMetrics(cfg.Registerer),
		entries: make(map[string]*entry),
	}
	c.persist = newPersistence(c)
	return c
}

// Init attaches storage, initializes it, and rehydrates the persisted query
// cache file if present (§6 Client.init).
func (c *Client) Init(ctx context.Context, store storage.Storage) error {
	c.store = store
	if store == nil {
		return nil
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	c.loadPersistedCache(ctx)
	return nil
}

func (c *Client) getOrCreateEntry(key Key) *entry {
	fp := key.Fingerprint()
	e, ok := c.entries[fp]
	if !ok {
		e = newEntry(c, key, c.cfg.DefaultStaleDuration, c.cfg.DefaultCacheDuration)
		c.entries[fp] = e
	}
	return e
}

// GetQueryData returns the current data for key, if the entry exists and
// is in success status.
func (c *Client) GetQueryData(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Fingerprint()]
	if !ok || e.status != StatusSuccess {
		return nil, false
	}
	return e.data, true
}

// SetQueryData writes data directly into the entry for key, marking it
// fresh and superseding any in-flight fetch (§4.D setQueryData).
func (c *Client) SetQueryData(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.getOrCreateEntry(key)
	e.cancelInFlight()
	e.data = data
	e.err = nil
	e.status = StatusSuccess
	e.updatedAt = time.Now()
	e.markSettled()
	e.scheduleRefetchTimer()
	e.publish()
	c.persist.requestSave()
}

// RemoveQueries evicts every entry whose key has prefix as a token-wise
// prefix, after cancelling any in-flight fetch and clearing its timers.
func (c *Client) RemoveQueries(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.cancelInFlight()
		e.cancelTimers()
		e.unsubscribeSignals()
		delete(c.entries, fp)
	}
	c.persist.requestSave()
}

// InvalidateQueries marks every entry whose key has prefix as a prefix
// stale, and schedules a refetch for every one with active subscribers
// (§4.D Invalidation).
func (c *Client) InvalidateQueries(prefix Key) {
	c.mu.Lock()
	var toRefetch []*entry
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.updatedAt = time.Time{}
		e.publish()
		if e.subscriberCount > 0 && e.fetchFn != nil {
			toRefetch = append(toRefetch, e)
		}
	}
	c.mu.Unlock()

	// Scheduled after the current critical section, the nearest Go
	// equivalent of "after the current microtask flush" (§5): every
	// affected subscribed entry gets exactly one refetch dispatch.
	for _, e := range toRefetch {
		go c.ensureFetch(e)
	}
}

// NotifyWindowFocus reports an application-level "window regained focus"
// event. When RefetchOnWindowFocus is configured, every subscribed stale
// entry is refetched (§6). The library has no window of its own to watch;
// the embedding application forwards its UI toolkit's focus event here.
func (c *Client) NotifyWindowFocus() {
	if !c.cfg.RefetchOnWindowFocus {
		return
	}
	c.refetchStaleSubscribed()
}

// NotifyReconnect reports that network connectivity returned. When
// RefetchOnReconnect is configured, every subscribed stale entry is
// refetched (§6). Typically driven by a transport reconnect callback, e.g.
// ws.WithOnOpen.
func (c *Client) NotifyReconnect() {
	if !c.cfg.RefetchOnReconnect {
		return
	}
	c.refetchStaleSubscribed()
}

func (c *Client) refetchStaleSubscribed() {
	c.mu.Lock()
	now := time.Now()
	var toRefetch []*entry
	for _, e := range c.entries {
		if e.subscriberCount == 0 || e.fetchFn == nil || e.status == StatusIdle {
			continue
		}
		if e.isStale(now) {
			toRefetch = append(toRefetch, e)
		}
	}
	c.mu.Unlock()

	for _, e := range toRefetch {
		go c.ensureFetch(e)
	}
}

// PrefetchQuery triggers a fetch for key if no entry exists yet or it has
// no data, without creating a subscriber. It schedules no GC timer: an
// entry that only PrefetchQuery has touched stays cached until
// RemoveQueries evicts it, or until a Query handle subscribes to it and is
// later disposed.
func (c *Client) PrefetchQuery(key Key, fn func(ctx context.Context) (any, error), opts ...QueryOption) {
	c.mu.Lock()
	e := c.getOrCreateEntry(key)
	applyQueryOptions(e, opts)
	e.fetchFn = fn
	needsFetch := e.status != StatusSuccess && e.attemptID == ""
	c.mu.Unlock()

	if needsFetch {
		c.ensureFetch(e)
	}
}

// collect removes an entry if it is still unreferenced (called from a
// gcTimer firing; §4.D Garbage collection).
func (c *Client) collect(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok || e.subscriberCount != 0 {
		return
	}
	e.cancelInFlight()
	e.cancelTimers()
	e.unsubscribeSignals()
	delete(c.entries, fingerprint)
	c.met.recordGC()
}

// pollRefetch is invoked by an entry's refetchTimer.
func (c *Client) pollRefetch(fingerprint string) {
	c.mu.Lock()
	e, ok := c.entries[fingerprint]
	c.mu.Unlock()
	if !ok || e.fetchFn == nil {
		return
	}
	c.ensureFetch(e)
}

// ensureFetch triggers a dedup'd fetch for e using its currently registered
// fetchFn, unless one is already in flight (§4.D dedup & concurrency).
func (c *Client) ensureFetch(e *entry) {
	c.mu.Lock()
	if e.attemptID != "" {
		c.mu.Unlock()
		return // an in-flight fetch already covers this attempt
	}
	if e.fetchFn == nil {
		c.mu.Unlock()
		return
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	e.attemptID = id
	e.attemptCancel = cancel
	// preserve data from a previous success across the loading transition
	e.status = StatusLoading
	e.publish()
	fn := e.fetchFn
	timeout := e.requestTimeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	retry := e.retryPolicy
	transform := e.transformer
	c.mu.Unlock()

	// The fetch itself is a suspension point (§5): callers of ensureFetch
	// must see the loading transition applied above without blocking on
	// the fetch completing.
	go c.runAttempt(e, id, ctx, fn, transform, timeout, retry)
}

func (c *Client) runAttempt(e *entry, id string, ctx context.Context, fn fetchFunc, transform func(any) (any, error), timeout time.Duration, retry RetryPolicy) {
	attempt := 1
	for {
		attemptCtx := ctx
		var cancelAttempt context.CancelFunc
		if timeout > 0 {
			attemptCtx, cancelAttempt = context.WithTimeout(ctx, timeout)
		}

		c.met.fetchStarted()
		data, err := fn(attemptCtx)
		c.met.fetchFinished()
		if cancelAttempt != nil {
			cancelAttempt()
		}
		if err == nil && transform != nil {
			var terr error
			if data, terr = transform(data); terr != nil {
				err = NewParsingError(terr)
			}
		}

		c.mu.Lock()
		if e.attemptID != id {
			c.mu.Unlock()
			return // superseded: drop this result entirely
		}

		if err == nil {
			e.data = data
			e.err = nil
			e.status = StatusSuccess
			e.updatedAt = time.Now()
			e.attemptID = ""
			e.attemptCancel = nil
			e.markSettled()
			e.scheduleRefetchTimer()
			e.publish()
			c.mu.Unlock()
			c.persist.requestSave()
			return
		}

		qerr := Classify(err)
		if retry.ShouldRetry(qerr.Kind, attempt) {
			c.met.recordRetry(qerr.Kind)
			delay := retry.Backoff(attempt)
			c.mu.Unlock()

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			attempt++
			continue
		}

		if attempt > 1 {
			c.met.recordRetriesExhausted(qerr.Kind)
		}
		e.err = qerr
		e.erroredAt = time.Now()
		e.status = statusForKind(qerr.Kind)
		e.attemptID = ""
		e.attemptCancel = nil
		e.markSettled()
		e.scheduleRefetchTimer()
		e.publish()
		c.mu.Unlock()
		c.log.Error("query: fetch failed", qerr, map[string]any{"key": e.key.String(), "kind": string(qerr.Kind)})
		return
	}
}

func statusForKind(k ErrorKind) Status {
	switch k {
	case ErrTimeout:
		return StatusTimeout
	case ErrNetwork:
		return StatusNetworkError
	default:
		return StatusError
	}
}

// --- persisted query cache file (§6) ---

type persistedEntry struct {
	Key           Key             `json:"key"`
	Data          json.RawMessage `json:"data"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	StaleDuration time.Duration   `json:"staleDuration"`
	CacheDuration time.Duration   `json:"cacheDuration"`
}

func (c *Client) loadPersistedCache(ctx context.Context) {
	raw, ok, err := c.store.Get(ctx, persistedCacheKey)
	if err != nil {
		c.log.Error("query: failed to load persisted cache", err, nil)
		return
	}
	if !ok {
		return
	}
	var records map[string]persistedEntry
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		c.log.Error("query: failed to decode persisted cache", err, nil)
		return
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, rec := range records {
		if rec.CacheDuration > 0 && now.Sub(rec.UpdatedAt) > rec.CacheDuration {
			continue // past cacheDuration: drop
		}
		var data any
		if len(rec.Data) > 0 {
			if err := json.Unmarshal(rec.Data, &data); err != nil {
				continue
			}
		}
		e := newEntry(c, rec.Key, rec.StaleDuration, rec.CacheDuration)
		e.fingerprint = fp
		e.status = StatusSuccess
		e.data = data
		e.updatedAt = rec.UpdatedAt
		e.markSettled()
		e.publish()
		c.entries[fp] = e
	}
}

func (c *Client) writePersistedCache() {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	records := make(map[string]persistedEntry, len(c.entries))
	for fp, e := range c.entries {
		if e.status != StatusSuccess {
			continue
		}
		raw, err := json.Marshal(e.data)
		if err != nil {
			continue
		}
		records[fp] = persistedEntry{
			Key:           e.key,
			Data:          raw,
			UpdatedAt:     e.updatedAt,
			StaleDuration: e.staleDuration,
			CacheDuration: e.cacheDuration,
		}
	}
	c.mu.Unlock()

	b, err := json.Marshal(records)
	if err != nil {
		c.log.Error("query: failed to encode persisted cache", err, nil)
		return
	}
	if err := c.store.Set(context.Background(), persistedCacheKey, string(b)); err != nil {
		c.log.Error("query: failed to save persisted cache", err, nil)
	}
}

// persistence debounces (>=500ms after last mutation) and throttles
// (<=1/s) writes of the persisted cache file (§6).
type persistence struct {
	client *Client

	mu        sync.Mutex
	timer     *time.Timer
	lastWrite time.Time
}

func newPersistence(c *Client) *persistence {
	return &persistence{client: c}
}

func (p *persistence) requestSave() {
	if p.client.store == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(500*time.Millisecond, p.flush)
}

func (p *persistence) flush() {
	p.mu.Lock()
	wait := time.Second - time.Since(p.lastWrite)
	p.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}

	p.client.writePersistedCache()

	p.mu.Lock()
	p.lastWrite = time.Now()
	p.mu.Unlock()
}
