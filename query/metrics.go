package query

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments a Client's cache activity. Unlike the teacher's
// global package-level collectors, it is owned by the Client instance that
// registers it, matching this module's explicit-dependency-injection
// stance on global singletons (§9 design notes). A zero Metrics (no
// Registerer supplied to Config) is a safe no-op.
type Metrics struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	inFlight        prometheus.Gauge
	retries         *prometheus.CounterVec
	retriesExhausted *prometheus.CounterVec
	gcEvictions     prometheus.Counter
}

// newMetrics registers the cache's collectors against r. r may be nil, in
// which case all recording calls are no-ops.
func newMetrics(r prometheus.Registerer) *Metrics {
	if r == nil {
		return &Metrics{}
	}

	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactivequery_cache_hits_total",
			Help: "Reads served from an already-fresh cache entry.",
		}, []string{"key"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactivequery_cache_misses_total",
			Help: "Reads that required a fetch (no entry or stale entry).",
		}, []string{"key"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reactivequery_inflight_fetches",
			Help: "Number of fetches currently in flight across all keys.",
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactivequery_retries_total",
			Help: "Retry attempts issued, by error kind.",
		}, []string{"kind"}),
		retriesExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactivequery_retries_exhausted_total",
			Help: "Fetches that failed after exhausting their retry budget, by error kind.",
		}, []string{"kind"}),
		gcEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactivequery_gc_evictions_total",
			Help: "Cache entries removed by the garbage collector.",
		}),
	}
	r.MustRegister(m.hits, m.misses, m.inFlight, m.retries, m.retriesExhausted, m.gcEvictions)
	return m
}

func (m *Metrics) recordHit(key string) {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.WithLabelValues(key).Inc()
}

func (m *Metrics) recordMiss(key string) {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.WithLabelValues(key).Inc()
}

func (m *Metrics) fetchStarted() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) fetchFinished() {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) recordRetry(kind ErrorKind) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordRetriesExhausted(kind ErrorKind) {
	if m == nil || m.retriesExhausted == nil {
		return
	}
	m.retriesExhausted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordGC() {
	if m == nil || m.gcEvictions == nil {
		return
	}
	m.gcEvictions.Inc()
}
