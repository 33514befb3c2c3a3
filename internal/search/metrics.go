package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/resilience"
)

const namespace = "company_search"

// Metrics holds the orchestrator's prometheus instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	results         *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider search calls by outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Provider search call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		results: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Consolidated records returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"kind"}),
	}
	reg.MustRegister(m.providerCalls, m.providerLatency, m.cacheLookups, m.searchDuration, m.results)
	return m
}

func (m *Metrics) observeProvider(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeError {
		m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

func (m *Metrics) observeCache(ns string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(ns, result).Inc()
}

func (m *Metrics) observeSearch(kind string, d time.Duration, n int) {
	if m == nil {
		return
	}
	m.searchDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.results.WithLabelValues(kind).Observe(float64(n))
}

var (
	breakerStateDesc = prometheus.NewDesc(
		namespace+"_breaker_state",
		"Circuit state per provider: 0 closed, 1 open, 2 half open.",
		[]string{"provider"},
		nil,
	)
	breakerFailuresDesc = prometheus.NewDesc(
		namespace+"_breaker_consecutive_failures",
		"Consecutive failures recorded per provider.",
		[]string{"provider"},
		nil,
	)
)

// BreakerCollector reports circuit breaker state on each scrape.
type BreakerCollector struct {
	breakers *resilience.Breakers
}

// NewBreakerCollector creates a collector over b.
func NewBreakerCollector(b *resilience.Breakers) *BreakerCollector {
	return &BreakerCollector{breakers: b}
}

// Describe sends the metric descriptors to the channel.
func (c *BreakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- breakerStateDesc
	ch <- breakerFailuresDesc
}

// Collect emits one gauge pair per tracked provider.
func (c *BreakerCollector) Collect(ch chan<- prometheus.Metric) {
	for name, st := range c.breakers.Snapshot() {
		ch <- prometheus.MustNewConstMetric(breakerStateDesc, prometheus.GaugeValue, float64(st.Status), name)
		ch <- prometheus.MustNewConstMetric(breakerFailuresDesc, prometheus.GaugeValue, float64(st.ConsecutiveFailures), name)
	}
}

var (
	cacheEntriesDesc = prometheus.NewDesc(
		namespace+"_cache_entries",
		"Entries held by the in-process result cache.",
		nil, nil,
	)
	cacheHitRateDesc = prometheus.NewDesc(
		namespace+"_cache_hit_rate",
		"Hit rate of the in-process result cache since start.",
		nil, nil,
	)
)

// MemoryCacheCollector reports in-process cache occupancy and hit rate.
type MemoryCacheCollector struct {
	store *cache.MemoryStore
}

// NewMemoryCacheCollector creates a collector over store.
func NewMemoryCacheCollector(store *cache.MemoryStore) *MemoryCacheCollector {
	return &MemoryCacheCollector{store: store}
}

// Describe sends the metric descriptors to the channel.
func (c *MemoryCacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheEntriesDesc
	ch <- cacheHitRateDesc
}

// Collect emits the current store statistics.
func (c *MemoryCacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(cacheHitRateDesc, prometheus.GaugeValue, s.HitRate)
}
