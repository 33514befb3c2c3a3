package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/provider"
	"github.com/sells-group/company-search/internal/resilience"
)

func TestMetrics_RecordsSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := &fakeProvider{name: "ok", fn: returning(cand("a.com", "ok", nil))}
	bad := &fakeProvider{name: "bad", fn: failing(errors.New("boom"))}
	b := resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	o := New(provider.NewRegistry(ok, bad), b, cache.New(cache.NewMemory(10)),
		Config{TTL: cache.DefaultPolicy()}, WithMetrics(m))

	for i := 0; i < 2; i++ {
		_, err := o.Search(context.Background(), provider.Query{Text: "x"})
		require.NoError(t, err)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.providerCalls.WithLabelValues("ok", OutcomeOK)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.providerCalls.WithLabelValues("bad", OutcomeError)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues(KindSearch, "miss")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues(KindSearch, "hit")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.searchDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.observeProvider("p", OutcomeOK, 0)
	m.observeCache(KindSearch, true)
	m.observeSearch(KindSearch, 0, 1)
}

func TestBreakerCollector(t *testing.T) {
	b := resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	c := NewBreakerCollector(b)
	assert.Equal(t, 0, testutil.CollectAndCount(c))

	for i := 0; i < 3; i++ {
		b.RecordFailure(company.SourceJina)
	}
	b.RecordFailure(company.SourceGoogle)

	assert.Equal(t, 4, testutil.CollectAndCount(c))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "company_search_breaker_state"))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
}

func TestMemoryCacheCollector(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(10)
	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	_, _, _ = store.Get(ctx, "a")
	_, _, _ = store.Get(ctx, "b")

	c := NewMemoryCacheCollector(store)
	assert.Equal(t, 2, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "company_search_cache_entries"))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "company_search_cache_hit_rate" {
			assert.InDelta(t, 0.5, mf.GetMetric()[0].GetGauge().GetValue(), 1e-9)
		}
	}
}
