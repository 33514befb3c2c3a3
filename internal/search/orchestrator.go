// Package search is the request path for company search: it reads the result
// cache, gates providers through their circuit breakers, fans out to every
// eligible provider in parallel, and consolidates what comes back.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/provider"
	"github.com/sells-group/company-search/internal/resilience"
)

// ErrEmptyQuery is returned when a search has no query text.
var ErrEmptyQuery = eris.New("search: query text is required")

// Provider outcomes reported per search.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeUnavailable = "unavailable"
)

// Search kinds, used as cache namespaces and metric labels.
const (
	KindSearch  = cache.NamespaceSearch
	KindSimilar = cache.NamespaceSimilar
)

// ProviderOutcome records what one provider contributed to a search.
type ProviderOutcome struct {
	Provider   string `json:"provider"`
	Outcome    string `json:"outcome"`
	Candidates int    `json:"candidates"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Result is a completed search.
type Result struct {
	SearchID string                  `json:"search_id"`
	Query    provider.Query          `json:"query"`
	Records  []company.CompanyRecord `json:"records"`
	Cached   bool                    `json:"cached"`
	// Shared is set when the result came from a concurrent identical search.
	Shared   bool              `json:"shared,omitempty"`
	Outcomes []ProviderOutcome `json:"providers,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	// RelevanceFloor drops records scoring below it. Zero disables the floor.
	RelevanceFloor float64
	// Coalesce collapses concurrent identical cache misses into one fan-out.
	Coalesce bool
	// TTL holds the per-namespace cache lifetimes.
	TTL cache.Policy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records prometheus metrics for every search.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs searches. It is safe for concurrent use.
type Orchestrator struct {
	registry *provider.Registry
	breakers *resilience.Breakers
	cache    *cache.Cache
	cfg      Config
	metrics  *Metrics
	flight   singleflight.Group

	// newID allows test injection of search ids.
	newID func() string
}

// New creates an Orchestrator over the registry's providers.
func New(reg *provider.Registry, breakers *resilience.Breakers, c *cache.Cache, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		breakers: breakers,
		cache:    c,
		cfg:      cfg,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Breakers returns the circuit store the orchestrator reports to.
func (o *Orchestrator) Breakers() *resilience.Breakers {
	return o.breakers
}

// Search returns the consolidated records for q. Provider failures and
// cache failures never surface as errors; an empty slice is a valid result.
func (o *Orchestrator) Search(ctx context.Context, q provider.Query) ([]company.CompanyRecord, error) {
	res, err := o.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Run is Search with per-provider outcomes and cache metadata.
func (o *Orchestrator) Run(ctx context.Context, q provider.Query) (*Result, error) {
	return o.run(ctx, KindSearch, q, nil)
}

// run executes one search in namespace kind. keep, when non-nil, filters the
// consolidated records before they are cached and returned.
func (o *Orchestrator) run(ctx context.Context, kind string, q provider.Query, keep func(company.CompanyRecord) bool) (*Result, error) {
	start := time.Now()
	q = normalizeQuery(q)
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}

	key, err := cache.Key(kind, keyInput{Query: q, Floor: o.cfg.RelevanceFloor})
	if err != nil {
		return nil, eris.Wrap(err, "search: build cache key")
	}

	res := &Result{SearchID: o.newID(), Query: q}
	log := zap.L().With(zap.String("search_id", res.SearchID), zap.String("kind", kind))

	var records []company.CompanyRecord
	if o.cache.Get(ctx, key, &records) {
		o.metrics.observeCache(kind, true)
		res.Records = nonNil(records)
		res.Cached = true
		log.Debug("search served from cache", zap.Int("records", len(res.Records)))
		o.metrics.observeSearch(kind, time.Since(start), len(res.Records))
		return res, nil
	}
	o.metrics.observeCache(kind, false)

	var (
		out    fanOutResult
		shared bool
	)
	if o.cfg.Coalesce {
		var ok bool
		out, shared, ok = o.coalesced(ctx, log, kind, key, q, keep)
		if !ok {
			log.Debug("caller left before shared search finished")
		}
	} else {
		out = o.fanOut(ctx, log, kind, key, q, keep)
	}
	res.Records = out.records
	res.Outcomes = out.outcomes
	res.Shared = shared

	o.metrics.observeSearch(kind, time.Since(start), len(res.Records))
	log.Info("search complete",
		zap.Int("records", len(res.Records)),
		zap.Bool("shared", shared),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// coalesced joins or starts the single in-flight fan-out for key. The shared
// fan-out runs detached from any one caller's cancellation so followers are
// not emptied when the leader leaves; provider adapters still bound each call.
// ok is false when ctx ended before the shared result arrived.
func (o *Orchestrator) coalesced(ctx context.Context, log *zap.Logger, kind, key string, q provider.Query, keep func(company.CompanyRecord) bool) (fanOutResult, bool, bool) {
	detached := context.WithoutCancel(ctx)
	ch := o.flight.DoChan(key, func() (any, error) {
		return o.fanOut(detached, log, kind, key, q, keep), nil
	})
	select {
	case r := <-ch:
		return r.Val.(fanOutResult), r.Shared, true
	case <-ctx.Done():
		return fanOutResult{records: []company.CompanyRecord{}}, false, false
	}
}

type fanOutResult struct {
	records  []company.CompanyRecord
	outcomes []ProviderOutcome
}

// fanOut calls every eligible provider concurrently, waits for all of them,
// consolidates, and caches the result when at least one provider succeeded.
func (o *Orchestrator) fanOut(ctx context.Context, log *zap.Logger, kind, key string, q provider.Query, keep func(company.CompanyRecord) bool) fanOutResult {
	providers := o.registry.All()
	outcomes := make([]ProviderOutcome, len(providers))
	results := make([][]company.Candidate, len(providers))

	g, gCtx := errgroup.WithContext(ctx)
	for i, p := range providers {
		name := p.Name()
		outcomes[i] = ProviderOutcome{Provider: name}

		if !p.Available() {
			outcomes[i].Outcome = OutcomeUnavailable
			o.metrics.observeProvider(name, OutcomeUnavailable, 0)
			continue
		}
		// One breaker check per provider per search.
		if o.breakers.IsOpen(name) {
			outcomes[i].Outcome = OutcomeCircuitOpen
			o.metrics.observeProvider(name, OutcomeCircuitOpen, 0)
			log.Debug("provider skipped, circuit open", zap.String("provider", name))
			continue
		}

		g.Go(func() error {
			callStart := time.Now()
			candidates, err := safeSearch(gCtx, p, q)
			elapsed := time.Since(callStart)
			outcomes[i].DurationMs = elapsed.Milliseconds()

			if err != nil {
				outcomes[i].Outcome = OutcomeError
				outcomes[i].Error = err.Error()
				o.metrics.observeProvider(name, OutcomeError, elapsed)
				if ctx.Err() != nil {
					// The caller gave up; that says nothing about the provider.
					log.Debug("provider call abandoned", zap.String("provider", name), zap.Error(err))
					return nil
				}
				o.breakers.RecordFailure(name)
				log.Warn("provider search failed",
					zap.String("provider", name),
					zap.String("class", resilience.ClassifyError(err)),
					zap.Error(err),
				)
				return nil
			}

			o.breakers.RecordSuccess(name)
			outcomes[i].Outcome = OutcomeOK
			outcomes[i].Candidates = len(candidates)
			o.metrics.observeProvider(name, OutcomeOK, elapsed)
			for j := range candidates {
				if candidates[j].SourceTag == "" {
					candidates[j].SourceTag = name
				}
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var all []company.Candidate
	succeeded := false
	for i, r := range results {
		all = append(all, r...)
		if outcomes[i].Outcome == OutcomeOK {
			succeeded = true
		}
	}

	records := company.Consolidate(all, o.cfg.RelevanceFloor)
	if keep != nil {
		kept := records[:0]
		for _, r := range records {
			if keep(r) {
				kept = append(kept, r)
			}
		}
		records = kept
	}

	if succeeded {
		o.cache.Set(ctx, key, records, o.cfg.TTL.TTL(kind))
	} else {
		log.Warn("no provider succeeded, result not cached", zap.Int("providers", len(providers)))
	}
	return fanOutResult{records: records, outcomes: outcomes}
}

// safeSearch converts a provider panic into an error.
func safeSearch(ctx context.Context, p provider.Provider, q provider.Query) (out []company.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("%s: panic: %v", p.Name(), r)
		}
	}()
	return p.Search(ctx, q)
}

// keyInput is hashed into the cache key. The floor is part of it because
// cached records are post-floor.
type keyInput struct {
	Query provider.Query `json:"query"`
	Floor float64        `json:"floor"`
}

// normalizeQuery trims and collapses whitespace in the text and canonicalizes
// filter lists so equivalent queries share a cache entry.
func normalizeQuery(q provider.Query) provider.Query {
	q.Text = strings.Join(strings.Fields(q.Text), " ")
	q.Filters.Industries = canonicalList(q.Filters.Industries)
	q.Filters.Regions = canonicalList(q.Filters.Regions)
	if q.Filters.MinEmployees < 0 {
		q.Filters.MinEmployees = 0
	}
	if q.Filters.MaxEmployees < 0 {
		q.Filters.MaxEmployees = 0
	}
	if q.Filters.Limit < 0 {
		q.Filters.Limit = 0
	}
	return q
}

// canonicalList trims, drops empties, de-duplicates case-insensitively and
// sorts. The first spelling of each value is kept.
func canonicalList(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

func nonNil(r []company.CompanyRecord) []company.CompanyRecord {
	if r == nil {
		return []company.CompanyRecord{}
	}
	return r
}
