package main

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/provider"
	"github.com/sells-group/company-search/internal/resilience"
	"github.com/sells-group/company-search/internal/search"
	"github.com/sells-group/company-search/internal/summary"
	"github.com/sells-group/company-search/pkg/anthropic"
)

type stubProvider struct {
	name      string
	available bool
	calls     atomic.Int32
	last      atomic.Pointer[provider.Query]
	fn        func(q provider.Query) ([]company.Candidate, error)
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Available() bool { return s.available }

func (s *stubProvider) Search(_ context.Context, q provider.Query) ([]company.Candidate, error) {
	s.calls.Add(1)
	s.last.Store(&q)
	return s.fn(q)
}

func returning(cands ...company.Candidate) func(provider.Query) ([]company.Candidate, error) {
	return func(provider.Query) ([]company.Candidate, error) { return cands, nil }
}

type stubAnthropic struct {
	text string
	err  error
}

func (s *stubAnthropic) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &anthropic.MessageResponse{
		Model:   summary.DefaultModel,
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}, nil
}

// newTestEnv wires an appEnv over an in-memory cache and the given providers.
// A nil client leaves summaries unconfigured.
func newTestEnv(t *testing.T, client anthropic.Client, providers ...provider.Provider) *appEnv {
	t.Helper()
	rc := cache.New(cache.NewMemory(100))
	t.Cleanup(func() { rc.Close() }) //nolint:errcheck

	breakers := resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	reg := provider.NewRegistry(providers...)
	return &appEnv{
		Cache:     rc,
		Breakers:  breakers,
		Registry:  reg,
		Search:    search.New(reg, breakers, rc, search.Config{TTL: cache.DefaultPolicy()}),
		Summaries: summary.NewService(client, nil, breakers, rc, summary.Config{}),
	}
}

func intPtr(n int) *int { return &n }
