package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/config"
	"github.com/sells-group/company-search/internal/provider"
	"github.com/sells-group/company-search/internal/resilience"
	"github.com/sells-group/company-search/internal/search"
	"github.com/sells-group/company-search/internal/summary"
	"github.com/sells-group/company-search/pkg/anthropic"
	"github.com/sells-group/company-search/pkg/google"
	"github.com/sells-group/company-search/pkg/jina"
	"github.com/sells-group/company-search/pkg/perplexity"
	sfpkg "github.com/sells-group/company-search/pkg/salesforce"
)

// appEnv holds the cache, circuit store, providers and services shared by
// every command.
type appEnv struct {
	Cache     *cache.Cache
	Breakers  *resilience.Breakers
	Registry  *provider.Registry
	Search    *search.Orchestrator
	Summaries *summary.Service
}

// Close releases the cache backend.
func (e *appEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
}

// initApp validates cfg for mode and wires the application. Callers should
// defer env.Close().
func initApp(ctx context.Context, c *config.Config, mode string, opts ...search.Option) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	rc, err := cache.Open(ctx, c.CacheOptions())
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}
	return newApp(c, rc, opts...), nil
}

// newApp builds the providers and services over an open cache.
func newApp(c *config.Config, rc *cache.Cache, opts ...search.Option) *appEnv {
	breakers := resilience.NewBreakers(c.BreakerPolicy())
	registry := buildRegistry(c)
	policy := c.CachePolicy()

	orch := search.New(registry, breakers, rc, search.Config{
		RelevanceFloor: c.Search.RelevanceFloor,
		Coalesce:       c.Search.Coalesce,
		TTL:            policy,
	}, opts...)

	summaries := summary.NewService(anthropicClient(c), jinaClient(c), breakers, rc, summary.Config{
		Model:        c.Anthropic.Model,
		MaxTokens:    int64(c.Anthropic.MaxTokens),
		TTL:          policy.Summary,
		ContextChars: c.Anthropic.ContextChars,
		Retry:        c.RetryPolicy(),
	})

	zap.L().Info("company search ready",
		zap.Strings("providers", registry.List()),
		zap.Int("available", len(registry.Available())),
		zap.String("cache_backend", c.Cache.Backend),
	)

	return &appEnv{
		Cache:     rc,
		Breakers:  breakers,
		Registry:  registry,
		Search:    orch,
		Summaries: summaries,
	}
}

// buildRegistry registers every provider in fixed order. Providers that are
// disabled or lack credentials get a nil client and report unavailable.
func buildRegistry(c *config.Config) *provider.Registry {
	p := c.Providers
	opts := func(pc config.ProviderConfig) provider.Options {
		return provider.Options{
			Timeout:            pc.Timeout(),
			RateLimit:          pc.RateLimit,
			MaxResults:         pc.MaxResults,
			Retry:              c.RetryPolicy(),
			DirectoryBlocklist: c.Search.DirectoryBlocklist,
		}
	}

	var pplx perplexity.Client
	if p.Perplexity.Enabled && p.Perplexity.Key != "" {
		pplx = perplexity.NewClient(p.Perplexity.Key,
			perplexity.WithBaseURL(p.Perplexity.BaseURL),
			perplexity.WithModel(p.Perplexity.Model),
		)
	}

	var jn jina.Client
	if p.Jina.Enabled && p.Jina.Key != "" {
		jn = jinaClient(c)
	}

	var gp google.Client
	if p.Google.Enabled && p.Google.Key != "" {
		gp = google.NewClient(p.Google.Key, google.WithBaseURL(p.Google.BaseURL))
	}

	var sf sfpkg.Client
	if p.Salesforce.Enabled {
		client, err := initSalesforce(p.Salesforce)
		if err != nil {
			zap.L().Warn("salesforce provider disabled", zap.Error(err))
		} else {
			sf = client
		}
	}

	return provider.NewRegistry(
		provider.NewPerplexity(pplx, opts(p.Perplexity.ProviderConfig)),
		provider.NewJina(jn, opts(p.Jina.ProviderConfig)),
		provider.NewGoogle(gp, opts(p.Google.ProviderConfig)),
		provider.NewSalesforce(sf, opts(p.Salesforce.ProviderConfig)),
	)
}

// jinaClient returns a Jina client for search and page reads, or nil when no
// key is configured.
func jinaClient(c *config.Config) jina.Client {
	j := c.Providers.Jina
	if j.Key == "" {
		return nil
	}
	opts := []jina.Option{jina.WithSearchBaseURL(j.BaseURL)}
	if j.ReadBaseURL != "" {
		opts = append(opts, jina.WithBaseURL(j.ReadBaseURL))
	}
	return jina.NewClient(j.Key, opts...)
}

// anthropicClient returns nil when no key is configured. SDK retries are
// disabled; the summary service retries through resilience.DoVal.
func anthropicClient(c *config.Config) anthropic.Client {
	if c.Anthropic.Key == "" {
		return nil
	}
	opts := []anthropic.Option{anthropic.WithMaxRetries(0)}
	if c.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(c.Anthropic.BaseURL))
	}
	return anthropic.NewClient(c.Anthropic.Key, opts...)
}

// initSalesforce authenticates with the JWT bearer flow.
func initSalesforce(sc config.SalesforceConfig) (sfpkg.Client, error) {
	if sc.ClientID == "" || sc.Username == "" {
		return nil, eris.New("salesforce client ID and username are required (SEARCH_PROVIDERS_SALESFORCE_CLIENT_ID, SEARCH_PROVIDERS_SALESFORCE_USERNAME)")
	}
	client, err := sfpkg.Connect(sfpkg.Credentials{
		LoginURL: sc.LoginURL,
		Username: sc.Username,
		ClientID: sc.ClientID,
		KeyPath:  sc.KeyPath,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}
	return client, nil
}
