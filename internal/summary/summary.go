// Package summary generates short company profiles with Anthropic and caches
// them per normalized domain.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/domain"
	"github.com/sells-group/company-search/internal/resilience"
	"github.com/sells-group/company-search/pkg/anthropic"
	"github.com/sells-group/company-search/pkg/jina"
)

// BreakerName is the circuit breaker key for summary generation.
const BreakerName = "anthropic"

// Defaults for Config.
const (
	DefaultModel        = "claude-haiku-4-5-20251001"
	DefaultMaxTokens    = 400
	DefaultContextChars = 8000
)

var (
	// ErrEmptyDomain is returned when Summarize gets no usable domain.
	ErrEmptyDomain = eris.New("summary: domain is required")
	// ErrUnavailable is returned when no Anthropic client is configured.
	ErrUnavailable = eris.New("summary: anthropic is not configured")
	// ErrCircuitOpen is returned while the anthropic circuit is open.
	ErrCircuitOpen = eris.New("summary: anthropic circuit is open")
)

const systemPrompt = `You write concise company profiles for B2B sales research.
Given a company domain and, when available, the text of its website, answer with
three to five plain sentences covering what the company does, who it sells to,
where it operates and roughly how large it is. Do not use markdown. If the
material is insufficient, say what is known and stop.`

// Summary is a generated company profile.
type Summary struct {
	Domain       string    `json:"domain"`
	Text         string    `json:"summary"`
	Model        string    `json:"model"`
	SourceURL    string    `json:"source_url,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Truncated    bool      `json:"truncated,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
	Cached       bool      `json:"cached"`
}

// Config tunes summary generation.
type Config struct {
	Model     string
	MaxTokens int64
	// TTL is how long a summary stays cached.
	TTL time.Duration
	// ContextChars caps the website text sent with the prompt.
	ContextChars int
	Retry        resilience.RetryConfig
}

// Service generates and caches summaries. The reader is optional; without
// it summaries are written from the domain alone.
type Service struct {
	client   anthropic.Client
	reader   jina.Client
	breakers *resilience.Breakers
	cache    *cache.Cache
	cfg      Config

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewService creates a summary service.
func NewService(client anthropic.Client, reader jina.Client, breakers *resilience.Breakers, c *cache.Cache, cfg Config) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TTL <= 0 {
		cfg.TTL = cache.DefaultPolicy().Summary
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = DefaultContextChars
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger(BreakerName, "summarize")
	}
	return &Service{
		client:   client,
		reader:   reader,
		breakers: breakers,
		cache:    c,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// Key returns the cache key for a normalized domain.
func Key(normalized string) string {
	return cache.NamespaceSummary + ":" + normalized
}

// Summarize returns the cached summary for raw's normalized domain, or
// generates and caches a new one. Unlike search, failures are returned.
func (s *Service) Summarize(ctx context.Context, raw string) (*Summary, error) {
	d := domain.Normalize(raw)
	if d == "" {
		return nil, ErrEmptyDomain
	}
	key := Key(d)
	log := zap.L().With(zap.String("domain", d))

	var cached Summary
	if s.cache.Get(ctx, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	if s.client == nil {
		return nil, ErrUnavailable
	}
	if s.breakers.IsOpen(BreakerName) {
		return nil, ErrCircuitOpen
	}

	page, sourceURL := s.readSite(ctx, d)

	req := anthropic.SingleTurn(s.cfg.Model, s.cfg.MaxTokens, systemPrompt, userPrompt(d, page))
	resp, err := resilience.DoVal(ctx, s.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err == nil && strings.TrimSpace(resp.Text()) == "" {
		err = eris.New("summary: empty completion")
	}
	if err != nil {
		if ctx.Err() == nil {
			s.breakers.RecordFailure(BreakerName)
		}
		log.Warn("summary generation failed", zap.Error(err))
		return nil, eris.Wrapf(err, "summary: summarize %s", d)
	}
	s.breakers.RecordSuccess(BreakerName)
	resp.Usage.LogCost(s.cfg.Model, "summary")

	out := &Summary{
		Domain:       d,
		Text:         strings.TrimSpace(resp.Text()),
		Model:        s.cfg.Model,
		SourceURL:    sourceURL,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      resp.Usage.EstimateCost(s.cfg.Model),
		Truncated:    resp.Truncated(),
		GeneratedAt:  s.nowFunc().UTC(),
	}
	s.cache.Set(ctx, key, out, s.cfg.TTL)
	log.Info("summary generated",
		zap.Int64("output_tokens", out.OutputTokens),
		zap.Bool("truncated", out.Truncated))
	return out, nil
}

// readSite fetches the company homepage through the reader, gated by the
// reader's own circuit. Any failure yields empty context.
func (s *Service) readSite(ctx context.Context, d string) (content, sourceURL string) {
	if s.reader == nil || s.breakers.IsOpen(company.SourceJina) {
		return "", ""
	}
	target := "https://" + d
	resp, err := s.reader.Read(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			s.breakers.RecordFailure(company.SourceJina)
		}
		zap.L().Warn("summary: site read failed, continuing without it",
			zap.String("domain", d), zap.Error(err))
		return "", ""
	}
	s.breakers.RecordSuccess(company.SourceJina)

	content = resp.Excerpt(s.cfg.ContextChars)
	if content == "" {
		return "", ""
	}
	sourceURL = resp.Data.URL
	if sourceURL == "" {
		sourceURL = target
	}
	return content, sourceURL
}

func userPrompt(d, page string) string {
	if page == "" {
		return fmt.Sprintf("Company domain: %s", d)
	}
	return fmt.Sprintf("Company domain: %s\n\nWebsite content:\n%s", d, page)
}

// Cached returns every live cached summary, ordered by domain.
func (s *Service) Cached(ctx context.Context) []Summary {
	out := cache.Scan[Summary](ctx, s.cache, cache.NamespaceSummary+":")
	for i := range out {
		out[i].Cached = true
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
