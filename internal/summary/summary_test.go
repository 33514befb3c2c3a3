package summary

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-search/internal/cache"
	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/resilience"
	"github.com/sells-group/company-search/pkg/anthropic"
	"github.com/sells-group/company-search/pkg/jina"
)

type fakeAnthropic struct {
	calls atomic.Int32
	last  anthropic.MessageRequest
	fn    func(call int) (*anthropic.MessageResponse, error)
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.last = req
	return f.fn(int(f.calls.Add(1)))
}

func reply(text string) func(int) (*anthropic.MessageResponse, error) {
	return func(int) (*anthropic.MessageResponse, error) {
		return &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
			Usage:   anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 100},
		}, nil
	}
}

type fakeReader struct {
	calls atomic.Int32
	fn    func(url string) (*jina.ReadResponse, error)
}

func (f *fakeReader) Read(_ context.Context, url string) (*jina.ReadResponse, error) {
	f.calls.Add(1)
	return f.fn(url)
}

func (f *fakeReader) Search(context.Context, string, ...jina.SearchOption) (*jina.SearchResponse, error) {
	return nil, errors.New("not implemented")
}

func newTestService(t *testing.T, client anthropic.Client, reader jina.Client) (*Service, *resilience.Breakers, *cache.Cache) {
	t.Helper()
	b := resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	c := cache.New(cache.NewMemory(100))
	s := NewService(client, reader, b, c, Config{
		Retry: resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	s.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return s, b, c
}

func TestSummarize_GeneratesAndCaches(t *testing.T) {
	client := &fakeAnthropic{fn: reply("  Acme builds rockets for small satellites.  ")}
	reader := &fakeReader{fn: func(url string) (*jina.ReadResponse, error) {
		assert.Equal(t, "https://acme.com", url)
		return &jina.ReadResponse{Data: jina.ReadData{URL: "https://acme.com/", Content: "Acme: launch services."}}, nil
	}}
	s, b, c := newTestService(t, client, reader)

	got, err := s.Summarize(context.Background(), "https://www.Acme.com/about")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", got.Domain)
	assert.Equal(t, "Acme builds rockets for small satellites.", got.Text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "https://acme.com/", got.SourceURL)
	assert.Equal(t, int64(1000), got.InputTokens)
	assert.Greater(t, got.CostUSD, 0.0)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), got.GeneratedAt)
	assert.False(t, got.Cached)

	require.Len(t, client.last.Messages, 1)
	assert.Contains(t, client.last.Messages[0].Content, "Website content:\nAcme: launch services.")
	require.Len(t, client.last.System, 1)
	assert.NotNil(t, client.last.System[0].CacheControl)

	again, err := s.Summarize(context.Background(), "ACME.COM")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, got.Text, again.Text)
	assert.Equal(t, int32(1), client.calls.Load())
	assert.Equal(t, int32(1), reader.calls.Load())

	var stored Summary
	assert.True(t, c.Get(context.Background(), "summary:acme.com", &stored))
	assert.Equal(t, 0, b.State(BreakerName).ConsecutiveFailures)
}

func TestSummarize_FlagsTruncatedCompletion(t *testing.T) {
	client := &fakeAnthropic{fn: func(int) (*anthropic.MessageResponse, error) {
		return &anthropic.MessageResponse{
			Content:    []anthropic.ContentBlock{{Type: "text", Text: "Acme builds rockets and"}},
			StopReason: "max_tokens",
		}, nil
	}}
	s, _, _ := newTestService(t, client, nil)

	got, err := s.Summarize(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.True(t, got.Truncated)
}

func TestSummarize_WithoutReader(t *testing.T) {
	client := &fakeAnthropic{fn: reply("Globex sells widgets.")}
	s, _, _ := newTestService(t, client, nil)

	got, err := s.Summarize(context.Background(), "globex.com")
	require.NoError(t, err)
	assert.Empty(t, got.SourceURL)
	assert.Equal(t, "Company domain: globex.com", client.last.Messages[0].Content)
}

func TestSummarize_ReaderFailureIsNotFatal(t *testing.T) {
	client := &fakeAnthropic{fn: reply("Globex sells widgets.")}
	reader := &fakeReader{fn: func(string) (*jina.ReadResponse, error) {
		return nil, resilience.StatusError("jina", 451, []byte("blocked"))
	}}
	s, b, _ := newTestService(t, client, reader)

	got, err := s.Summarize(context.Background(), "globex.com")
	require.NoError(t, err)
	assert.Equal(t, "Globex sells widgets.", got.Text)
	assert.Equal(t, 1, b.State(company.SourceJina).ConsecutiveFailures)
}

func TestSummarize_TruncatesSiteContent(t *testing.T) {
	client := &fakeAnthropic{fn: reply("ok")}
	reader := &fakeReader{fn: func(string) (*jina.ReadResponse, error) {
		return &jina.ReadResponse{Data: jina.ReadData{Content: strings.Repeat("é", 50)}}, nil
	}}
	s, _, _ := newTestService(t, client, reader)
	s.cfg.ContextChars = 10

	got, err := s.Summarize(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", got.SourceURL)
	assert.True(t, strings.HasSuffix(client.last.Messages[0].Content, strings.Repeat("é", 10)))
}

func TestSummarize_FailureRecordsBreaker(t *testing.T) {
	client := &fakeAnthropic{fn: func(int) (*anthropic.MessageResponse, error) {
		return nil, errors.New("anthropic: create message: 400 invalid request")
	}}
	s, b, c := newTestService(t, client, nil)

	_, err := s.Summarize(context.Background(), "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary: summarize acme.com")
	assert.Equal(t, 1, b.State(BreakerName).ConsecutiveFailures)
	assert.Equal(t, int32(1), client.calls.Load())

	var stored Summary
	assert.False(t, c.Get(context.Background(), Key("acme.com"), &stored))
}

func TestSummarize_RetriesTransient(t *testing.T) {
	client := &fakeAnthropic{fn: func(call int) (*anthropic.MessageResponse, error) {
		if call == 1 {
			return nil, resilience.NewTransientError(errors.New("overloaded"), 529)
		}
		return reply("Acme.")(call)
	}}
	s, b, _ := newTestService(t, client, nil)

	got, err := s.Summarize(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme.", got.Text)
	assert.Equal(t, int32(2), client.calls.Load())
	assert.Equal(t, 0, b.State(BreakerName).ConsecutiveFailures)
}

func TestSummarize_EmptyCompletionIsAFailure(t *testing.T) {
	client := &fakeAnthropic{fn: reply("   ")}
	s, b, _ := newTestService(t, client, nil)

	_, err := s.Summarize(context.Background(), "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty completion")
	assert.Equal(t, 1, b.State(BreakerName).ConsecutiveFailures)
}

func TestSummarize_CircuitOpen(t *testing.T) {
	client := &fakeAnthropic{fn: reply("x")}
	s, b, _ := newTestService(t, client, nil)
	for i := 0; i < resilience.DefaultFailureThreshold; i++ {
		b.RecordFailure(BreakerName)
	}

	_, err := s.Summarize(context.Background(), "acme.com")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Zero(t, client.calls.Load())
}

func TestSummarize_InputErrors(t *testing.T) {
	s, _, _ := newTestService(t, nil, nil)

	_, err := s.Summarize(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrEmptyDomain))

	_, err = s.Summarize(context.Background(), "acme.com")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCached_ListsSummariesByDomain(t *testing.T) {
	client := &fakeAnthropic{fn: reply("profile")}
	s, _, c := newTestService(t, client, nil)

	for _, d := range []string{"globex.com", "acme.com"} {
		_, err := s.Summarize(context.Background(), d)
		require.NoError(t, err)
	}
	// Entries in other namespaces are not summaries.
	c.Set(context.Background(), "search:abc", []string{"x"}, time.Minute)

	got := s.Cached(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, "acme.com", got[0].Domain)
	assert.Equal(t, "globex.com", got[1].Domain)
	assert.True(t, got[0].Cached)
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(nil, nil, resilience.NewBreakers(resilience.CircuitBreakerConfig{}), cache.New(cache.NewMemory(1)), Config{})
	assert.Equal(t, DefaultModel, s.cfg.Model)
	assert.Equal(t, int64(DefaultMaxTokens), s.cfg.MaxTokens)
	assert.Equal(t, 24*time.Hour, s.cfg.TTL)
	assert.Equal(t, DefaultContextChars, s.cfg.ContextChars)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "summary:acme.com", Key("acme.com"))
}
