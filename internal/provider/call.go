package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-search/internal/resilience"
)

// DefaultTimeout bounds a single adapter search, retries included.
const DefaultTimeout = 20 * time.Second

// DefaultMaxResults is the result cap used when a query sets no limit.
const DefaultMaxResults = 10

// Options configures the call discipline shared by every adapter.
type Options struct {
	// Timeout bounds one Search, including retries. Default: 20s.
	Timeout time.Duration
	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64
	// MaxResults caps candidates per call when the query has no limit.
	MaxResults int
	// Retry is applied to transient client errors inside one Search.
	Retry resilience.RetryConfig
	// DirectoryBlocklist lists root domains that identify directories and
	// social sites rather than companies.
	DirectoryBlocklist []string
}

// guard applies timeout, rate limiting and retries around client calls.
type guard struct {
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	maxRes  int
	blocked map[string]bool
}

func newGuard(name string, o Options) *guard {
	g := &guard{
		name:    name,
		timeout: o.Timeout,
		retry:   o.Retry,
		maxRes:  o.MaxResults,
		blocked: blocklist(o.DirectoryBlocklist),
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.maxRes <= 0 {
		g.maxRes = DefaultMaxResults
	}
	if o.RateLimit > 0 {
		burst := int(o.RateLimit)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), burst)
	}
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = resilience.RetryLogger(name, "search")
	}
	return g
}

// withTimeout derives the per-search deadline.
func (g *guard) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// wait blocks until the rate limiter admits one request.
func (g *guard) wait(ctx context.Context) error {
	if g.limiter == nil {
		return ctx.Err()
	}
	return eris.Wrapf(g.limiter.Wait(ctx), "%s: rate limit wait", g.name)
}

// call runs fn under the guard's rate limit and retry policy. Each attempt
// waits for the limiter.
func call[T any](ctx context.Context, g *guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
		if err := g.wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
}

// rankScore maps a result's position to a provider-native score in (0, 100]:
// the first of n results scores 100.
func rankScore(i, n int) *float64 {
	if n <= 0 {
		return nil
	}
	s := 100 * float64(n-i) / float64(n)
	return &s
}
