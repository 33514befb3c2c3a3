package provider

import (
	"context"
	"strings"

	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/pkg/google"
)

// Google searches Google Places text search. Places without a website are
// skipped; scores come from result rank.
type Google struct {
	client google.Client
	guard  *guard
}

// NewGoogle creates the Google Places adapter. A nil client makes the
// adapter unavailable.
func NewGoogle(client google.Client, opts Options) *Google {
	return &Google{client: client, guard: newGuard(company.SourceGoogle, opts)}
}

// Name implements Provider.
func (g *Google) Name() string { return company.SourceGoogle }

// Available implements Provider.
func (g *Google) Available() bool { return g.client != nil }

// Search implements Provider.
func (g *Google) Search(ctx context.Context, q Query) ([]company.Candidate, error) {
	ctx, cancel := g.guard.withTimeout(ctx)
	defer cancel()

	limit := q.Filters.LimitOr(g.guard.maxRes)
	if limit > 20 {
		// Places text search pages hold at most 20 results.
		limit = 20
	}
	resp, err := call(ctx, g.guard, func(ctx context.Context) (*google.TextSearchResponse, error) {
		return g.client.TextSearch(ctx, google.TextSearchRequest{
			TextQuery: q.Describe(),
			PageSize:  limit,
		})
	})
	if err != nil {
		return nil, err
	}

	var places []google.Place
	for _, p := range resp.Places {
		if p.WebsiteURI == "" || g.guard.isDirectory(p.WebsiteURI) {
			continue
		}
		places = append(places, p)
	}

	out := make([]company.Candidate, 0, len(places))
	for i, p := range places {
		out = append(out, company.Candidate{
			Domain:         p.WebsiteURI,
			Name:           p.DisplayName.Text,
			Industry:       p.PrimaryTypeDisplayName.Text,
			Region:         addressRegion(p.FormattedAddress),
			RelevanceScore: rankScore(i, len(places)),
			SourceTag:      company.SourceGoogle,
		})
	}
	return out, nil
}

// addressRegion keeps the locality part of a formatted address, dropping
// the street line: "1 Main St, Austin, TX 78701, USA" -> "Austin, TX 78701, USA".
func addressRegion(addr string) string {
	parts := strings.Split(addr, ",")
	if len(parts) < 3 {
		return strings.TrimSpace(addr)
	}
	return strings.TrimSpace(strings.Join(parts[1:], ","))
}
