package search

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/domain"
	"github.com/sells-group/company-search/internal/provider"
)

// ErrEmptySeed is returned when Similar is called without a seed domain.
var ErrEmptySeed = eris.New("search: seed domain is required")

// Similar finds peers of the company at seed. It runs the same pipeline as
// Search in its own cache namespace, then drops every record sharing the
// seed's root domain, so eu.acme.com is never a peer of acme.com.
func (o *Orchestrator) Similar(ctx context.Context, seed string, filters provider.Filters) (*Result, error) {
	root := domain.RootDomain(seed)
	if root == "" {
		return nil, ErrEmptySeed
	}

	q := provider.Query{
		Text:    fmt.Sprintf("companies similar to %s", root),
		Filters: filters,
	}
	return o.run(ctx, KindSimilar, q, func(r company.CompanyRecord) bool {
		return domain.RootDomain(r.NormalizedDomain) != root
	})
}
