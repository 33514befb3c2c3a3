package provider

import (
	"context"
	"strings"

	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/domain"
	"github.com/sells-group/company-search/pkg/jina"
)

// Jina searches the web through Jina's search endpoint and treats each
// result's host as a company. Only the first result per host is kept and
// scores come from result rank.
type Jina struct {
	client jina.Client
	guard  *guard
}

// NewJina creates the Jina adapter. A nil client makes the adapter
// unavailable.
func NewJina(client jina.Client, opts Options) *Jina {
	return &Jina{client: client, guard: newGuard(company.SourceJina, opts)}
}

// Name implements Provider.
func (j *Jina) Name() string { return company.SourceJina }

// Available implements Provider.
func (j *Jina) Available() bool { return j.client != nil }

// Search implements Provider.
func (j *Jina) Search(ctx context.Context, q Query) ([]company.Candidate, error) {
	ctx, cancel := j.guard.withTimeout(ctx)
	defer cancel()

	limit := q.Filters.LimitOr(j.guard.maxRes)
	resp, err := call(ctx, j.guard, func(ctx context.Context) (*jina.SearchResponse, error) {
		return j.client.Search(ctx, q.Describe()+" company website", jina.WithCount(limit))
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var results []jina.SearchResult
	for _, r := range resp.Hits() {
		if j.guard.isDirectory(r.URL) {
			continue
		}
		host := domain.Normalize(r.URL)
		if seen[host] {
			continue
		}
		seen[host] = true
		results = append(results, r)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]company.Candidate, 0, len(results))
	for i, r := range results {
		out = append(out, company.Candidate{
			Domain:         r.URL,
			Name:           titleName(r.Title),
			Description:    r.Description,
			RelevanceScore: rankScore(i, len(results)),
			SourceTag:      company.SourceJina,
		})
	}
	return out, nil
}

// titleName trims the page-title suffix a site appends after its name,
// e.g. "Acme | Rockets for everyone" -> "Acme".
func titleName(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range []string{" | ", " - ", " – ", " — ", ": "} {
		if i := strings.Index(title, sep); i > 0 {
			title = title[:i]
		}
	}
	return strings.TrimSpace(title)
}
