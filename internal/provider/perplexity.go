package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/pkg/perplexity"
)

const perplexitySystemPrompt = `You are a B2B company research assistant. Answer only with a JSON array.
Each element is an object with the keys "name", "domain", "industry", "region",
"employee_count" (integer or null), "description" (one sentence) and
"relevance" (0-100, how well the company matches the request).
Only include real companies with a working website domain.`

// Perplexity searches companies through Perplexity's online chat model.
type Perplexity struct {
	client perplexity.Client
	guard  *guard
}

// NewPerplexity creates the Perplexity adapter. A nil client makes the
// adapter unavailable.
func NewPerplexity(client perplexity.Client, opts Options) *Perplexity {
	return &Perplexity{client: client, guard: newGuard(company.SourcePerplexity, opts)}
}

// Name implements Provider.
func (p *Perplexity) Name() string { return company.SourcePerplexity }

// Available implements Provider.
func (p *Perplexity) Available() bool { return p.client != nil }

// Search implements Provider.
func (p *Perplexity) Search(ctx context.Context, q Query) ([]company.Candidate, error) {
	ctx, cancel := p.guard.withTimeout(ctx)
	defer cancel()

	limit := q.Filters.LimitOr(p.guard.maxRes)
	req := perplexity.Prompt(perplexitySystemPrompt,
		fmt.Sprintf("List up to %d companies: %s", limit, q.Describe()), 0.1)

	resp, err := call(ctx, p.guard, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return p.client.ChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	var rows []perplexityCompany
	if err := json.Unmarshal(resp.JSONArray(), &rows); err != nil {
		return nil, eris.Wrap(err, "perplexity: parse company list")
	}

	out := make([]company.Candidate, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Domain) == "" || p.guard.isDirectory(r.Domain) {
			continue
		}
		c := company.Candidate{
			Domain:         r.Domain,
			Name:           r.Name,
			Industry:       r.Industry,
			Region:         r.Region,
			Description:    r.Description,
			RelevanceScore: r.Relevance,
			SourceTag:      company.SourcePerplexity,
		}
		if r.EmployeeCount != nil && *r.EmployeeCount > 0 {
			c.EmployeeCount = company.Employees(*r.EmployeeCount)
		}
		if !q.Filters.AllowsEmployees(c.EmployeeCount) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type perplexityCompany struct {
	Name          string   `json:"name"`
	Domain        string   `json:"domain"`
	Industry      string   `json:"industry"`
	Region        string   `json:"region"`
	EmployeeCount *int     `json:"employee_count"`
	Description   string   `json:"description"`
	Relevance     *float64 `json:"relevance"`
}
