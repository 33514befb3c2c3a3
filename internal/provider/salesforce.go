package provider

import (
	"context"
	"strings"

	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/domain"
	"github.com/sells-group/company-search/pkg/salesforce"
)

// Salesforce searches existing CRM accounts. CRM matches carry no
// relevance score.
type Salesforce struct {
	client salesforce.Client
	guard  *guard
}

// NewSalesforce creates the CRM adapter. A nil client makes the adapter
// unavailable.
func NewSalesforce(client salesforce.Client, opts Options) *Salesforce {
	return &Salesforce{client: client, guard: newGuard(company.SourceSalesforce, opts)}
}

// Name implements Provider.
func (s *Salesforce) Name() string { return company.SourceSalesforce }

// Available implements Provider.
func (s *Salesforce) Available() bool { return s.client != nil }

// Search implements Provider. A query that is itself a domain resolves to
// the account owning that website before falling back to a term search.
func (s *Salesforce) Search(ctx context.Context, q Query) ([]company.Candidate, error) {
	ctx, cancel := s.guard.withTimeout(ctx)
	defer cancel()

	var accounts []salesforce.Account
	if d := domainQuery(q.Text); d != "" {
		acct, err := call(ctx, s.guard, func(ctx context.Context) (*salesforce.Account, error) {
			return salesforce.FindAccountByWebsite(ctx, s.client, "%"+d+"%")
		})
		if err != nil {
			return nil, err
		}
		if acct != nil && domain.SameCompany(acct.Website, d) {
			accounts = []salesforce.Account{*acct}
		}
	}

	if len(accounts) == 0 {
		found, err := call(ctx, s.guard, func(ctx context.Context) ([]salesforce.Account, error) {
			return salesforce.SearchAccounts(ctx, s.client, salesforce.AccountSearch{
				Term:         q.Text,
				Industries:   q.Filters.Industries,
				States:       q.Filters.Regions,
				MinEmployees: q.Filters.MinEmployees,
				Limit:        q.Filters.LimitOr(s.guard.maxRes),
			})
		})
		if err != nil {
			return nil, err
		}
		accounts = found
	}

	out := make([]company.Candidate, 0, len(accounts))
	for _, a := range accounts {
		if a.Website == "" {
			continue
		}
		c := company.Candidate{
			Domain:      a.Website,
			Name:        a.Name,
			Industry:    a.Industry,
			Region:      accountRegion(a),
			Description: a.Description,
			SourceTag:   company.SourceSalesforce,
		}
		if a.NumberOfEmployees > 0 {
			c.EmployeeCount = company.Employees(a.NumberOfEmployees)
		}
		if !q.Filters.AllowsEmployees(c.EmployeeCount) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func accountRegion(a salesforce.Account) string {
	switch {
	case a.BillingCity != "" && a.BillingState != "":
		return a.BillingCity + ", " + a.BillingState
	case a.BillingState != "":
		return a.BillingState
	default:
		return a.BillingCountry
	}
}

// domainQuery returns the normalized domain when text is a bare domain or
// URL, and "" for free text.
func domainQuery(text string) string {
	t := strings.TrimSpace(text)
	if t == "" || strings.ContainsAny(t, " \t") {
		return ""
	}
	d := domain.Normalize(t)
	if !strings.Contains(d, ".") || strings.ContainsAny(d, "[:/ ") {
		return ""
	}
	return d
}
