package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account represents a Salesforce Account record.
type Account struct {
	ID                string  `json:"Id" salesforce:"Id"`
	Name              string  `json:"Name" salesforce:"Name"`
	Website           string  `json:"Website" salesforce:"Website"`
	Industry          string  `json:"Industry" salesforce:"Industry"`
	Description       string  `json:"Description" salesforce:"Description"`
	BillingCity       string  `json:"BillingCity" salesforce:"BillingCity"`
	BillingState      string  `json:"BillingState" salesforce:"BillingState"`
	BillingCountry    string  `json:"BillingCountry" salesforce:"BillingCountry"`
	NumberOfEmployees int     `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
	AnnualRevenue     float64 `json:"AnnualRevenue" salesforce:"AnnualRevenue"`
	Type              string  `json:"Type" salesforce:"Type"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{
	"Id", "Name", "Website", "Industry", "Description",
	"BillingCity", "BillingState", "BillingCountry",
	"NumberOfEmployees", "AnnualRevenue", "Type",
}

// AccountSearch narrows SearchAccounts.
type AccountSearch struct {
	// Term is matched against Name and Website.
	Term         string
	Industries   []string
	States       []string
	MinEmployees int
	Limit        int
}

// SearchAccounts returns Accounts with a website whose name or website
// contains the search term, most recently modified first.
func SearchAccounts(ctx context.Context, c Client, s AccountSearch) ([]Account, error) {
	term := escapeLike(escapeSoql(strings.TrimSpace(s.Term)))
	where := []string{
		"Website != null",
		fmt.Sprintf("(Name LIKE '%%%s%%' OR Website LIKE '%%%s%%')", term, term),
	}
	if len(s.Industries) > 0 {
		where = append(where, fmt.Sprintf("Industry IN (%s)", quoteList(s.Industries)))
	}
	if len(s.States) > 0 {
		where = append(where, fmt.Sprintf("BillingState IN (%s)", quoteList(s.States)))
	}
	if s.MinEmployees > 0 {
		where = append(where, fmt.Sprintf("NumberOfEmployees >= %d", s.MinEmployees))
	}
	limit := s.Limit
	if limit <= 0 {
		limit = 20
	}

	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE %s ORDER BY LastModifiedDate DESC LIMIT %d",
		strings.Join(accountFields, ", "),
		strings.Join(where, " AND "),
		limit,
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: search accounts %q", s.Term))
	}
	return accounts, nil
}

// FindAccountByWebsite returns the first Account whose Website matches the
// LIKE pattern website, or nil if none does. Callers may include % wildcards.
func FindAccountByWebsite(ctx context.Context, c Client, website string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Website LIKE '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(website),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by website %s", website))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals
// to prevent injection.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

// escapeLike escapes LIKE wildcards in an already-escaped literal.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func quoteList(vals []string) string {
	quoted := make([]string, 0, len(vals))
	for _, v := range vals {
		quoted = append(quoted, "'"+escapeSoql(v)+"'")
	}
	return strings.Join(quoted, ", ")
}
