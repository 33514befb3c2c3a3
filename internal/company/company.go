// Package company defines the provider candidate and consolidated record
// types, and the consolidator that merges candidates into records.
package company

// Candidate is one company as returned by a single provider call. It lives
// only for the duration of one search.
type Candidate struct {
	Domain        string `json:"domain"`
	Name          string `json:"name"`
	Industry      string `json:"industry,omitempty"`
	Region        string `json:"region,omitempty"`
	EmployeeCount *int   `json:"employee_count,omitempty"`
	Description   string `json:"description,omitempty"`

	// RelevanceScore is provider-native and not comparable across providers;
	// it is an ordering hint only. Nil means the provider gave no score.
	RelevanceScore *float64 `json:"relevance_score,omitempty"`

	// SourceTag names the provider that produced the candidate.
	SourceTag string `json:"source"`
}

// CompanyRecord is the consolidated view of every candidate that normalized
// to the same domain. A result set holds exactly one record per
// NormalizedDomain.
type CompanyRecord struct { //nolint:revive // stutters but reads better at call sites
	NormalizedDomain string   `json:"domain"`
	Name             string   `json:"name"`
	Industry         string   `json:"industry,omitempty"`
	Region           string   `json:"region,omitempty"`
	EmployeeCount    *int     `json:"employee_count,omitempty"`
	Description      string   `json:"description,omitempty"`
	Sources          []string `json:"sources"`

	// BestRelevanceScore is the maximum score across the group. Nil when no
	// candidate in the group carried a score.
	BestRelevanceScore *float64 `json:"best_relevance_score,omitempty"`
}

// Known source tags.
const (
	SourcePerplexity = "perplexity"
	SourceJina       = "jina"
	SourceGoogle     = "google"
	SourceSalesforce = "salesforce"
)

// HasSource reports whether tag contributed to the record.
func (r CompanyRecord) HasSource(tag string) bool {
	for _, s := range r.Sources {
		if s == tag {
			return true
		}
	}
	return false
}

// Score returns a pointer to v, for building candidates in adapters and tests.
func Score(v float64) *float64 {
	return &v
}

// Employees returns a pointer to n, for building candidates in adapters and tests.
func Employees(n int) *int {
	return &n
}
