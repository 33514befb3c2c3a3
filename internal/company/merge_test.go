package company

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidate_DedupByNormalizedDomain(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", Name: "Acme", SourceTag: "x"},
		{Domain: "https://www.acme.com/", Name: "Acme Corp", SourceTag: "y"},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	assert.Equal(t, "acme.com", out[0].NormalizedDomain)
	assert.Equal(t, []string{"x", "y"}, out[0].Sources)
	assert.Equal(t, "Acme", out[0].Name, "first non-empty value wins")
}

func TestConsolidate_FieldMergeFillsGaps(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", SourceTag: "x"},
		{Domain: "ACME.COM", SourceTag: "y", Industry: "Tech", Region: "TX", EmployeeCount: Employees(120)},
		{Domain: "acme.com/", SourceTag: "z", Industry: "Manufacturing", EmployeeCount: Employees(999)},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	r := out[0]
	assert.Equal(t, "Tech", r.Industry)
	assert.Equal(t, "TX", r.Region)
	require.NotNil(t, r.EmployeeCount)
	assert.Equal(t, 120, *r.EmployeeCount)
}

func TestConsolidate_BlankValuesNeverOverwrite(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", Description: "Widgets", SourceTag: "x"},
		{Domain: "acme.com", Description: "   ", SourceTag: "y"},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	assert.Equal(t, "Widgets", out[0].Description)
}

func TestConsolidate_WhitespaceOnlyIsEmpty(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", Name: "  ", SourceTag: "x"},
		{Domain: "acme.com", Name: " Acme ", SourceTag: "y"},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	assert.Equal(t, "Acme", out[0].Name)
}

func TestConsolidate_ZeroEmployeeCountIsEmpty(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", EmployeeCount: Employees(0), SourceTag: "x"},
		{Domain: "acme.com", EmployeeCount: Employees(40), SourceTag: "y"},
	}

	out := Consolidate(in, 0)

	require.NotNil(t, out[0].EmployeeCount)
	assert.Equal(t, 40, *out[0].EmployeeCount)
}

func TestConsolidate_UnicodeComposed(t *testing.T) {
	// Decomposed e followed by a combining acute accent.
	in := []Candidate{{Domain: "cafe.fr", Name: "Cafe\u0301", SourceTag: "x"}}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	assert.Equal(t, "Caf\u00e9", out[0].Name)
}

func TestConsolidate_SourcesUnionCollapsesDuplicates(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", SourceTag: "jina"},
		{Domain: "acme.com", SourceTag: "google"},
		{Domain: "acme.com", SourceTag: "jina"},
		{Domain: "acme.com", SourceTag: ""},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	assert.Equal(t, []string{"jina", "google"}, out[0].Sources)
}

func TestConsolidate_BestScoreIsMax(t *testing.T) {
	in := []Candidate{
		{Domain: "acme.com", RelevanceScore: Score(40), SourceTag: "x"},
		{Domain: "acme.com", SourceTag: "y"},
		{Domain: "acme.com", RelevanceScore: Score(75), SourceTag: "z"},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].BestRelevanceScore)
	assert.InDelta(t, 75.0, *out[0].BestRelevanceScore, 1e-9)
}

func TestConsolidate_RelevanceFloor(t *testing.T) {
	in := []Candidate{
		{Domain: "low.com", RelevanceScore: Score(10), SourceTag: "x"},
		{Domain: "high.com", RelevanceScore: Score(80), SourceTag: "x"},
		{Domain: "edge.com", RelevanceScore: Score(50), SourceTag: "x"},
	}

	out := Consolidate(in, 50)

	domains := make([]string, 0, len(out))
	for _, r := range out {
		domains = append(domains, r.NormalizedDomain)
	}
	assert.Equal(t, []string{"high.com", "edge.com"}, domains)
}

func TestConsolidate_MissingScoreNeverDisqualifies(t *testing.T) {
	in := []Candidate{
		{Domain: "unscored.com", SourceTag: "salesforce"},
		{Domain: "scored.com", RelevanceScore: Score(90), SourceTag: "x"},
	}

	out := Consolidate(in, 50)

	require.Len(t, out, 2)
	assert.Equal(t, "scored.com", out[0].NormalizedDomain)
	assert.Equal(t, "unscored.com", out[1].NormalizedDomain, "missing scores sort last")
	assert.Nil(t, out[1].BestRelevanceScore)
}

func TestConsolidate_FloorZeroDisablesFiltering(t *testing.T) {
	in := []Candidate{
		{Domain: "a.com", RelevanceScore: Score(-5), SourceTag: "x"},
		{Domain: "b.com", RelevanceScore: Score(0), SourceTag: "x"},
	}

	assert.Len(t, Consolidate(in, 0), 2)
}

func TestConsolidate_FloorIsMonotonic(t *testing.T) {
	in := []Candidate{
		{Domain: "a.com", RelevanceScore: Score(5), SourceTag: "x"},
		{Domain: "b.com", RelevanceScore: Score(25), SourceTag: "x"},
		{Domain: "c.com", SourceTag: "x"},
		{Domain: "d.com", RelevanceScore: Score(60), SourceTag: "x"},
		{Domain: "www.b.com", RelevanceScore: Score(95), SourceTag: "y"},
	}

	prev := len(Consolidate(in, 0))
	for _, floor := range []float64{1, 5, 10, 25, 50, 60, 90, 95, 100} {
		n := len(Consolidate(in, floor))
		assert.LessOrEqual(t, n, prev, "floor %v", floor)
		prev = n
	}
}

func TestConsolidate_OrderStableOnTies(t *testing.T) {
	in := []Candidate{
		{Domain: "first.com", RelevanceScore: Score(50), SourceTag: "x"},
		{Domain: "top.com", RelevanceScore: Score(90), SourceTag: "x"},
		{Domain: "second.com", RelevanceScore: Score(50), SourceTag: "x"},
		{Domain: "third.com", RelevanceScore: Score(50), SourceTag: "x"},
	}

	out := Consolidate(in, 0)

	domains := make([]string, 0, len(out))
	for _, r := range out {
		domains = append(domains, r.NormalizedDomain)
	}
	assert.Equal(t, []string{"top.com", "first.com", "second.com", "third.com"}, domains)
}

func TestConsolidate_Deterministic(t *testing.T) {
	in := []Candidate{
		{Domain: "b.com", RelevanceScore: Score(1), SourceTag: "x"},
		{Domain: "a.com", RelevanceScore: Score(1), SourceTag: "y"},
		{Domain: "www.b.com", Name: "B", SourceTag: "z"},
	}
	assert.Equal(t, Consolidate(in, 0), Consolidate(in, 0))
}

func TestConsolidate_SkipsEmptyDomains(t *testing.T) {
	in := []Candidate{
		{Domain: "", Name: "Nameless", SourceTag: "x"},
		{Domain: "   ", SourceTag: "x"},
		{Domain: "acme.com", SourceTag: "x"},
	}

	out := Consolidate(in, 0)

	require.Len(t, out, 1)
	assert.Equal(t, "acme.com", out[0].NormalizedDomain)
}

func TestConsolidate_Empty(t *testing.T) {
	out := Consolidate(nil, 50)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestConsolidate_DoesNotAliasInput(t *testing.T) {
	score := 10.0
	n := 5
	in := []Candidate{{Domain: "acme.com", RelevanceScore: &score, EmployeeCount: &n, SourceTag: "x"}}

	out := Consolidate(in, 0)
	score = 99
	n = 1

	assert.InDelta(t, 10.0, *out[0].BestRelevanceScore, 1e-9)
	assert.Equal(t, 5, *out[0].EmployeeCount)
}

func TestCompanyRecord_HasSource(t *testing.T) {
	r := CompanyRecord{Sources: []string{SourceJina, SourceGoogle}}
	assert.True(t, r.HasSource(SourceGoogle))
	assert.False(t, r.HasSource(SourcePerplexity))
}
