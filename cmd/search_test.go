package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-search/internal/company"
	"github.com/sells-group/company-search/internal/search"
)

func sampleResult() *search.Result {
	score := 87.5
	return &search.Result{
		SearchID: "s-1",
		Records: []company.CompanyRecord{{
			NormalizedDomain:   "acme.com",
			Name:               "Acme",
			Sources:            []string{"jina", "google"},
			BestRelevanceScore: &score,
		}},
	}
}

func TestWriteOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", sampleResult()))

	assert.Contains(t, buf.String(), `"search_id": "s-1"`)
	assert.Contains(t, buf.String(), `"domain": "acme.com"`)
	assert.Contains(t, buf.String(), "\n  ", "indented")
}

func TestWriteOutput_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "search_id: s-1")
	assert.Contains(t, out, "domain: acme.com")
	assert.Contains(t, out, "best_relevance_score: 87.5")
	assert.Contains(t, out, "- jina")
	assert.NotContains(t, out, "NormalizedDomain")
}

func TestWriteOutput_DefaultIsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "", map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}

func TestWriteOutput_UnknownFormat(t *testing.T) {
	err := writeOutput(&bytes.Buffer{}, "xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestFiltersFromFlags(t *testing.T) {
	searchIndustries = []string{"saas"}
	searchRegions = []string{"TX", "OK"}
	searchMinEmployees = 10
	searchMaxEmployees = 0
	searchLimit = 3
	t.Cleanup(func() {
		searchIndustries, searchRegions = nil, nil
		searchMinEmployees, searchLimit = 0, 0
	})

	f := filtersFromFlags()
	assert.Equal(t, []string{"saas"}, f.Industries)
	assert.Equal(t, []string{"TX", "OK"}, f.Regions)
	assert.Equal(t, 10, f.MinEmployees)
	assert.Equal(t, 3, f.Limit)
}
