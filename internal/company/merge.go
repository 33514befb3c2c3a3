package company

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/company-search/internal/domain"
)

// Consolidate collapses candidates that normalize to the same domain into one
// CompanyRecord each, drops records scoring below relevanceFloor, and orders
// the rest by best score descending. It is pure and deterministic for a given
// input order.
//
// Field merge is "first non-empty wins": a scalar field takes the value of the
// first candidate, in input order, that has one, and is never overwritten by a
// later candidate. Sources is the ordered, de-duplicated union of source tags.
// A missing score never wins the max and never disqualifies a record. A
// relevanceFloor <= 0 disables filtering. Candidates whose domain normalizes
// to the empty string have no identity and are skipped.
func Consolidate(candidates []Candidate, relevanceFloor float64) []CompanyRecord {
	type group struct {
		rec  CompanyRecord
		seen map[string]bool
	}

	index := make(map[string]int)
	var groups []*group

	for _, c := range candidates {
		key := domain.Normalize(c.Domain)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, &group{
				rec:  CompanyRecord{NormalizedDomain: key, Sources: []string{}},
				seen: make(map[string]bool),
			})
		}
		g := groups[i]
		mergeCandidate(&g.rec, c)
		if tag := strings.TrimSpace(c.SourceTag); tag != "" && !g.seen[tag] {
			g.seen[tag] = true
			g.rec.Sources = append(g.rec.Sources, tag)
		}
	}

	out := make([]CompanyRecord, 0, len(groups))
	for _, g := range groups {
		if !meetsFloor(g.rec.BestRelevanceScore, relevanceFloor) {
			continue
		}
		out = append(out, g.rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].BestRelevanceScore) > rank(out[j].BestRelevanceScore)
	})
	return out
}

// mergeCandidate folds c into r without overwriting populated fields.
func mergeCandidate(r *CompanyRecord, c Candidate) {
	fillString(&r.Name, c.Name)
	fillString(&r.Industry, c.Industry)
	fillString(&r.Region, c.Region)
	fillString(&r.Description, c.Description)

	if r.EmployeeCount == nil && c.EmployeeCount != nil && *c.EmployeeCount > 0 {
		n := *c.EmployeeCount
		r.EmployeeCount = &n
	}

	if s := c.RelevanceScore; s != nil && !math.IsNaN(*s) {
		if r.BestRelevanceScore == nil || *s > *r.BestRelevanceScore {
			v := *s
			r.BestRelevanceScore = &v
		}
	}
}

// fillString sets *dst to the cleaned v when *dst is still empty.
func fillString(dst *string, v string) {
	if *dst != "" {
		return
	}
	*dst = clean(v)
}

// clean trims whitespace and composes unicode so providers that emit
// decomposed accents produce the same text as those that do not.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return norm.NFC.String(s)
}

func meetsFloor(score *float64, floor float64) bool {
	if floor <= 0 || score == nil {
		return true
	}
	return *score >= floor
}

func rank(score *float64) float64 {
	if score == nil {
		return math.Inf(-1)
	}
	return *score
}
