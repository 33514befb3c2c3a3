package provider

import (
	"strings"

	"github.com/sells-group/company-search/internal/domain"
)

// DefaultDirectoryBlocklist holds root domains whose pages describe other
// companies rather than being a company's own site.
var DefaultDirectoryBlocklist = []string{
	"linkedin.com",
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"youtube.com",
	"wikipedia.org",
	"crunchbase.com",
	"bloomberg.com",
	"zoominfo.com",
	"yelp.com",
	"glassdoor.com",
	"indeed.com",
	"bbb.org",
	"yellowpages.com",
	"google.com",
}

func blocklist(entries []string) map[string]bool {
	if len(entries) == 0 {
		entries = DefaultDirectoryBlocklist
	}
	m := make(map[string]bool, len(entries))
	for _, e := range entries {
		if root := domain.RootDomain(strings.TrimSpace(e)); root != "" {
			m[root] = true
		}
	}
	return m
}

// isDirectory reports whether website belongs to a blocked root domain.
func (g *guard) isDirectory(website string) bool {
	return g.blocked[domain.RootDomain(website)]
}
