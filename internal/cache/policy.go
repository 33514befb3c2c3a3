package cache

import "time"

// Policy holds the TTL for each cached artifact. Artifacts go stale at
// different rates and cost different amounts to rebuild, so there is no
// global TTL.
type Policy struct {
	Search  time.Duration
	Similar time.Duration
	Summary time.Duration
}

// DefaultPolicy returns the production TTLs.
func DefaultPolicy() Policy {
	return Policy{
		Search:  15 * time.Minute,
		Similar: time.Hour,
		Summary: 24 * time.Hour,
	}
}

// TTL returns the TTL for a key namespace, or zero for unknown namespaces.
func (p Policy) TTL(namespace string) time.Duration {
	switch namespace {
	case NamespaceSearch:
		return p.Search
	case NamespaceSimilar:
		return p.Similar
	case NamespaceSummary:
		return p.Summary
	default:
		return 0
	}
}
