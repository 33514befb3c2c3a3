// Package provider defines the company search capability each external data
// source implements, an ordered registry of providers, and the adapters that
// wrap the pkg clients.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sells-group/company-search/internal/company"
)

// Filters narrows a search. Zero values mean "no constraint".
type Filters struct {
	Industries   []string `json:"industries,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	MinEmployees int      `json:"min_employees,omitempty"`
	MaxEmployees int      `json:"max_employees,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// Query is a free-text company search plus structured filters.
type Query struct {
	Text    string  `json:"text"`
	Filters Filters `json:"filters"`
}

// Describe renders the query as one natural-language sentence for providers
// that only accept free text.
func (q Query) Describe() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(q.Text))
	f := q.Filters
	if len(f.Industries) > 0 {
		fmt.Fprintf(&b, " in the %s industry", strings.Join(f.Industries, " or "))
	}
	if len(f.Regions) > 0 {
		fmt.Fprintf(&b, " located in %s", strings.Join(f.Regions, " or "))
	}
	switch {
	case f.MinEmployees > 0 && f.MaxEmployees > 0:
		fmt.Fprintf(&b, " with %d to %d employees", f.MinEmployees, f.MaxEmployees)
	case f.MinEmployees > 0:
		fmt.Fprintf(&b, " with at least %d employees", f.MinEmployees)
	case f.MaxEmployees > 0:
		fmt.Fprintf(&b, " with at most %d employees", f.MaxEmployees)
	}
	return b.String()
}

// LimitOr returns the filter limit, or def when unset.
func (f Filters) LimitOr(def int) int {
	if f.Limit > 0 {
		return f.Limit
	}
	return def
}

// AllowsEmployees reports whether a known employee count satisfies the
// min/max filters. Unknown counts are always allowed.
func (f Filters) AllowsEmployees(n *int) bool {
	if n == nil {
		return true
	}
	if f.MinEmployees > 0 && *n < f.MinEmployees {
		return false
	}
	if f.MaxEmployees > 0 && *n > f.MaxEmployees {
		return false
	}
	return true
}

// Provider is an external company data source. Search may fail or take
// arbitrarily long; adapters bound each call with their own timeout.
type Provider interface {
	// Name returns the provider identifier, also used as the source tag and
	// the circuit breaker key.
	Name() string
	// Available reports whether the provider is configured for use.
	Available() bool
	// Search returns the provider's candidates for q.
	Search(ctx context.Context, q Query) ([]company.Candidate, error)
}

// Registry holds providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. Registering a name twice replaces the earlier
// provider in place.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns every registered provider in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// Available returns the providers whose Available check passes, in
// registration order.
func (r *Registry) Available() []Provider {
	var out []Provider
	for _, p := range r.All() {
		if p.Available() {
			out = append(out, p)
		}
	}
	return out
}
