// Package monitoring watches provider circuit health and posts alerts to a
// webhook when circuits open, recover, or leave search with no healthy
// provider.
package monitoring

import (
	"time"

	"github.com/sells-group/company-search/internal/provider"
	"github.com/sells-group/company-search/internal/resilience"
)

// ProviderHealth is one circuit's status at collection time.
type ProviderHealth struct {
	Provider            string                   `json:"provider"`
	Available           bool                     `json:"available"`
	Searchable          bool                     `json:"searchable"`
	Status              resilience.CircuitStatus `json:"status"`
	ConsecutiveFailures int                      `json:"consecutive_failures"`
	LastFailureAt       *time.Time               `json:"last_failure_at,omitempty"`
}

// HealthSnapshot holds provider health at a point in time.
type HealthSnapshot struct {
	Providers []ProviderHealth `json:"providers"`
	// Healthy counts searchable providers that are available with a closed circuit.
	Healthy     int       `json:"healthy"`
	CollectedAt time.Time `json:"collected_at"`
}

// Lookup returns the named provider's health, if present.
func (s *HealthSnapshot) Lookup(name string) (ProviderHealth, bool) {
	if s == nil {
		return ProviderHealth{}, false
	}
	for _, p := range s.Providers {
		if p.Provider == name {
			return p, true
		}
	}
	return ProviderHealth{}, false
}

// Searchable reports whether the snapshot has any search provider registered.
func (s *HealthSnapshot) Searchable() bool {
	for _, p := range s.Providers {
		if p.Searchable {
			return true
		}
	}
	return false
}

// Collector reads circuit state for the registry's providers plus any extra
// circuits, such as the summary model.
type Collector struct {
	breakers *resilience.Breakers
	registry *provider.Registry
	extra    []string

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCollector creates a collector. Extra circuits are reported but never
// counted as healthy search providers.
func NewCollector(b *resilience.Breakers, reg *provider.Registry, extra ...string) *Collector {
	return &Collector{breakers: b, registry: reg, extra: extra, nowFunc: time.Now}
}

// Collect builds a snapshot. It reads stored state only and never moves an
// open circuit to half-open.
func (c *Collector) Collect() *HealthSnapshot {
	snap := &HealthSnapshot{CollectedAt: c.nowFunc().UTC()}

	for _, p := range c.registry.All() {
		h := c.health(p.Name())
		h.Available = p.Available()
		h.Searchable = true
		if h.Available && h.Status == resilience.CircuitClosed {
			snap.Healthy++
		}
		snap.Providers = append(snap.Providers, h)
	}
	for _, name := range c.extra {
		h := c.health(name)
		h.Available = true
		snap.Providers = append(snap.Providers, h)
	}
	return snap
}

func (c *Collector) health(name string) ProviderHealth {
	st := c.breakers.State(name)
	return ProviderHealth{
		Provider:            name,
		Status:              st.Status,
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastFailureAt:       st.LastFailureAt,
	}
}
