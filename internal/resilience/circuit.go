// Package resilience provides the per-provider circuit breaker and the
// transient-error and retry helpers used by provider adapters.
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitStatus is the state of a single provider's circuit.
type CircuitStatus int

const (
	// CircuitClosed is the normal operating state: calls flow through.
	CircuitClosed CircuitStatus = iota
	// CircuitOpen means the provider is failing: calls are skipped.
	CircuitOpen
	// CircuitHalfOpen admits a single probe call to test recovery.
	CircuitHalfOpen
)

func (s CircuitStatus) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON and YAML output.
func (s CircuitStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *CircuitStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "closed":
		*s = CircuitClosed
	case "open":
		*s = CircuitOpen
	case "half_open":
		*s = CircuitHalfOpen
	default:
		return eris.Errorf("resilience: unknown circuit status %q", b)
	}
	return nil
}

const (
	// DefaultFailureThreshold is the number of consecutive failures that opens a circuit.
	DefaultFailureThreshold = 3
	// DefaultOpenDuration is how long a circuit stays open after its last failure.
	DefaultOpenDuration = 60 * time.Second
)

// CircuitState is the stored breaker record for one provider.
// Invariant: Status == CircuitOpen implies ConsecutiveFailures >= threshold.
type CircuitState struct {
	Status              CircuitStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailureAt       *time.Time    `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time    `json:"last_success_at,omitempty"`

	// ProbeStartedAt is set when the circuit moves to half-open and a probe is
	// admitted. The probe lease expires after OpenDuration.
	ProbeStartedAt *time.Time `json:"probe_started_at,omitempty"`
}

// CircuitBreakerConfig controls breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 3.
	FailureThreshold int

	// OpenDuration is how long the circuit stays open, measured from the last
	// failure, before a probe is admitted. Default: 60s.
	OpenDuration time.Duration

	// OnStateChange is called, with the breaker lock held, whenever a
	// provider's circuit changes status. It must not call back into Breakers.
	OnStateChange func(provider string, from, to CircuitStatus)
}

// DefaultCircuitBreakerConfig returns the production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: DefaultFailureThreshold,
		OpenDuration:     DefaultOpenDuration,
	}
}

// Evaluate decides whether a call may proceed for a circuit in state s at
// time now, and returns the state that must be stored afterwards. It is a
// pure function; Breakers.IsOpen is its only caller outside tests.
//
//   - closed: allowed, unchanged.
//   - open, cooldown not elapsed: blocked, unchanged.
//   - open, cooldown elapsed: allowed once, moves to half_open.
//   - half_open with a live probe: blocked.
//   - half_open with an expired probe lease: allowed, lease restarted.
func Evaluate(s CircuitState, now time.Time, openDuration time.Duration) (next CircuitState, allowed bool) {
	switch s.Status {
	case CircuitOpen:
		if s.LastFailureAt != nil && now.Sub(*s.LastFailureAt) < openDuration {
			return s, false
		}
		s.Status = CircuitHalfOpen
		s.ProbeStartedAt = timePtr(now)
		return s, true
	case CircuitHalfOpen:
		if s.ProbeStartedAt != nil && now.Sub(*s.ProbeStartedAt) < openDuration {
			return s, false
		}
		s.ProbeStartedAt = timePtr(now)
		return s, true
	default:
		return s, true
	}
}

// Breakers is the process-wide circuit store keyed by provider name. It is
// constructed explicitly and injected so tests can build a fresh one per case.
// Records are created lazily on first failure and never removed.
type Breakers struct {
	cfg CircuitBreakerConfig

	mu     sync.Mutex
	states map[string]*CircuitState

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreakers creates an empty breaker store.
func NewBreakers(cfg CircuitBreakerConfig) *Breakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultOpenDuration
	}
	return &Breakers{
		cfg:     cfg,
		states:  make(map[string]*CircuitState),
		nowFunc: time.Now,
	}
}

// IsOpen reports whether calls to provider must be skipped. When an open
// circuit's cooldown has elapsed it moves to half-open and returns false for
// exactly one caller; that caller's outcome must be reported through
// RecordSuccess or RecordFailure. Call it once per decision point.
func (b *Breakers) IsOpen(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[provider]
	if !ok {
		return false
	}
	next, allowed := Evaluate(*s, b.nowFunc(), b.cfg.OpenDuration)
	if next.Status != s.Status {
		b.transition(provider, s.Status, next.Status)
	}
	*s = next
	return !allowed
}

// RecordSuccess resets the provider's circuit to closed with zero failures.
func (b *Breakers) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	s, ok := b.states[provider]
	if !ok {
		// Nothing to reset; avoid allocating records for healthy providers.
		return
	}
	if s.Status != CircuitClosed {
		b.transition(provider, s.Status, CircuitClosed)
	}
	s.Status = CircuitClosed
	s.ConsecutiveFailures = 0
	s.ProbeStartedAt = nil
	s.LastSuccessAt = timePtr(now)
}

// RecordFailure counts a failed call. Reaching the threshold, or failing a
// half-open probe, opens the circuit and restarts the cooldown.
func (b *Breakers) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	s, ok := b.states[provider]
	if !ok {
		s = &CircuitState{}
		b.states[provider] = s
	}

	s.ConsecutiveFailures++
	s.LastFailureAt = timePtr(now)

	if s.ConsecutiveFailures >= b.cfg.FailureThreshold && s.Status != CircuitOpen {
		b.transition(provider, s.Status, CircuitOpen)
		s.Status = CircuitOpen
		s.ProbeStartedAt = nil
	}
}

// State returns a copy of the provider's record. Providers without a record
// report a zero-valued closed state. State never performs the lazy
// open-to-half-open transition.
func (b *Breakers) State(provider string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[provider]; ok {
		return *s
	}
	return CircuitState{}
}

// Snapshot returns copies of every tracked circuit.
func (b *Breakers) Snapshot() map[string]CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]CircuitState, len(b.states))
	for name, s := range b.states {
		out[name] = *s
	}
	return out
}

// Providers returns the names of every tracked circuit, sorted.
func (b *Breakers) Providers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.states))
	for name := range b.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset forgets every circuit. Useful for testing or manual recovery.
func (b *Breakers) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, s := range b.states {
		if s.Status != CircuitClosed {
			b.transition(name, s.Status, CircuitClosed)
		}
	}
	b.states = make(map[string]*CircuitState)
}

// Config returns the effective breaker configuration.
func (b *Breakers) Config() CircuitBreakerConfig {
	return b.cfg
}

func (b *Breakers) transition(provider string, from, to CircuitStatus) {
	zap.L().Info("circuit state change",
		zap.String("provider", provider),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(provider, from, to)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
