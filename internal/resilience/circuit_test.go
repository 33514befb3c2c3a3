package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBreakers returns a store with a controllable clock.
func newTestBreakers(t *testing.T, cfg CircuitBreakerConfig) (*Breakers, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreakers(cfg)
	b.nowFunc = func() time.Time { return now }
	return b, &now
}

func TestBreakers_UnknownProviderIsClosed(t *testing.T) {
	b, _ := newTestBreakers(t, DefaultCircuitBreakerConfig())

	assert.False(t, b.IsOpen("perplexity"))
	assert.Equal(t, CircuitClosed, b.State("perplexity").Status)
	assert.Empty(t, b.Providers(), "records are created lazily on first failure")
}

func TestBreakers_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreakers(t, DefaultCircuitBreakerConfig())

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		b.RecordFailure("jina")
		assert.False(t, b.IsOpen("jina"), "still closed after %d failures", i+1)
	}

	b.RecordFailure("jina")
	assert.True(t, b.IsOpen("jina"))

	st := b.State("jina")
	assert.Equal(t, CircuitOpen, st.Status)
	assert.Equal(t, DefaultFailureThreshold, st.ConsecutiveFailures)
	require.NotNil(t, st.LastFailureAt)
}

func TestBreakers_SuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreakers(t, DefaultCircuitBreakerConfig())

	b.RecordFailure("google")
	b.RecordFailure("google")
	b.RecordSuccess("google")

	st := b.State("google")
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, CircuitClosed, st.Status)
	require.NotNil(t, st.LastSuccessAt)

	// Isolated failures below threshold keep it closed.
	b.RecordFailure("google")
	b.RecordFailure("google")
	assert.False(t, b.IsOpen("google"))
}

func TestBreakers_SuccessClosesOpenCircuit(t *testing.T) {
	b, _ := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("google")
	}
	require.True(t, b.IsOpen("google"))

	b.RecordSuccess("google")
	assert.False(t, b.IsOpen("google"))
	assert.Equal(t, 0, b.State("google").ConsecutiveFailures)
}

func TestBreakers_HalfOpenExactlyOncePerCooldown(t *testing.T) {
	b, now := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("perplexity")
	}
	require.True(t, b.IsOpen("perplexity"))

	*now = now.Add(DefaultOpenDuration - time.Millisecond)
	assert.True(t, b.IsOpen("perplexity"), "cooldown not yet elapsed")

	*now = now.Add(time.Millisecond)
	assert.False(t, b.IsOpen("perplexity"), "first check after cooldown admits a probe")
	assert.Equal(t, CircuitHalfOpen, b.State("perplexity").Status)

	assert.True(t, b.IsOpen("perplexity"), "second check while probe is in flight")
	assert.True(t, b.IsOpen("perplexity"))
}

func TestBreakers_ProbeSuccessCloses(t *testing.T) {
	b, now := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("perplexity")
	}
	*now = now.Add(DefaultOpenDuration)
	require.False(t, b.IsOpen("perplexity"))

	b.RecordSuccess("perplexity")

	st := b.State("perplexity")
	assert.Equal(t, CircuitClosed, st.Status)
	assert.Nil(t, st.ProbeStartedAt)
	assert.False(t, b.IsOpen("perplexity"))
}

func TestBreakers_ProbeFailureReopensAndRestartsCooldown(t *testing.T) {
	b, now := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("perplexity")
	}
	*now = now.Add(DefaultOpenDuration)
	require.False(t, b.IsOpen("perplexity"))

	b.RecordFailure("perplexity")
	st := b.State("perplexity")
	assert.Equal(t, CircuitOpen, st.Status)
	assert.Equal(t, 4, st.ConsecutiveFailures)
	assert.Equal(t, *now, *st.LastFailureAt)

	*now = now.Add(DefaultOpenDuration / 2)
	assert.True(t, b.IsOpen("perplexity"), "cooldown restarted from the probe failure")

	*now = now.Add(DefaultOpenDuration / 2)
	assert.False(t, b.IsOpen("perplexity"))
}

func TestBreakers_ExpiredProbeLeaseAdmitsAnotherProbe(t *testing.T) {
	b, now := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("salesforce")
	}
	*now = now.Add(DefaultOpenDuration)
	require.False(t, b.IsOpen("salesforce"))

	// The probe never reports back.
	*now = now.Add(DefaultOpenDuration)
	assert.False(t, b.IsOpen("salesforce"), "lease expired, new probe admitted")
	assert.True(t, b.IsOpen("salesforce"))
}

func TestBreakers_OnStateChange(t *testing.T) {
	type change struct {
		provider string
		from, to CircuitStatus
	}
	var changes []change
	cfg := DefaultCircuitBreakerConfig()
	cfg.OnStateChange = func(p string, from, to CircuitStatus) {
		changes = append(changes, change{p, from, to})
	}
	b, now := newTestBreakers(t, cfg)

	for i := 0; i < 3; i++ {
		b.RecordFailure("jina")
	}
	*now = now.Add(DefaultOpenDuration)
	b.IsOpen("jina")
	b.RecordSuccess("jina")

	assert.Equal(t, []change{
		{"jina", CircuitClosed, CircuitOpen},
		{"jina", CircuitOpen, CircuitHalfOpen},
		{"jina", CircuitHalfOpen, CircuitClosed},
	}, changes)
}

func TestBreakers_ProvidersAreIndependent(t *testing.T) {
	b, _ := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("jina")
	}
	assert.True(t, b.IsOpen("jina"))
	assert.False(t, b.IsOpen("google"))
	assert.Equal(t, []string{"jina"}, b.Providers())
}

func TestBreakers_Reset(t *testing.T) {
	b, _ := newTestBreakers(t, DefaultCircuitBreakerConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure("jina")
	}
	b.Reset()
	assert.False(t, b.IsOpen("jina"))
	assert.Empty(t, b.Snapshot())
}

func TestNewBreakers_Defaults(t *testing.T) {
	b := NewBreakers(CircuitBreakerConfig{})
	assert.Equal(t, DefaultFailureThreshold, b.Config().FailureThreshold)
	assert.Equal(t, DefaultOpenDuration, b.Config().OpenDuration)
}

func TestEvaluate(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	open := CircuitState{Status: CircuitOpen, ConsecutiveFailures: 3, LastFailureAt: &t0}

	tests := []struct {
		name        string
		state       CircuitState
		now         time.Time
		wantStatus  CircuitStatus
		wantAllowed bool
	}{
		{"closed", CircuitState{}, t0, CircuitClosed, true},
		{"open cooling down", open, t0.Add(59 * time.Second), CircuitOpen, false},
		{"open cooldown elapsed", open, t0.Add(60 * time.Second), CircuitHalfOpen, true},
		{"half open live probe", CircuitState{Status: CircuitHalfOpen, ConsecutiveFailures: 3, ProbeStartedAt: &t0}, t0.Add(time.Second), CircuitHalfOpen, false},
		{"half open expired probe", CircuitState{Status: CircuitHalfOpen, ConsecutiveFailures: 3, ProbeStartedAt: &t0}, t0.Add(time.Minute), CircuitHalfOpen, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, allowed := Evaluate(tt.state, tt.now, DefaultOpenDuration)
			assert.Equal(t, tt.wantStatus, next.Status)
			assert.Equal(t, tt.wantAllowed, allowed)
		})
	}
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := CircuitState{Status: CircuitOpen, ConsecutiveFailures: 3, LastFailureAt: &t0}
	_, _ = Evaluate(in, t0.Add(time.Hour), DefaultOpenDuration)
	assert.Equal(t, CircuitOpen, in.Status)
	assert.Nil(t, in.ProbeStartedAt)
}

func TestCircuitStatus_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half_open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitStatus(9).String())
}

func TestBreakers_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	b := NewBreakers(CircuitBreakerConfig{FailureThreshold: 1000, OpenDuration: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.IsOpen("jina")
			b.RecordFailure("jina")
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, b.State("jina").ConsecutiveFailures)
	assert.False(t, b.IsOpen("jina"))
}

func TestCircuitStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []CircuitStatus{CircuitClosed, CircuitOpen, CircuitHalfOpen} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got CircuitStatus
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	var bad CircuitStatus
	assert.Error(t, bad.UnmarshalText([]byte("ajar")))
}
