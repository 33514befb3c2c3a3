package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore errors on every call.
type failingStore struct{}

var errBackend = errors.New("backend down")

func (failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBackend }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errBackend
}
func (failingStore) Delete(context.Context, string) error { return errBackend }
func (failingStore) ScanPrefix(context.Context, string) ([][]byte, error) {
	return nil, errBackend
}
func (failingStore) Clear(context.Context) error { return errBackend }
func (failingStore) Close() error                { return nil }

type payload struct {
	Name string `json:"name"`
}

func TestCache_RoundTrip(t *testing.T) {
	c := New(NewMemory(0))
	ctx := context.Background()

	c.Set(ctx, "search:abc", payload{Name: "acme"}, time.Minute)

	var got payload
	require.True(t, c.Get(ctx, "search:abc", &got))
	assert.Equal(t, "acme", got.Name)
}

func TestCache_ZeroTTLIsMiss(t *testing.T) {
	c := New(NewMemory(0))
	ctx := context.Background()

	c.Set(ctx, "k", payload{Name: "old"}, time.Minute)
	c.Set(ctx, "k", payload{Name: "new"}, 0)

	var got payload
	assert.False(t, c.Get(ctx, "k", &got), "ttl 0 must read as a miss")

	c.Set(ctx, "k2", payload{Name: "x"}, -time.Second)
	assert.False(t, c.Get(ctx, "k2", &got))
}

func TestCache_BackendFailureDegradesToMiss(t *testing.T) {
	c := New(failingStore{})
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Set(ctx, "k", payload{Name: "x"}, time.Minute) })

	var got payload
	assert.False(t, c.Get(ctx, "k", &got))
	assert.Empty(t, c.ScanByPrefix(ctx, "k"))
	assert.Empty(t, Scan[payload](ctx, c, "k"))
}

func TestCache_ClearReportsFailure(t *testing.T) {
	err := New(failingStore{}).Clear(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: clear")
}

func TestCache_UndecodableEntryIsMiss(t *testing.T) {
	m := NewMemory(0)
	c := New(m)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("{not json"), time.Minute))

	var got payload
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestScan_DecodesAndSkipsGarbage(t *testing.T) {
	m := NewMemory(0)
	c := New(m)
	ctx := context.Background()

	c.Set(ctx, "summary:a.com", payload{Name: "a"}, time.Minute)
	c.Set(ctx, "summary:b.com", payload{Name: "b"}, time.Minute)
	require.NoError(t, m.Set(ctx, "summary:c.com", []byte("garbage"), time.Minute))
	c.Set(ctx, "search:x", payload{Name: "x"}, time.Minute)

	got := Scan[payload](ctx, c, "summary:")
	assert.Equal(t, []payload{{Name: "a"}, {Name: "b"}}, got)
}

func TestCache_Sweep(t *testing.T) {
	m, now := newTestMemory(t, 0)
	c := New(m)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte(`{}`), time.Second))

	*now = now.Add(time.Minute)
	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = New(failingStore{}).Sweep(ctx)
	require.NoError(t, err, "stores without a sweeper are skipped")
	assert.Zero(t, n)
}

func TestCache_StartSweeperStopsWithContext(t *testing.T) {
	m := NewMemory(0)
	c := New(m)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Set(ctx, "k", []byte(`{}`), time.Millisecond))

	c.StartSweeper(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return m.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "search:0123456789ab", keyPrefix("search:0123456789abcdef"))
	assert.Equal(t, "summary:acme.com", keyPrefix("summary:acme.com"))
	assert.Equal(t, "bare", keyPrefix("bare"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, c.Store())

	c, err = Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, c.Store())

	_, err = Open(ctx, Options{Backend: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}
