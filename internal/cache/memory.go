package cache

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is a concurrent-safe in-process Store with TTL expiry and an
// optional LRU capacity bound. Expiry is checked lazily on read; DeleteExpired
// purges eagerly and is driven by Cache.StartSweeper.
type MemoryStore struct {
	// mu serializes expiry checks with the removals they trigger.
	mu         sync.Mutex
	entries    *lru.Cache[string, *memoryEntry]
	maxEntries int
	hits       atomic.Int64
	misses     atomic.Int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e *memoryEntry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// MemoryStats contains cache performance statistics.
type MemoryStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMemory creates a MemoryStore. maxEntries <= 0 means unbounded.
func NewMemory(maxEntries int) *MemoryStore {
	size := maxEntries
	if size <= 0 {
		size = math.MaxInt
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, *memoryEntry](size)
	return &MemoryStore{
		entries:    entries,
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// Get returns a live entry and marks it most recently used.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}
	if !e.live(m.nowFunc()) {
		m.entries.Remove(key)
		m.misses.Add(1)
		return nil, false, nil
	}
	m.hits.Add(1)
	return e.data, true, nil
}

// Set stores a copy of value, evicting the least recently used entry if at
// capacity.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := &memoryEntry{
		data:      append([]byte(nil), value...),
		expiresAt: m.nowFunc().Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Add(key, e)
	return nil
}

// Delete removes key if present.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Remove(key)
	return nil
}

// ScanPrefix returns live values under prefix ordered by key. Scans do not
// affect LRU order.
func (m *MemoryStore) ScanPrefix(_ context.Context, prefix string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	live := make(map[string][]byte)
	var keys []string
	for _, k := range m.entries.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if e, ok := m.entries.Peek(k); ok && e.live(now) {
			live[k] = e.data
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, live[k])
	}
	return out, nil
}

// Clear removes every entry.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Purge()
	return nil
}

// DeleteExpired removes every expired entry and returns how many it removed.
func (m *MemoryStore) DeleteExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	removed := 0
	for _, k := range m.entries.Keys() {
		if e, ok := m.entries.Peek(k); ok && !e.live(now) {
			m.entries.Remove(k)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// Stats returns cache performance statistics.
func (m *MemoryStore) Stats() MemoryStats {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return MemoryStats{
		Entries:    m.entries.Len(),
		MaxEntries: m.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}
