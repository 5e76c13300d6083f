package queue

import (
	"context"
	"sync"
	"time"

	"github.com/aktrade/tradecore/internal/clock"
)

// MemorySet is an in-process DedupSet used for tests and offline mode, when
// no Redis instance is configured.
type MemorySet struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
}

// NewMemorySet creates an empty in-memory dedup set.
func NewMemorySet(c clock.Clock) *MemorySet {
	return &MemorySet{clock: c, entries: make(map[string]time.Time)}
}

// SeenOrAdd reports membership and inserts key with ttl if absent/expired.
func (m *MemorySet) SeenOrAdd(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if expiry, ok := m.entries[key]; ok && now.Before(expiry) {
		return true, nil
	}
	m.entries[key] = now.Add(ttl)
	return false, nil
}

// Clear removes every key.
func (m *MemorySet) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]time.Time)
	return nil
}
