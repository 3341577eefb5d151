// Package store holds conversation-scoped state keyed by conversation id.
//
// Funnel sessions and carts both live behind Store so the in-memory map can be
// replaced by any key-value backend without touching their owners.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec is the cron schedule used to evict idle entries.
const DefaultSweepSpec = "@every 1m"

// Store is a concurrency-safe key-value store. One key holds at most one value.
type Store[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
}

type entry[V any] struct {
	value     V
	touchedAt time.Time
}

// Memory is an in-process Store with optional idle expiry.
type Memory[V any] struct {
	ttl time.Duration
	now func() time.Time
	log *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry[V]

	sweeper *cron.Cron
}

// NewMemory creates a store whose entries expire after ttl without writes.
// A zero ttl keeps entries until they are deleted.
func NewMemory[V any](ttl time.Duration) *Memory[V] {
	return &Memory[V]{
		ttl:     ttl,
		now:     time.Now,
		log:     slog.Default().With("component", "store.memory"),
		entries: make(map[string]entry[V]),
	}
}

func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.entries[key]
	if !ok || m.expired(item) {
		var zero V
		return zero, false
	}

	return item.value, true
}

func (m *Memory[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry[V]{value: value, touchedAt: m.now()}
}

func (m *Memory[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
}

// Len reports the number of live entries.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, item := range m.entries {
		if !m.expired(item) {
			count++
		}
	}

	return count
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory[V]) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, item := range m.entries {
		if m.expired(item) {
			delete(m.entries, key)
			removed++
		}
	}

	return removed
}

// StartSweeper schedules Sweep on the given cron spec until Stop is called.
func (m *Memory[V]) StartSweeper(spec string) error {
	if m.ttl <= 0 {
		return nil
	}
	if spec == "" {
		spec = DefaultSweepSpec
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if removed := m.Sweep(); removed > 0 {
			m.log.Debug("Expired idle sessions", "removed", removed)
		}
	}); err != nil {
		return err
	}

	m.mu.Lock()
	m.sweeper = c
	m.mu.Unlock()

	c.Start()
	return nil
}

// Stop halts the sweeper, if one is running.
func (m *Memory[V]) Stop() {
	m.mu.Lock()
	sweeper := m.sweeper
	m.sweeper = nil
	m.mu.Unlock()

	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
}

func (m *Memory[V]) expired(item entry[V]) bool {
	return m.ttl > 0 && m.now().Sub(item.touchedAt) > m.ttl
}
