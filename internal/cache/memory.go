package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value    []byte
	deadline time.Time
}

// Memory is a bounded in-process Store. Entries are evicted least recently
// used first once size is reached, and lazily on read once their TTL passes.
type Memory struct {
	// mu makes the expiry check and its removal atomic with respect to Set.
	mu      sync.Mutex
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemory creates an in-process store holding at most size entries.
// now supplies the current time; nil uses time.Now.
func NewMemory(size int, now func() time.Time) (*Memory, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: entries, now: now}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(e.deadline) {
		m.entries.Remove(key)
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("setting %s: ttl must be positive, got %s", key, ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Add(key, memoryEntry{value: v, deadline: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Remove(key)
	return nil
}

// Len returns the number of entries held, including ones past their TTL
// that have not been read since.
func (m *Memory) Len() int {
	return m.entries.Len()
}
