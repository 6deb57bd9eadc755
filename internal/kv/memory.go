package kv

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	list    []string
	isList  bool
	expires time.Time
}

// MemoryStore is an in-process Store used for tests and when Redis is not
// configured. Expired keys are purged lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for expiry. Intended for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{value: value, expires: m.deadline(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.lookup(key)
	if entry == nil || entry.isList {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key) != nil, nil
}

func (m *MemoryStore) Append(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.lookup(key)
	if entry == nil || !entry.isList {
		entry = &memoryEntry{isList: true}
		m.entries[key] = entry
	}
	entry.list = append(entry.list, value)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.lookup(key)
	if entry == nil || !entry.isList {
		return []string{}, nil
	}
	out := make([]string, len(entry.list))
	copy(out, entry.list)
	return out, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry := m.lookup(key); entry != nil {
		entry.expires = m.deadline(ttl)
	}
	return nil
}

// TTL reports the remaining lifetime of key; zero means no expiry or missing.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.lookup(key)
	if entry == nil || entry.expires.IsZero() {
		return 0
	}
	return entry.expires.Sub(m.now())
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(key string) *memoryEntry {
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil
	}
	return entry
}
