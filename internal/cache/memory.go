package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

type MemoryBackend struct {
	lock    sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.lock.RLock()
	e, ok := m.entries[key]
	m.lock.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.lock.Lock()
		delete(m.entries, key)
		m.lock.Unlock()
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

// Set stores value. A zero ttl never expires.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.lock.Lock()
	m.entries[key] = e
	m.lock.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.lock.Lock()
	delete(m.entries, key)
	m.lock.Unlock()
	return nil
}
