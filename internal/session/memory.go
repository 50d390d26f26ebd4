package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// MemoryStorage keeps sessions in process. Entries past their TTL are
// dropped on read and swept on every save.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStorage) Save(_ context.Context, sid string, fields map[string]string, ttl time.Duration) error {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
	m.entries[sid] = memoryEntry{fields: cp, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStorage) Load(_ context.Context, sid string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[sid]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, sid)
		return nil, nil
	}
	cp := make(map[string]string, len(entry.fields))
	for k, v := range entry.fields {
		cp[k] = v
	}
	return cp, nil
}

func (m *MemoryStorage) Delete(_ context.Context, sid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[sid]
	delete(m.entries, sid)
	return ok, nil
}
