package sessions

import (
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. The map is guarded
// by a read-write mutex; each entry carries its own mutex so that
// concurrent webhooks for the same call are serialized without blocking
// unrelated calls.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	nowFunc func() time.Time // For testing
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]*entry{},
		nowFunc: time.Now,
	}
}

// SetNowFunc sets a custom time function for testing.
func (m *MemoryStore) SetNowFunc(fn func() time.Time) {
	m.nowFunc = fn
}

func (m *MemoryStore) GetOrCreate(callID string) (Session, bool) {
	m.mu.RLock()
	e, ok := m.entries[callID]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		// Another webhook may have created it between the locks.
		e, ok = m.entries[callID]
		if !ok {
			now := m.nowFunc()
			e = &entry{session: Session{
				CallID:       callID,
				CreatedAt:    now,
				LastActivity: now,
			}}
			m.entries[callID] = e
			m.mu.Unlock()
			return e.session, true
		}
		m.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, false
}

func (m *MemoryStore) Update(callID string, fn func(*Session)) (Session, bool) {
	m.mu.RLock()
	e, ok := m.entries[callID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
	e.session.LastActivity = m.nowFunc()
	return e.session, true
}

func (m *MemoryStore) Remove(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[callID]
	delete(m.entries, callID)
	return ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SweepIdle removes sessions idle longer than the threshold.
func (m *MemoryStore) SweepIdle(olderThan time.Duration) int {
	cutoff := m.nowFunc().Add(-olderThan)
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		e.mu.Lock()
		stale := e.session.LastActivity.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
