package store

import (
	"sync"

	"agegate/pkg/domain"
)

// MemoryStore keeps profiles and entries in-process. It backs tests and
// single-node deployments without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.UserProfile
	entries  map[string][]domain.ConversationEntry // key: user ID, append order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]domain.UserProfile),
		entries:  make(map[string][]domain.ConversationEntry),
	}
}

// SaveProfile creates or replaces a profile.
func (m *MemoryStore) SaveProfile(p domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
	return nil
}

// GetProfile returns a profile by user ID.
func (m *MemoryStore) GetProfile(userID string) (domain.UserProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	return p, ok, nil
}

// AppendEntry records an entry in arrival order.
func (m *MemoryStore) AppendEntry(entry domain.ConversationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.UserID] = append(m.entries[entry.UserID], entry)
	return nil
}

// ListEntries returns up to limit entries, newest first.
func (m *MemoryStore) ListEntries(userID string, limit int) ([]domain.ConversationEntry, error) {
	if limit <= 0 {
		return []domain.ConversationEntry{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.entries[userID]
	res := make([]domain.ConversationEntry, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, stored[i])
	}
	return res, nil
}

// DeleteUser removes profile and entries, reporting removed rows.
func (m *MemoryStore) DeleteUser(userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	if _, ok := m.profiles[userID]; ok {
		delete(m.profiles, userID)
		removed++
	}
	removed += int64(len(m.entries[userID]))
	delete(m.entries, userID)
	return removed, nil
}
