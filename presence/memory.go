package presence

import (
	"context"
	"sync"

	"github.com/arloliu/baton/types"
)

// Memory is an in-process presence registry shared by every participant of
// one process.
type Memory struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

// Compile-time assertion that Memory implements PresenceDirectory.
var _ types.PresenceDirectory = (*Memory)(nil)

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{members: make(map[string]map[string]struct{})}
}

// ActiveCount returns the number of participants joined to key.
func (m *Memory) ActiveCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.members[key])
}

// IsActive reports whether participantID is joined to key.
func (m *Memory) IsActive(key, participantID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[key][participantID]

	return ok
}

// Join adds participantID to key.
func (m *Memory) Join(_ context.Context, key, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[key] == nil {
		m.members[key] = make(map[string]struct{})
	}
	m.members[key][participantID] = struct{}{}

	return nil
}

// Leave removes participantID from key.
func (m *Memory) Leave(_ context.Context, key, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(key, participantID)

	return nil
}

// Evict removes participantID from every key, as if it crashed.
func (m *Memory) Evict(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.members {
		m.remove(key, participantID)
	}
}

func (m *Memory) remove(key, participantID string) {
	members, ok := m.members[key]
	if !ok {
		return
	}
	delete(members, participantID)
	if len(members) == 0 {
		delete(m.members, key)
	}
}
