package checkpoint

import (
	"errors"
	"sync"
	"time"
)

// MemoryStore keeps the state in process. Dry runs use it so the checkpoint
// file of real runs is never touched.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Path describes the store in logs.
func (m *MemoryStore) Path() string { return "memory" }

// Load returns a copy of the last saved state, or a fresh one.
func (m *MemoryStore) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return NewState(), nil
	}
	return m.state.Clone(), nil
}

// Save keeps a copy of state.
func (m *MemoryStore) Save(state *State) error {
	if state == nil {
		return errors.New("nil checkpoint state")
	}
	state.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.state = state.Clone()
	m.mu.Unlock()
	return nil
}

// Remove forgets the saved state.
func (m *MemoryStore) Remove() error {
	m.mu.Lock()
	m.state = nil
	m.mu.Unlock()
	return nil
}
