// Package evidence stores case evidence page references. Object
// storage itself is an external collaborator; this package only tracks
// the references a case exposes to joining clients.
package evidence

import (
	"context"
	"fmt"
	"sync"
)

// Store records evidence references per case.
type Store interface {
	// Add registers evidence references for a case and returns the
	// stored reference strings.
	Add(ctx context.Context, caseID string, refs []string) ([]string, error)

	// List returns the references registered for a case, in insertion
	// order. An unknown case yields an empty list.
	List(ctx context.Context, caseID string) ([]string, error)
}

// MemoryStore implements Store in process.
type MemoryStore struct {
	mu   sync.RWMutex
	refs map[string][]string
}

// NewMemory creates an empty in-memory evidence store.
func NewMemory() *MemoryStore {
	return &MemoryStore{refs: make(map[string][]string)}
}

// Add implements Store.
func (m *MemoryStore) Add(ctx context.Context, caseID string, refs []string) ([]string, error) {
	if caseID == "" {
		return nil, fmt.Errorf("case id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refs[caseID] = append(m.refs[caseID], refs...)
	return append([]string(nil), m.refs[caseID]...), nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, caseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.refs[caseID]...), nil
}
