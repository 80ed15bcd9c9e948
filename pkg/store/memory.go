package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/verdictech/gavel/pkg/core/types"
)

// MemoryStore implements Store with in-process maps. It backs tests and
// single-node deployments without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	cases    map[string]*types.Case
	sessions map[string]*types.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		cases:    make(map[string]*types.Case),
		sessions: make(map[string]*types.Session),
	}
}

// CreateCase implements Store.
func (m *MemoryStore) CreateCase(ctx context.Context, c *types.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

// GetCase implements Store.
func (m *MemoryStore) GetCase(ctx context.Context, id string) (*types.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCases implements Store.
func (m *MemoryStore) ListCases(ctx context.Context, ownerID string) ([]*types.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Case, 0)
	for _, c := range m.cases {
		if c.OwnerID != ownerID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateCaseSummary implements Store.
func (m *MemoryStore) UpdateCaseSummary(ctx context.Context, id, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok {
		return ErrNotFound
	}
	c.Summary = summary
	return nil
}

// CreateSession implements Store.
func (m *MemoryStore) CreateSession(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxSeq := 0
	for _, have := range m.sessions {
		if have.Code == s.Code && have.Status != types.StatusCompleted {
			return ErrCodeTaken
		}
		if have.CaseID == s.CaseID && have.OwnerID == s.OwnerID && have.Seq > maxSeq {
			maxSeq = have.Seq
		}
	}

	s.Seq = maxSeq + 1
	s.Status = types.StatusActive
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	cp := cloneSession(s)
	m.sessions[s.ID] = cp
	return nil
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

// FindByCode implements Store.
func (m *MemoryStore) FindByCode(ctx context.Context, code string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *types.Session
	for _, s := range m.sessions {
		if s.Code != code {
			continue
		}
		if best == nil {
			best = s
			continue
		}
		bestActive := best.Status != types.StatusCompleted
		haveActive := s.Status != types.StatusCompleted
		switch {
		case haveActive && !bestActive:
			best = s
		case haveActive == bestActive && s.CreatedAt.After(best.CreatedAt):
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return cloneSession(best), nil
}

// AppendTurns implements Store.
func (m *MemoryStore) AppendTurns(ctx context.Context, sessionID string, entries []types.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status == types.StatusCompleted {
		return ErrCompleted
	}
	s.Transcript = append(s.Transcript, entries...)
	return nil
}

// Finalize implements Store.
func (m *MemoryStore) Finalize(ctx context.Context, sessionID string, analysis types.Analysis, closingText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status == types.StatusCompleted {
		return ErrCompleted
	}
	now := time.Now()
	s.Status = types.StatusCompleted
	s.Analysis = &analysis
	s.ClosingText = closingText
	s.EndedAt = &now
	return nil
}

// History implements Store.
func (m *MemoryStore) History(ctx context.Context, caseID, ownerID string) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Session, 0)
	for _, s := range m.sessions {
		if s.CaseID == caseID && s.OwnerID == ownerID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cases = nil
	m.sessions = nil
	return nil
}

func cloneSession(s *types.Session) *types.Session {
	cp := *s
	cp.Transcript = append([]types.TranscriptEntry(nil), s.Transcript...)
	if s.Analysis != nil {
		a := *s.Analysis
		cp.Analysis = &a
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}
