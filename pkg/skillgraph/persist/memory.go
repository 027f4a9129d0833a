package persist

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// MemoryStore keeps projects in process memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]storedProject
	closed   bool
}

// storedProject holds the encoded document so callers never share state
// with the store.
type storedProject struct {
	data      []byte
	version   int64
	updatedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]storedProject)}
}

// LoadGraph implements graph.Persistence.
func (m *MemoryStore) LoadGraph(_ context.Context, projectID string) (graph.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return graph.Document{}, ErrStoreClosed
	}
	p, ok := m.projects[projectID]
	if !ok {
		return graph.Document{}, notFound(projectID)
	}
	return decode(p.data, p.version)
}

// SaveGraph implements graph.Persistence.
func (m *MemoryStore) SaveGraph(_ context.Context, projectID string, doc graph.Document, baseVersion int64) (int64, error) {
	return m.save(projectID, doc, &baseVersion)
}

// ForceSave implements graph.Persistence.
func (m *MemoryStore) ForceSave(_ context.Context, projectID string, doc graph.Document) (int64, error) {
	return m.save(projectID, doc, nil)
}

func (m *MemoryStore) save(projectID string, doc graph.Document, base *int64) (int64, error) {
	data, err := encode(doc)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	current := m.projects[projectID].version
	if base != nil && *base != current {
		return 0, conflict(projectID, *base, current)
	}
	next := current + 1
	m.projects[projectID] = storedProject{data: data, version: next, updatedAt: time.Now().UTC()}
	return next, nil
}

// ListProjects implements Store.
func (m *MemoryStore) ListProjects(_ context.Context) ([]ProjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]ProjectInfo, 0, len(m.projects))
	for id, p := range m.projects {
		infos = append(infos, ProjectInfo{ID: id, Version: p.version, UpdatedAt: p.updatedAt})
	}
	slices.SortFunc(infos, func(a, b ProjectInfo) int { return strings.Compare(a.ID, b.ID) })
	return infos, nil
}

// DeleteProject implements Store.
func (m *MemoryStore) DeleteProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.projects, projectID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.projects = nil
	return nil
}
