package artifacts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory artifact store for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Artifact
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*Artifact),
	}
}

// Put stores an artifact at path.
func (m *MemoryStore) Put(_ context.Context, path, contentType string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = &Artifact{
		Path:        path,
		ContentType: contentType,
		Data:        stored,
	}
	return nil
}

// Get fetches the artifact at path.
func (m *MemoryStore) Get(_ context.Context, path string) (*Artifact, error) {
	m.mu.RLock()
	a, ok := m.objects[path]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrArtifactNotFound
	}

	out := make([]byte, len(a.Data))
	copy(out, a.Data)
	return &Artifact{Path: a.Path, ContentType: a.ContentType, Data: out}, nil
}

// Delete removes the artifact at path.
func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

// Ping always succeeds for the in-memory backend.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}
