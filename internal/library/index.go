package library

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/exptype"
)

// Entry describes the latest saved version of one experiment.
type Entry struct {
	Name      string         `json:"name"`
	Type      exptype.Type   `json:"type"`
	Key       string         `json:"key"`
	Format    archive.Format `json:"format"`
	Size      int64          `json:"size_bytes"`
	Elements  int            `json:"elements"`
	Wires     int            `json:"wires"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Index maps experiment names to their latest archive blob.
type Index interface {
	// Lookup returns the entry for name, or nil if there is none.
	Lookup(ctx context.Context, name string) (*Entry, error)
	// Upsert inserts or replaces the entry keyed by e.Name.
	Upsert(ctx context.Context, e Entry) error
	// Delete removes name, reporting whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	// List returns every entry ordered by name.
	List(ctx context.Context) ([]Entry, error)
	// Close releases resources.
	Close() error
}

// MemoryIndex implements Index in process memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

// Lookup returns the entry for name, or nil.
func (m *MemoryIndex) Lookup(_ context.Context, name string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Upsert stores e. CreatedAt is kept from the first insert.
func (m *MemoryIndex) Upsert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[e.Name]; ok {
		e.CreatedAt = old.CreatedAt
	}
	m.entries[e.Name] = e
	return nil
}

// Delete removes name.
func (m *MemoryIndex) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[name]
	delete(m.entries, name)
	return ok, nil
}

// List returns all entries ordered by name.
func (m *MemoryIndex) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }
