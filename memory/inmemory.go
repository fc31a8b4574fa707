package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/itsneelabh/docrouter/core"
)

// InMemoryBackend keeps entries in a process-local map. It is the default
// provider and loses everything on restart.
type InMemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*MemoryEntry
	threads map[string]map[string]struct{}
}

// NewInMemoryBackend creates an empty in-memory backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		entries: make(map[string]*MemoryEntry),
		threads: make(map[string]map[string]struct{}),
	}
}

func (b *InMemoryBackend) Name() string { return core.MemoryProviderInMemory }

func (b *InMemoryBackend) Put(ctx context.Context, e *MemoryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.entries[e.ID]; ok {
		b.unindex(old)
	}
	stored := e.Clone()
	b.entries[e.ID] = stored
	b.index(stored)
	return nil
}

func (b *InMemoryBackend) Get(ctx context.Context, id string) (*MemoryEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	return e.Clone(), nil
}

func (b *InMemoryBackend) Update(ctx context.Context, id string, fn func(*MemoryEntry) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, ok := b.entries[id]
	if !ok {
		return fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}

	updated := old.Clone()
	if err := fn(updated); err != nil {
		return err
	}
	updated.ID = id

	b.unindex(old)
	b.entries[id] = updated
	b.index(updated)
	return nil
}

func (b *InMemoryBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	b.unindex(e)
	delete(b.entries, id)
	return nil
}

func (b *InMemoryBackend) ListThread(ctx context.Context, threadID string) ([]*MemoryEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.threads[threadID]
	out := make([]*MemoryEntry, 0, len(ids))
	for id := range ids {
		out = append(out, b.entries[id].Clone())
	}
	return out, nil
}

func (b *InMemoryBackend) DeleteThread(ctx context.Context, threadID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := b.threads[threadID]
	for id := range ids {
		delete(b.entries, id)
	}
	delete(b.threads, threadID)
	return len(ids), nil
}

func (b *InMemoryBackend) Ping(ctx context.Context) error { return nil }

func (b *InMemoryBackend) Close() error { return nil }

// index and unindex must be called with mu held
func (b *InMemoryBackend) index(e *MemoryEntry) {
	ids, ok := b.threads[e.ThreadID]
	if !ok {
		ids = make(map[string]struct{})
		b.threads[e.ThreadID] = ids
	}
	ids[e.ID] = struct{}{}
}

func (b *InMemoryBackend) unindex(e *MemoryEntry) {
	ids := b.threads[e.ThreadID]
	delete(ids, e.ID)
	if len(ids) == 0 {
		delete(b.threads, e.ThreadID)
	}
}
