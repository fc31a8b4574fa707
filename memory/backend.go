package memory

import "context"

// Backend persists entries. Implementations return core.ErrEntryNotFound
// (wrapped) when an id does not exist and must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and health output
	Name() string

	// Put inserts or replaces the entry with e.ID
	Put(ctx context.Context, e *MemoryEntry) error

	// Get returns a copy of the entry
	Get(ctx context.Context, id string) (*MemoryEntry, error)

	// Update loads the entry, lets fn modify it and writes it back. The thread
	// index follows the entry when fn changes ThreadID.
	Update(ctx context.Context, id string, fn func(*MemoryEntry) error) error

	// Delete removes the entry
	Delete(ctx context.Context, id string) error

	// ListThread returns every entry of the thread in no particular order
	ListThread(ctx context.Context, threadID string) ([]*MemoryEntry, error)

	// DeleteThread removes every entry of the thread and returns the count
	DeleteThread(ctx context.Context, threadID string) (int, error)

	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error

	Close() error
}
