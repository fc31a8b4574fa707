package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/itsneelabh/docrouter/core"
)

// SharedMemory is the store every agent logs its results to. It assigns ids
// and timestamps, orders thread history and translates backend misses into
// nil/false results.
type SharedMemory struct {
	backend   Backend
	logger    core.Logger
	telemetry core.Telemetry
	now       func() time.Time
}

// Option configures a SharedMemory
type Option func(*SharedMemory)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(m *SharedMemory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTelemetry records store operations as spans and metrics
func WithTelemetry(t core.Telemetry) Option {
	return func(m *SharedMemory) {
		if t != nil {
			m.telemetry = t
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(m *SharedMemory) {
		m.now = now
	}
}

// New creates a shared memory over backend. A nil backend uses a fresh
// in-memory backend.
func New(backend Backend, opts ...Option) *SharedMemory {
	if backend == nil {
		backend = NewInMemoryBackend()
	}
	m := &SharedMemory{
		backend:   backend,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ping checks that the backend is reachable. Failures wrap
// core.ErrConnectionFailed.
func (m *SharedMemory) Ping(ctx context.Context) error {
	if err := m.backend.Ping(ctx); err != nil {
		m.logger.WarnWithContext(ctx, "Memory backend unreachable", map[string]interface{}{
			"backend": m.backend.Name(),
			"error":   err,
		})
		return &core.FrameworkError{
			Op:   "memory.Ping",
			Kind: "memory",
			Err:  fmt.Errorf("%s backend: %v: %w", m.backend.Name(), err, core.ErrConnectionFailed),
		}
	}
	return nil
}

// StoreEntry records a new entry stamped with the current time and returns its id.
func (m *SharedMemory) StoreEntry(ctx context.Context, source, entryType string, extracted map[string]interface{}, threadID string, conversationID *string) (string, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "memory.store_entry")
	defer span.End()

	now := m.now()
	if extracted == nil {
		extracted = map[string]interface{}{}
	}
	entry := &MemoryEntry{
		ID:              NewEntryID(now),
		Source:          source,
		Type:            entryType,
		Timestamp:       now,
		ExtractedValues: extracted,
		ThreadID:        threadID,
		ConversationID:  conversationID,
	}
	span.SetAttribute("memory.entry_id", entry.ID)
	span.SetAttribute("memory.thread_id", threadID)

	if err := m.backend.Put(ctx, entry); err != nil {
		span.RecordError(err)
		m.logger.ErrorWithContext(ctx, "Failed to store memory entry", map[string]interface{}{
			"entry_id":  entry.ID,
			"thread_id": threadID,
			"backend":   m.backend.Name(),
			"error":     err,
		})
		return "", &core.FrameworkError{Op: "memory.StoreEntry", Kind: "memory", ID: entry.ID, Err: err}
	}

	m.telemetry.RecordMetric("docrouter.memory.entries_stored", 1, map[string]string{
		"source":  source,
		"backend": m.backend.Name(),
	})
	m.logger.DebugWithContext(ctx, "Stored memory entry", map[string]interface{}{
		"entry_id":  entry.ID,
		"thread_id": threadID,
		"source":    source,
		"type":      entryType,
	})
	return entry.ID, nil
}

// GetEntry returns the entry or nil when it does not exist.
func (m *SharedMemory) GetEntry(ctx context.Context, id string) (*MemoryEntry, error) {
	e, err := m.backend.Get(ctx, id)
	if errors.Is(err, core.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &core.FrameworkError{Op: "memory.GetEntry", Kind: "memory", ID: id, Err: err}
	}
	return e, nil
}

// GetThreadHistory returns the thread's entries by ascending timestamp. An
// unknown thread yields an empty slice.
func (m *SharedMemory) GetThreadHistory(ctx context.Context, threadID string) ([]*MemoryEntry, error) {
	entries, err := m.backend.ListThread(ctx, threadID)
	if err != nil {
		return nil, &core.FrameworkError{Op: "memory.GetThreadHistory", Kind: "memory", ID: threadID, Err: err}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// UpdateEntry patches an entry with dictionary-style updates. It reports
// false when the entry does not exist.
func (m *SharedMemory) UpdateEntry(ctx context.Context, id string, updates map[string]interface{}) (bool, error) {
	err := m.backend.Update(ctx, id, func(e *MemoryEntry) error {
		return e.ApplyUpdates(updates)
	})
	switch {
	case errors.Is(err, core.ErrEntryNotFound):
		return false, nil
	case errors.Is(err, core.ErrInvalidPatch):
		return false, err
	case err != nil:
		return false, &core.FrameworkError{Op: "memory.UpdateEntry", Kind: "memory", ID: id, Err: err}
	}

	m.logger.DebugWithContext(ctx, "Updated memory entry", map[string]interface{}{
		"entry_id": id,
		"fields":   len(updates),
	})
	return true, nil
}

// DeleteEntry removes an entry. It reports false when the entry does not exist.
func (m *SharedMemory) DeleteEntry(ctx context.Context, id string) (bool, error) {
	err := m.backend.Delete(ctx, id)
	if errors.Is(err, core.ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &core.FrameworkError{Op: "memory.DeleteEntry", Kind: "memory", ID: id, Err: err}
	}
	return true, nil
}

// ClearThread removes every entry of a thread and returns how many were removed.
func (m *SharedMemory) ClearThread(ctx context.Context, threadID string) (int, error) {
	n, err := m.backend.DeleteThread(ctx, threadID)
	if err != nil {
		return 0, &core.FrameworkError{Op: "memory.ClearThread", Kind: "memory", ID: threadID, Err: err}
	}
	m.logger.InfoWithContext(ctx, "Cleared memory thread", map[string]interface{}{
		"thread_id": threadID,
		"removed":   n,
	})
	return n, nil
}

// Close releases the backend
func (m *SharedMemory) Close() error {
	if err := m.backend.Close(); err != nil {
		return fmt.Errorf("close %s backend: %w", m.backend.Name(), err)
	}
	return nil
}
