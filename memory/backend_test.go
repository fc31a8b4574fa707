package memory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/docrouter/core"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBSharedMemory,
		Namespace: core.DefaultMemoryNamespace,
	})
	require.NoError(t, err)

	b := NewRedisBackend(client, nil)
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func setupTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// backendsUnderTest runs the same contract against every provider
func backendsUnderTest(t *testing.T) map[string]Backend {
	_, redisBackend := setupTestRedis(t)
	return map[string]Backend{
		core.MemoryProviderInMemory: NewInMemoryBackend(),
		core.MemoryProviderRedis:    redisBackend,
		core.MemoryProviderSQLite:   setupTestSQLite(t),
	}
}

func testEntry(id, thread string, ts int64) *MemoryEntry {
	return &MemoryEntry{
		ID:              id,
		Source:          "email",
		Type:            "rfq",
		Timestamp:       time.Unix(ts, 0).UTC(),
		ExtractedValues: map[string]interface{}{"agent_id": "a-1", "count": float64(2)},
		ThreadID:        thread,
	}
}

func TestBackendContract(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Equal(t, name, backend.Name())
			require.NoError(t, backend.Ping(ctx))

			conv := "conv-9"
			e1 := testEntry("entry:1.000000-00000001", "thread-a", 10)
			e1.ConversationID = &conv
			e2 := testEntry("entry:2.000000-00000002", "thread-a", 20)
			e3 := testEntry("entry:3.000000-00000003", "thread-b", 30)
			for _, e := range []*MemoryEntry{e1, e2, e3} {
				require.NoError(t, backend.Put(ctx, e))
			}

			// Round trip
			got, err := backend.Get(ctx, e1.ID)
			require.NoError(t, err)
			assert.Equal(t, e1.Source, got.Source)
			assert.True(t, e1.Timestamp.Equal(got.Timestamp))
			assert.Equal(t, e1.ExtractedValues, got.ExtractedValues)
			require.NotNil(t, got.ConversationID)
			assert.Equal(t, "conv-9", *got.ConversationID)

			_, err = backend.Get(ctx, "entry:missing")
			assert.ErrorIs(t, err, core.ErrEntryNotFound)

			// Thread listing
			thread, err := backend.ListThread(ctx, "thread-a")
			require.NoError(t, err)
			assert.Len(t, thread, 2)

			empty, err := backend.ListThread(ctx, "thread-none")
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			// Update moves the entry between threads
			require.NoError(t, backend.Update(ctx, e2.ID, func(e *MemoryEntry) error {
				e.ThreadID = "thread-b"
				e.Type = "invoice"
				return nil
			}))
			got, err = backend.Get(ctx, e2.ID)
			require.NoError(t, err)
			assert.Equal(t, "invoice", got.Type)

			thread, err = backend.ListThread(ctx, "thread-a")
			require.NoError(t, err)
			assert.Len(t, thread, 1)
			thread, err = backend.ListThread(ctx, "thread-b")
			require.NoError(t, err)
			assert.Len(t, thread, 2)

			err = backend.Update(ctx, "entry:missing", func(e *MemoryEntry) error { return nil })
			assert.ErrorIs(t, err, core.ErrEntryNotFound)

			// A failing update writes nothing
			err = backend.Update(ctx, e1.ID, func(e *MemoryEntry) error {
				e.Source = "mutated"
				return core.ErrInvalidPatch
			})
			assert.ErrorIs(t, err, core.ErrInvalidPatch)
			got, err = backend.Get(ctx, e1.ID)
			require.NoError(t, err)
			assert.Equal(t, "email", got.Source)

			// Delete
			require.NoError(t, backend.Delete(ctx, e1.ID))
			assert.ErrorIs(t, backend.Delete(ctx, e1.ID), core.ErrEntryNotFound)
			thread, err = backend.ListThread(ctx, "thread-a")
			require.NoError(t, err)
			assert.Empty(t, thread)

			// Clear thread
			n, err := backend.DeleteThread(ctx, "thread-b")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			_, err = backend.Get(ctx, e3.ID)
			assert.ErrorIs(t, err, core.ErrEntryNotFound)

			n, err = backend.DeleteThread(ctx, "thread-b")
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestBackendConcurrentWrites(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					e := testEntry(fmt.Sprintf("entry:%d.000000-%08x", i, i), "shared", int64(i))
					assert.NoError(t, backend.Put(ctx, e))
				}(i)
			}
			wg.Wait()

			thread, err := backend.ListThread(ctx, "shared")
			require.NoError(t, err)
			assert.Len(t, thread, 20)
		})
	}
}

func TestRedisBackend_StaleIndexSkipped(t *testing.T) {
	mr, backend := setupTestRedis(t)
	ctx := context.Background()

	e := testEntry("entry:1.000000-aaaaaaaa", "t", 1)
	require.NoError(t, backend.Put(ctx, e))
	assert.True(t, mr.Exists("docrouter:memory:entry:1.000000-aaaaaaaa"))

	// Entry removed behind the index's back
	mr.Del("docrouter:memory:entry:1.000000-aaaaaaaa")

	thread, err := backend.ListThread(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, thread)
}

func TestSQLiteBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	b, err := NewSQLiteBackend(path, nil)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, testEntry("entry:5.000000-bbbbbbbb", "durable", 5)))
	require.NoError(t, b.Close())

	// Migrations are not re-applied and data survives
	b, err = NewSQLiteBackend(path, nil)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "entry:5.000000-bbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, "durable", got.ThreadID)
}

func TestSQLiteBackend_UnreadableMigrationTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE schema_migrations (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = NewSQLiteBackend(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read migration version")
}

func TestSQLiteBackend_PingAfterClose(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "memory.db"), nil)
	require.NoError(t, err)
	require.NoError(t, b.Ping(context.Background()))
	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(context.Background()))
}
