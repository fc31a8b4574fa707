package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/docrouter/core"
)

// steppingClock returns timestamps one second apart, starting at start
func steppingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func TestSharedMemory_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	conv := "conv-1"
	id, err := m.StoreEntry(ctx, "email", "complaint", map[string]interface{}{"agent_id": "x"}, "thread-1", &conv)
	require.NoError(t, err)
	assert.Regexp(t, `^entry:\d+\.\d{6}-[0-9a-f]{8}$`, id)

	e, err := m.GetEntry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "email", e.Source)
	assert.Equal(t, "complaint", e.Type)
	assert.Equal(t, "thread-1", e.ThreadID)
	assert.Equal(t, "conv-1", *e.ConversationID)
	assert.WithinDuration(t, time.Now(), e.Timestamp, 5*time.Second)

	missing, err := m.GetEntry(ctx, "entry:nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSharedMemory_NilExtractedValues(t *testing.T) {
	m := New(NewInMemoryBackend())
	id, err := m.StoreEntry(context.Background(), "json", "invoice", nil, "t", nil)
	require.NoError(t, err)

	e, err := m.GetEntry(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, e.ExtractedValues)
	assert.Nil(t, e.ConversationID)
}

func TestSharedMemory_ThreadHistoryOrdered(t *testing.T) {
	ctx := context.Background()
	sqlite := setupTestSQLite(t)
	_, redisBackend := setupTestRedis(t)

	for _, backend := range []Backend{NewInMemoryBackend(), redisBackend, sqlite} {
		t.Run(backend.Name(), func(t *testing.T) {
			m := New(backend, WithClock(steppingClock(time.Unix(1000, 0).UTC())))

			first, err := m.StoreEntry(ctx, "json", "invoice", nil, "ordered", nil)
			require.NoError(t, err)
			second, err := m.StoreEntry(ctx, "email", "rfq", nil, "ordered", nil)
			require.NoError(t, err)
			third, err := m.StoreEntry(ctx, "pdf", "regulation", nil, "ordered", nil)
			require.NoError(t, err)
			_, err = m.StoreEntry(ctx, "json", "invoice", nil, "other", nil)
			require.NoError(t, err)

			// Move the first entry to the end of the thread
			ok, err := m.UpdateEntry(ctx, first, map[string]interface{}{
				"timestamp": time.Unix(5000, 0).UTC().Format(time.RFC3339Nano),
			})
			require.NoError(t, err)
			require.True(t, ok)

			history, err := m.GetThreadHistory(ctx, "ordered")
			require.NoError(t, err)
			require.Len(t, history, 3)
			assert.Equal(t, []string{second, third, first}, []string{history[0].ID, history[1].ID, history[2].ID})

			empty, err := m.GetThreadHistory(ctx, "unknown-thread")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestSharedMemory_UpdateDeleteClear(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	id, err := m.StoreEntry(ctx, "email", "rfq", nil, "t1", nil)
	require.NoError(t, err)
	_, err = m.StoreEntry(ctx, "email", "rfq", nil, "t1", nil)
	require.NoError(t, err)

	ok, err := m.UpdateEntry(ctx, id, map[string]interface{}{"type": "invoice", "unknown": 1})
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := m.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "invoice", e.Type)

	ok, err = m.UpdateEntry(ctx, "entry:missing", map[string]interface{}{"type": "x"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.UpdateEntry(ctx, id, map[string]interface{}{"type": 5})
	assert.ErrorIs(t, err, core.ErrInvalidPatch)
	assert.False(t, ok)

	ok, err = m.DeleteEntry(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.DeleteEntry(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := m.ClearThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.ClearThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// failingBackend reports a transport error on every call
type failingBackend struct{ *InMemoryBackend }

var errBackendDown = errors.New("backend down")

func (f *failingBackend) Put(ctx context.Context, e *MemoryEntry) error { return errBackendDown }
func (f *failingBackend) Get(ctx context.Context, id string) (*MemoryEntry, error) {
	return nil, errBackendDown
}

func (f *failingBackend) Ping(ctx context.Context) error { return errBackendDown }

func TestSharedMemory_BackendErrors(t *testing.T) {
	ctx := context.Background()
	m := New(&failingBackend{InMemoryBackend: NewInMemoryBackend()})

	_, err := m.StoreEntry(ctx, "json", "invoice", nil, "t", nil)
	assert.ErrorIs(t, err, errBackendDown)

	var fe *core.FrameworkError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "memory.StoreEntry", fe.Op)

	_, err = m.GetEntry(ctx, "entry:x")
	assert.ErrorIs(t, err, errBackendDown)
}

func TestSharedMemory_Ping(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, New(nil).Ping(ctx))

	err := New(&failingBackend{InMemoryBackend: NewInMemoryBackend()}).Ping(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.Contains(t, err.Error(), "backend down")

	mr, backend := setupTestRedis(t)
	m := New(backend)
	require.NoError(t, m.Ping(ctx))
	mr.Close()
	err = m.Ping(ctx)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.True(t, core.IsRetryable(err))
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	b, err := NewBackend(ctx, core.MemoryConfig{Provider: core.MemoryProviderInMemory}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.MemoryProviderInMemory, b.Name())

	b, err = NewBackend(ctx, core.MemoryConfig{
		Provider:   core.MemoryProviderSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "m.db"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.MemoryProviderSQLite, b.Name())
	require.NoError(t, b.Close())

	mr := miniredis.RunT(t)
	b, err = NewBackend(ctx, core.MemoryConfig{
		Provider:  core.MemoryProviderRedis,
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "test",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.MemoryProviderRedis, b.Name())
	require.NoError(t, b.Close())

	_, err = NewBackend(ctx, core.MemoryConfig{Provider: "cassandra"}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestNewBackend_RedisRetries(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewBackend(context.Background(), core.MemoryConfig{
		Provider:        core.MemoryProviderRedis,
		RedisURL:        "redis://" + addr,
		ConnectAttempts: 2,
	}, nil)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
}

func TestNewBackend_InvalidRedisURLNotRetried(t *testing.T) {
	start := time.Now()
	_, err := NewBackend(context.Background(), core.MemoryConfig{
		Provider:        core.MemoryProviderRedis,
		RedisURL:        "not a url",
		ConnectAttempts: 5,
	}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
