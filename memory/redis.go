package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/docrouter/core"
)

// maxTxAttempts bounds optimistic transaction retries on concurrent writes
const maxTxAttempts = 5

// RedisBackend stores each entry as a JSON string under its id and keeps a
// set of entry ids per thread. Keys are namespaced by the client:
//
//	<namespace>:entry:<ts>-<hex>   JSON MemoryEntry
//	<namespace>:thread:<thread_id> SET of entry ids
type RedisBackend struct {
	client *core.RedisClient
	logger core.Logger
}

// NewRedisBackend wraps a connected client. The backend owns the client and
// closes it on Close.
func NewRedisBackend(client *core.RedisClient, logger core.Logger) *RedisBackend {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisBackend{client: client, logger: logger}
}

func (b *RedisBackend) Name() string { return core.MemoryProviderRedis }

func threadKey(threadID string) string {
	return "thread:" + threadID
}

func (b *RedisBackend) Put(ctx context.Context, e *MemoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.ID, err)
	}

	return b.watch(ctx, e.ID, func(tx *redis.Tx) error {
		prev, err := b.load(ctx, tx, e.ID)
		if err != nil && !errors.Is(err, core.ErrEntryNotFound) {
			return err
		}
		return b.write(ctx, tx, prev, e, data)
	})
}

func (b *RedisBackend) Get(ctx context.Context, id string) (*MemoryEntry, error) {
	raw, err := b.client.Get(ctx, id)
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return decodeEntry(raw)
}

func (b *RedisBackend) Update(ctx context.Context, id string, fn func(*MemoryEntry) error) error {
	return b.watch(ctx, id, func(tx *redis.Tx) error {
		prev, err := b.load(ctx, tx, id)
		if err != nil {
			return err
		}

		updated := prev.Clone()
		if err := fn(updated); err != nil {
			return err
		}
		updated.ID = id

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", id, err)
		}
		return b.write(ctx, tx, prev, updated, data)
	})
}

func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	return b.watch(ctx, id, func(tx *redis.Tx) error {
		prev, err := b.load(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, b.client.Key(id))
			p.SRem(ctx, b.client.Key(threadKey(prev.ThreadID)), id)
			return nil
		})
		return err
	})
}

func (b *RedisBackend) ListThread(ctx context.Context, threadID string) ([]*MemoryEntry, error) {
	ids, err := b.client.SMembers(ctx, threadKey(threadID))
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}
	if len(ids) == 0 {
		return []*MemoryEntry{}, nil
	}

	values, err := b.client.MGet(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	out := make([]*MemoryEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index points at a deleted entry
			b.logger.DebugWithContext(ctx, "Skipping stale thread member", map[string]interface{}{
				"thread_id": threadID,
				"entry_id":  ids[i],
			})
			continue
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *RedisBackend) DeleteThread(ctx context.Context, threadID string) (int, error) {
	ids, err := b.client.SMembers(ctx, threadKey(threadID))
	if err != nil {
		return 0, fmt.Errorf("list thread %s: %w", threadID, err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.client.Key(id)
	}

	pipe := b.client.TxPipeline()
	var delEntries *redis.IntCmd
	if len(keys) > 0 {
		delEntries = pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, b.client.Key(threadKey(threadID)))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("clear thread %s: %w", threadID, err)
	}

	if delEntries == nil {
		return 0, nil
	}
	return int(delEntries.Val()), nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.HealthCheck(ctx)
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// watch runs fn in a WATCH transaction on the entry key, retrying when a
// concurrent writer wins the race.
func (b *RedisBackend) watch(ctx context.Context, id string, fn func(*redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = b.client.Watch(ctx, fn, id)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("entry %s: concurrent modification: %w", id, err)
}

func (b *RedisBackend) load(ctx context.Context, tx *redis.Tx, id string) (*MemoryEntry, error) {
	raw, err := tx.Get(ctx, b.client.Key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return decodeEntry(raw)
}

// write stores next and moves the thread index entry when the thread changed.
// prev is nil for a fresh insert.
func (b *RedisBackend) write(ctx context.Context, tx *redis.Tx, prev, next *MemoryEntry, data []byte) error {
	_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != nil && prev.ThreadID != next.ThreadID {
			p.SRem(ctx, b.client.Key(threadKey(prev.ThreadID)), next.ID)
		}
		p.Set(ctx, b.client.Key(next.ID), data, 0)
		p.SAdd(ctx, b.client.Key(threadKey(next.ThreadID)), next.ID)
		return nil
	})
	return err
}

func decodeEntry(raw string) (*MemoryEntry, error) {
	var e MemoryEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}
