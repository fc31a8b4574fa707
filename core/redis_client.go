// Package core provides the configuration, logging, error envelope, HTTP
// service base and Redis access shared by the document router packages.
//
// The Redis client in this file wraps go-redis with database isolation and
// key namespacing. The shared memory Redis backend is its main user:
//
//	client, err := NewRedisClient(RedisClientOptions{
//	    RedisURL:  "redis://localhost:6379",
//	    DB:        RedisDBSharedMemory,
//	    Namespace: "docrouter:memory",
//	})
//
// Every key passed to the client is prefixed with the namespace, so two
// deployments can share one Redis database without colliding.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisDBSharedMemory holds memory entries and thread indexes (default)
const RedisDBSharedMemory = 0

// DefaultMemoryNamespace prefixes every shared memory key
const DefaultMemoryNamespace = "docrouter:memory"

// RedisClient provides a simplified Redis interface with DB isolation
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger // Optional logger
}

// RedisClientOptions configures the Redis client
type RedisClientOptions struct {
	RedisURL    string
	DB          int    // Redis DB number for isolation (0-15)
	Namespace   string // Key namespace for organization
	PingTimeout time.Duration
	Logger      Logger // Optional logger
}

// NewRedisClient parses the URL, selects the DB and verifies the connection
// with a PING. Connection failures wrap ErrConnectionFailed so callers can retry.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Error("Failed to parse Redis URL", map[string]interface{}{
				"error":      err,
				"error_type": fmt.Sprintf("%T", err),
			})
		}
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	// Override DB for isolation
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if opts.Logger != nil {
			opts.Logger.Warn("Failed to connect to Redis", map[string]interface{}{
				"error":     err,
				"db":        opts.DB,
				"namespace": opts.Namespace,
			})
		}
		return nil, fmt.Errorf("failed to connect to Redis DB %d: %v: %w", opts.DB, err, ErrConnectionFailed)
	}

	rc := &RedisClient{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    opts.Logger,
	}

	if rc.logger != nil {
		rc.logger.Info("Redis client connected", map[string]interface{}{
			"db":        opts.DB,
			"namespace": opts.Namespace,
		})
	}

	return rc, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	err := r.client.Close()
	if err != nil && r.logger != nil {
		r.logger.Error("Failed to close Redis client", map[string]interface{}{
			"error":     err,
			"db":        r.dbID,
			"namespace": r.namespace,
		})
	}
	return err
}

// Key formats a key with the namespace. Exposed for pipelines, which bypass
// the namespacing helpers below.
func (r *RedisClient) Key(key string) string {
	if r.namespace != "" {
		return fmt.Sprintf("%s:%s", r.namespace, key)
	}
	return key
}

// --- Key/value operations ---

// Get retrieves a value. A missing key returns redis.Nil.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.Key(key)).Result()
}

// MGet retrieves several values at once. Missing keys come back as nil.
func (r *RedisClient) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	formatted := make([]string, len(keys))
	for i, key := range keys {
		formatted[i] = r.Key(key)
	}
	return r.client.MGet(ctx, formatted...).Result()
}

// --- Set operations (thread indexes) ---

// SMembers lists the members of a set
func (r *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, r.Key(key)).Result()
}

// --- Transactions ---

// TxPipeline creates a MULTI/EXEC pipeline. Keys must be formatted with Key.
func (r *RedisClient) TxPipeline() redis.Pipeliner {
	return r.client.TxPipeline()
}

// Watch runs fn in an optimistic transaction over the namespaced keys.
// fn returns redis.TxFailedErr when another client modified a watched key.
func (r *RedisClient) Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	formatted := make([]string, len(keys))
	for i, key := range keys {
		formatted[i] = r.Key(key)
	}
	return r.client.Watch(ctx, fn, formatted...)
}

// --- Health Check ---

// HealthCheck verifies Redis connectivity. The memory health probe calls it.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil && r.logger != nil {
		r.logger.ErrorWithContext(ctx, "Redis health check failed", map[string]interface{}{
			"error":     err,
			"db":        r.dbID,
			"namespace": r.namespace,
		})
	}
	return err
}
