package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/gate/pkg/log"
)

// Validate that RedisStore implements the BucketStore interface
var _ BucketStore = &RedisStore{}

// RedisStore is a BucketStore backed by Redis, for multi-instance
// gateway deployments that share window state.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger log.Logger
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces bucket keys in a shared Redis instance.
	// Defaults to "gate:bucket:".
	KeyPrefix string
}

// NewRedisStore creates a Redis-backed bucket store and verifies
// connectivity.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger log.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "gate:bucket:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger = logger.WithComponent("ratelimit-redis-store")
	logger.Info("rate-limit bucket store connected", log.Str("addr", opts.Addr))

	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Get retrieves the bucket stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Bucket, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get bucket %s: %w", key, err)
	}

	var bucket Bucket
	if err := json.Unmarshal(data, &bucket); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal bucket %s: %w", key, err)
	}
	return &bucket, true, nil
}

// Set stores the bucket under key. The entry expires shortly after the
// bucket's window ends, so Redis reclaims idle buckets on its own.
func (s *RedisStore) Set(ctx context.Context, key string, bucket *Bucket) error {
	data, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket %s: %w", key, err)
	}

	ttl := time.Until(bucket.WindowEnd) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set bucket %s: %w", key, err)
	}
	return nil
}

// Delete removes the bucket stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", key, err)
	}
	return nil
}

// ClearExpired is a no-op: entries carry TTLs and Redis expires them.
func (s *RedisStore) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
