package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupStore implements DedupStore using Redis
// This is suitable for distributed deployments where multiple instances
// need to share deduplication state
type RedisDedupStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisDedupConfig holds Redis connection configuration
type RedisDedupConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisDedupStore creates a new Redis-based deduplication store
func NewRedisDedupStore(cfg RedisDedupConfig) (*RedisDedupStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDedupStore{
		client:    client,
		keyPrefix: "webhook:dedup:",
	}, nil
}

// NewRedisDedupStoreWithClient creates a store with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisDedupStoreWithClient(client *redis.Client, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = "webhook:dedup:"
	}
	return &RedisDedupStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed marks an order key as seen with a TTL
// Returns true if the key was newly marked, false if it was already present
// Uses SETNX (SET if Not eXists) for atomic operation
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	full := s.keyPrefix + key

	// Returns true if key was set, false if it already existed
	result, err := s.client.SetNX(ctx, full, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark order as seen: %w", err)
	}

	return result, nil
}

// IsProcessed checks if an order key has already been marked
func (s *RedisDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	full := s.keyPrefix + key

	exists, err := s.client.Exists(ctx, full).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check order dedup key: %w", err)
	}

	return exists > 0, nil
}

// Close closes the Redis client
func (s *RedisDedupStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisDedupStore) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisDedupStore implements DedupStore
var _ DedupStore = (*RedisDedupStore)(nil)
