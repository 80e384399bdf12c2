// Package cache provides the webhook deduplication store. Each accepted
// webhook marks its order key before any work is enqueued; a second
// delivery of the same marketplace order is dropped at the door.
package cache

import (
	"context"
	"time"
)

// DedupStore records which marketplace orders have already been accepted.
// Keys are order dedup keys ("<marketplace>:<externalOrderId>").
type DedupStore interface {
	// MarkProcessed marks a key as seen with a TTL. Returns true if the
	// key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a key has already been marked.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases store resources.
	Close() error
}
