package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDedupStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryDedupStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("marks new order key as seen", func(t *testing.T) {
		key := "shopee:2403129xyz"
		ttl := 1 * time.Hour

		isNew, err := store.MarkProcessed(ctx, key, ttl)
		require.NoError(t, err)
		assert.True(t, isNew, "new order key should return true")
	})

	t.Run("returns false for already seen order key", func(t *testing.T) {
		key := "lazada:778812"
		ttl := 1 * time.Hour

		// First delivery
		isNew, err := store.MarkProcessed(ctx, key, ttl)
		require.NoError(t, err)
		assert.True(t, isNew)

		// Redelivery - should return false
		isNew, err = store.MarkProcessed(ctx, key, ttl)
		require.NoError(t, err)
		assert.False(t, isNew, "redelivered order key should return false")
	})

	t.Run("allows re-marking after expiration", func(t *testing.T) {
		key := "shopee:short-ttl"
		ttl := 10 * time.Millisecond

		isNew, err := store.MarkProcessed(ctx, key, ttl)
		require.NoError(t, err)
		assert.True(t, isNew)

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		isNew, err = store.MarkProcessed(ctx, key, ttl)
		require.NoError(t, err)
		assert.True(t, isNew, "expired key should be markable again")
	})
}

func TestInMemoryDedupStore_IsProcessed(t *testing.T) {
	store := NewInMemoryDedupStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("returns false for unseen order key", func(t *testing.T) {
		seen, err := store.IsProcessed(ctx, "shopee:unknown")
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("returns true for seen order key", func(t *testing.T) {
		key := "lazada:991"
		_, err := store.MarkProcessed(ctx, key, 1*time.Hour)
		require.NoError(t, err)

		seen, err := store.IsProcessed(ctx, key)
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("returns false for expired order key", func(t *testing.T) {
		key := "lazada:expired"
		_, err := store.MarkProcessed(ctx, key, 10*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		seen, err := store.IsProcessed(ctx, key)
		require.NoError(t, err)
		assert.False(t, seen, "expired key should return false")
	})
}

func TestInMemoryDedupStore_Size(t *testing.T) {
	store := NewInMemoryDedupStore()
	defer store.Close()

	ctx := context.Background()

	assert.Equal(t, 0, store.Size(), "empty store should have size 0")

	store.MarkProcessed(ctx, "shopee:1", 1*time.Hour)
	assert.Equal(t, 1, store.Size())

	store.MarkProcessed(ctx, "shopee:2", 1*time.Hour)
	assert.Equal(t, 2, store.Size())

	// Redelivering the same key shouldn't increase size
	store.MarkProcessed(ctx, "shopee:1", 1*time.Hour)
	assert.Equal(t, 2, store.Size())
}

func TestInMemoryDedupStore_Cleanup(t *testing.T) {
	store := NewInMemoryDedupStore()
	defer store.Close()

	ctx := context.Background()

	store.MarkProcessed(ctx, "shopee:short-1", 10*time.Millisecond)
	store.MarkProcessed(ctx, "shopee:short-2", 10*time.Millisecond)
	store.MarkProcessed(ctx, "shopee:long", 1*time.Hour)

	assert.Equal(t, 3, store.Size())

	time.Sleep(20 * time.Millisecond)

	// Manually trigger cleanup
	store.cleanup()

	assert.Equal(t, 1, store.Size())

	seen, err := store.IsProcessed(ctx, "shopee:long")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.IsProcessed(ctx, "shopee:short-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestInMemoryDedupStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryDedupStore()
	defer store.Close()

	ctx := context.Background()
	const numGoroutines = 100
	const key = "shopee:concurrent"

	results := make(chan bool, numGoroutines)

	// Concurrent webhook deliveries for the same order
	for i := 0; i < numGoroutines; i++ {
		go func() {
			isNew, err := store.MarkProcessed(ctx, key, 1*time.Hour)
			if err != nil {
				results <- false
			} else {
				results <- isNew
			}
		}()
	}

	newCount := 0
	duplicateCount := 0
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			newCount++
		} else {
			duplicateCount++
		}
	}

	// Exactly one delivery should win
	assert.Equal(t, 1, newCount, "exactly one delivery should mark as new")
	assert.Equal(t, numGoroutines-1, duplicateCount, "all others should be duplicates")
}

func TestInMemoryDedupStore_Close(t *testing.T) {
	store := NewInMemoryDedupStore()

	err := store.Close()
	assert.NoError(t, err)

	// Multiple closes should be safe
	err = store.Close()
	assert.NoError(t, err)
}
