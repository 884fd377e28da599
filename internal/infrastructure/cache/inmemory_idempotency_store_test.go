package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("marks new message as processed", func(t *testing.T) {
		fresh, err := store.MarkProcessed(ctx, "msg-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, fresh, "new message should return true")
	})

	t.Run("returns false for already processed message", func(t *testing.T) {
		fresh, err := store.MarkProcessed(ctx, "msg-2", time.Hour)
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = store.MarkProcessed(ctx, "msg-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, fresh, "already processed message should return false")
	})

	t.Run("allows reprocessing after expiration", func(t *testing.T) {
		fresh, err := store.MarkProcessed(ctx, "msg-3", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, fresh)

		time.Sleep(20 * time.Millisecond)

		fresh, err = store.MarkProcessed(ctx, "msg-3", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, fresh, "expired message should be reprocessable")
	})
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("returns false for unknown message", func(t *testing.T) {
		processed, err := store.IsProcessed(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("returns true for processed message", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "seen", time.Hour)
		require.NoError(t, err)

		processed, err := store.IsProcessed(ctx, "seen")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("returns false for expired message", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "expiring", 10*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		processed, err := store.IsProcessed(ctx, "expiring")
		require.NoError(t, err)
		assert.False(t, processed)
	})
}

func TestInMemoryIdempotencyStore_Concurrency(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	// Exactly one goroutine should win the mark for a contended message ID.
	const workers = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := store.MarkProcessed(ctx, "contended", time.Hour)
			assert.NoError(t, err)
			if fresh {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one caller should observe a fresh mark")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "close should be safe to call twice")
}
