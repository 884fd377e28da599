package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/infrastructure/cache"
)

func TestDecodeFields(t *testing.T) {
	t.Run("extracts kind and payload", func(t *testing.T) {
		msg := redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"kind":    "stock_change",
				"payload": `{"channel_uid":"chanA"}`,
			},
		}
		kind, payload, err := decodeFields(msg)
		require.NoError(t, err)
		assert.Equal(t, KindStockChange, kind)
		assert.JSONEq(t, `{"channel_uid":"chanA"}`, string(payload))
	})

	t.Run("missing kind field fails", func(t *testing.T) {
		msg := redis.XMessage{Values: map[string]any{"payload": "{}"}}
		_, _, err := decodeFields(msg)
		require.Error(t, err)
	})

	t.Run("empty kind fails", func(t *testing.T) {
		msg := redis.XMessage{Values: map[string]any{"kind": "", "payload": "{}"}}
		_, _, err := decodeFields(msg)
		require.Error(t, err)
	})

	t.Run("missing payload field fails", func(t *testing.T) {
		msg := redis.XMessage{Values: map[string]any{"kind": "stock_change"}}
		_, _, err := decodeFields(msg)
		require.Error(t, err)
	})

	t.Run("non-string values fail", func(t *testing.T) {
		msg := redis.XMessage{Values: map[string]any{"kind": 7, "payload": "{}"}}
		_, _, err := decodeFields(msg)
		require.Error(t, err)
	})
}

// newProcessTestConsumer wires a consumer against an in-memory idempotency
// store. The redis client points at a closed port; ack attempts fail fast and
// are logged, which is enough for exercising process directly.
func newProcessTestConsumer(t *testing.T) (*Consumer, *cache.InMemoryIdempotencyStore) {
	t.Helper()

	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	return NewConsumer(client, ConsumerConfig{
		Stream:           "stock-changes",
		Group:            "workers",
		Consumer:         "worker-1",
		DeadLetterStream: "stock-changes-dead",
		MaxDeliveries:    5,
	}, store, zap.NewNop()), store
}

func stockChangeMessage(id string) redis.XMessage {
	return redis.XMessage{
		ID: id,
		Values: map[string]any{
			"kind":    string(KindStockChange),
			"payload": `{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1"}`,
		},
	}
}

func TestConsumer_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("failed delivery is re-ingested on redelivery", func(t *testing.T) {
		consumer, store := newProcessTestConsumer(t)

		var calls atomic.Int32
		consumer.Register(KindStockChange, HandlerFunc(func(_ context.Context, _ []byte) error {
			if calls.Add(1) == 1 {
				return errors.New("storage offline")
			}
			return nil
		}))

		msg := stockChangeMessage("1-1")

		consumer.process(ctx, msg, 1)
		processed, err := store.IsProcessed(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, processed, "failed delivery must not be recorded as processed")

		consumer.process(ctx, msg, 2)
		assert.Equal(t, int32(2), calls.Load(), "redelivery must reach the handler again")
		processed, err = store.IsProcessed(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("already processed message skips the handler", func(t *testing.T) {
		consumer, store := newProcessTestConsumer(t)

		var calls atomic.Int32
		consumer.Register(KindStockChange, HandlerFunc(func(_ context.Context, _ []byte) error {
			calls.Add(1)
			return nil
		}))

		msg := stockChangeMessage("2-1")
		fresh, err := store.MarkProcessed(ctx, msg.ID, idempotencyTTL)
		require.NoError(t, err)
		require.True(t, fresh)

		consumer.process(ctx, msg, 1)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("transient failure does not consume the mark across instances", func(t *testing.T) {
		consumer, store := newProcessTestConsumer(t)

		consumer.Register(KindStockChange, HandlerFunc(func(_ context.Context, _ []byte) error {
			return errors.New("db down")
		}))

		msg := stockChangeMessage("3-1")
		consumer.process(ctx, msg, 1)
		consumer.process(ctx, msg, 2)
		consumer.process(ctx, msg, 3)

		processed, err := store.IsProcessed(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, processed, "message must stay eligible for ingest while the handler keeps failing")
	})
}

func TestUnknownKindError(t *testing.T) {
	err := &UnknownKindError{Kind: "order_update"}
	assert.Contains(t, err.Error(), "order_update")
}

func TestHandlerFunc(t *testing.T) {
	called := false
	var h Handler = HandlerFunc(func(_ context.Context, payload []byte) error {
		called = true
		assert.Equal(t, "body", string(payload))
		return nil
	})
	require.NoError(t, h.Handle(context.Background(), []byte("body")))
	assert.True(t, called)
}
