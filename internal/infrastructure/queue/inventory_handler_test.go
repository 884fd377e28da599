package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appinventory "github.com/channelsync/backend/internal/application/inventory"
)

type fakeIngester struct {
	events [][]appinventory.StockChangeEvent
	err    error
}

func (f *fakeIngester) Ingest(_ context.Context, events []appinventory.StockChangeEvent) error {
	f.events = append(f.events, events)
	return f.err
}

func TestDecodeStockChangeEvents(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		payload := []byte(`[
			{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1","available_quantity":"10"},
			{"channel_uid":"chanA","sku":"sku-2","product_id":"p-1","available_quantity":"20"}
		]`)
		events, err := decodeStockChangeEvents(payload)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "sku-1", events[0].SKU)
		assert.True(t, decimal.NewFromInt(20).Equal(events[1].AvailableQuantity))
	})

	t.Run("inventory_requests wrapper", func(t *testing.T) {
		payload := []byte(`{"inventory_requests":[{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1"}]}`)
		events, err := decodeStockChangeEvents(payload)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "chanA", events[0].ChannelUID)
	})

	t.Run("events wrapper alias", func(t *testing.T) {
		payload := []byte(`{"events":[{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1"}]}`)
		events, err := decodeStockChangeEvents(payload)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "chanA", events[0].ChannelUID)
	})

	t.Run("inventory_requests wins over events alias", func(t *testing.T) {
		payload := []byte(`{
			"inventory_requests": [{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1"}],
			"events": [{"channel_uid":"chanB","sku":"sku-9","product_id":"p-9"}]
		}`)
		events, err := decodeStockChangeEvents(payload)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "chanA", events[0].ChannelUID)
	})

	t.Run("single object", func(t *testing.T) {
		payload := []byte(`{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1"}`)
		events, err := decodeStockChangeEvents(payload)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "p-1", events[0].ProductID)
	})

	t.Run("large metadata numbers keep full precision", func(t *testing.T) {
		payload := []byte(`{
			"channel_uid": "chanA",
			"sku": "sku-1",
			"product_id": "p-1",
			"request_metadata": {"warehouse_id": 7314852637284561923}
		}`)
		events, err := decodeStockChangeEvents(payload)
		require.NoError(t, err)
		require.Len(t, events, 1)
		merged := events[0].MergedMetadata()
		assert.Equal(t, "7314852637284561923", merged["warehouse_id"])
	})

	t.Run("empty payload decodes to nothing", func(t *testing.T) {
		events, err := decodeStockChangeEvents([]byte("  \n"))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("malformed array fails", func(t *testing.T) {
		_, err := decodeStockChangeEvents([]byte(`[{"channel_uid":`))
		require.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("malformed object fails", func(t *testing.T) {
		_, err := decodeStockChangeEvents([]byte(`{broken`))
		require.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestStockChangeHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards decoded events to intake", func(t *testing.T) {
		ingester := &fakeIngester{}
		handler := NewStockChangeHandler(ingester, zap.NewNop())

		err := handler.Handle(ctx, []byte(`[{"channel_uid":"chanA","sku":"sku-1","product_id":"p-1"}]`))
		require.NoError(t, err)
		require.Len(t, ingester.events, 1)
		assert.Len(t, ingester.events[0], 1)
	})

	t.Run("empty payload is rejected without ingest", func(t *testing.T) {
		ingester := &fakeIngester{}
		handler := NewStockChangeHandler(ingester, zap.NewNop())

		err := handler.Handle(ctx, []byte(""))
		require.ErrorIs(t, err, ErrMalformedPayload)
		assert.Empty(t, ingester.events)
	})

	t.Run("empty batch response is rejected", func(t *testing.T) {
		ingester := &fakeIngester{err: appinventory.ErrEmptyBatch}
		handler := NewStockChangeHandler(ingester, zap.NewNop())

		err := handler.Handle(ctx, []byte(`{"channel_uid":"chanA"}`))
		require.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("intake failure propagates for redelivery", func(t *testing.T) {
		ingester := &fakeIngester{err: errors.New("db down")}
		handler := NewStockChangeHandler(ingester, zap.NewNop())

		err := handler.Handle(ctx, []byte(`{"channel_uid":"chanA"}`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("undecodable payload fails", func(t *testing.T) {
		ingester := &fakeIngester{}
		handler := NewStockChangeHandler(ingester, zap.NewNop())

		err := handler.Handle(ctx, []byte(`not json`))
		require.ErrorIs(t, err, ErrMalformedPayload)
		assert.Empty(t, ingester.events)
	})
}
