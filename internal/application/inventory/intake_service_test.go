package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/inventory"
	"github.com/channelsync/backend/internal/domain/shared"
)

type fakeChannels struct {
	uids     []string
	byUID    map[string]*channel.Channel
	listErr  error
	findErr  error
	saveErr  error
	uidCalls int
}

func (f *fakeChannels) FindByUID(_ context.Context, uid string) (*channel.Channel, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	ch, ok := f.byUID[uid]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return ch, nil
}

func (f *fakeChannels) ListAll(_ context.Context) ([]channel.Channel, error) {
	out := make([]channel.Channel, 0, len(f.byUID))
	for _, ch := range f.byUID {
		out = append(out, *ch)
	}
	return out, nil
}

func (f *fakeChannels) ListUIDs(_ context.Context) ([]string, error) {
	f.uidCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.uids, nil
}

func (f *fakeChannels) Save(_ context.Context, _ *channel.Channel) error {
	return f.saveErr
}

type fakeRequests struct {
	pending []inventory.Request

	findKeysErr    error
	findChannelErr error
	applyErr       error
	claimErr       error
	markErr        error

	appliedCreates []*inventory.Request
	appliedUpdates []*inventory.Request
	claimCalls     int
	unclaimable    map[uuid.UUID]bool
	markedOutcomes []markedOutcome
}

type markedOutcome struct {
	ids        []uuid.UUID
	status     inventory.RequestStatus
	trackingID string
}

func (f *fakeRequests) FindPendingByKeys(_ context.Context, keys []inventory.IdentityKey, since time.Time) ([]inventory.Request, error) {
	if f.findKeysErr != nil {
		return nil, f.findKeysErr
	}
	wanted := make(map[inventory.IdentityKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	var out []inventory.Request
	for _, req := range f.pending {
		if wanted[req.Key()] && !req.CreatedAt.Before(since) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequests) FindPendingByChannel(_ context.Context, channelUID string, since time.Time) ([]inventory.Request, error) {
	if f.findChannelErr != nil {
		return nil, f.findChannelErr
	}
	var out []inventory.Request
	for _, req := range f.pending {
		if req.ChannelUID == channelUID && !req.CreatedAt.Before(since) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequests) ApplyIntake(_ context.Context, creates []*inventory.Request, updates []*inventory.Request) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.appliedCreates = append(f.appliedCreates, creates...)
	f.appliedUpdates = append(f.appliedUpdates, updates...)
	return nil
}

func (f *fakeRequests) Claim(_ context.Context, ids []uuid.UUID, _, _ inventory.RequestStatus) ([]uuid.UUID, error) {
	f.claimCalls++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var claimed []uuid.UUID
	for _, id := range ids {
		if f.unclaimable[id] {
			continue
		}
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (f *fakeRequests) MarkOutcome(_ context.Context, ids []uuid.UUID, status inventory.RequestStatus, trackingID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markedOutcomes = append(f.markedOutcomes, markedOutcome{ids: ids, status: status, trackingID: trackingID})
	return nil
}

func (f *fakeRequests) CountByStatus(_ context.Context, _ string) (map[inventory.RequestStatus]int64, error) {
	counts := make(map[inventory.RequestStatus]int64)
	for _, req := range f.pending {
		counts[req.Status]++
	}
	return counts, nil
}

func stockEvent(channelUID, sku, productID string, qty int64) StockChangeEvent {
	return StockChangeEvent{
		ChannelUID:        channelUID,
		ChannelType:       "tiktok",
		SKU:               sku,
		ProductID:         productID,
		AvailableQuantity: decimal.NewFromInt(qty),
		RequestMetadata: map[string]any{
			inventory.MetadataKeySKUID:       "sk-" + sku,
			inventory.MetadataKeyWarehouseID: "wh-1",
		},
	}
}

func newIntakeService(requests *fakeRequests, channels *fakeChannels) *IntakeService {
	return NewIntakeService(requests, channels, channel.TypeTikTok, zap.NewNop())
}

func TestIntakeService_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch fails", func(t *testing.T) {
		svc := newIntakeService(&fakeRequests{}, &fakeChannels{})
		err := svc.Ingest(ctx, nil)
		require.ErrorIs(t, err, ErrEmptyBatch)
	})

	t.Run("creates pending requests for new keys", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("chanA", "sku-1", "item-1", 10),
			stockEvent("chanA", "sku-2", "item-1", 20),
		})
		require.NoError(t, err)
		require.Len(t, requests.appliedCreates, 2)
		assert.Empty(t, requests.appliedUpdates)

		first := requests.appliedCreates[0]
		assert.Equal(t, inventory.StatusPending, first.Status)
		assert.Equal(t, "sk-sku-1", first.SKUID())
		assert.Equal(t, "wh-1", first.WarehouseID())
	})

	t.Run("in-batch duplicates collapse with last write winning", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("chanA", "sku-1", "item-1", 10),
			stockEvent("chanA", "sku-1", "item-1", 3),
		})
		require.NoError(t, err)
		require.Len(t, requests.appliedCreates, 1)
		assert.True(t, decimal.NewFromInt(3).Equal(requests.appliedCreates[0].Quantity))
	})

	t.Run("merges into existing pending row", func(t *testing.T) {
		existing := inventory.NewRequest("chanA", "sku-1", "item-1", decimal.NewFromInt(5), nil)
		requests := &fakeRequests{pending: []inventory.Request{*existing}}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("chanA", "sku-1", "item-1", 42),
		})
		require.NoError(t, err)
		assert.Empty(t, requests.appliedCreates)
		require.Len(t, requests.appliedUpdates, 1)
		assert.Equal(t, existing.ID, requests.appliedUpdates[0].ID)
		assert.True(t, decimal.NewFromInt(42).Equal(requests.appliedUpdates[0].Quantity))
	})

	t.Run("stale pending row outside lookback window is not merged", func(t *testing.T) {
		existing := inventory.NewRequest("chanA", "sku-1", "item-1", decimal.NewFromInt(5), nil)
		existing.CreatedAt = time.Now().Add(-inventory.LookbackWindow - time.Hour)
		requests := &fakeRequests{pending: []inventory.Request{*existing}}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("chanA", "sku-1", "item-1", 42),
		})
		require.NoError(t, err)
		require.Len(t, requests.appliedCreates, 1, "stale row re-queues as a fresh create")
		assert.Empty(t, requests.appliedUpdates)
	})

	t.Run("skips events for unknown channels", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("nobody", "sku-1", "item-1", 10),
			stockEvent("chanA", "sku-2", "item-2", 20),
		})
		require.NoError(t, err)
		require.Len(t, requests.appliedCreates, 1)
		assert.Equal(t, "chanA", requests.appliedCreates[0].ChannelUID)
	})

	t.Run("skips events of a foreign channel type", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		ev := stockEvent("chanA", "sku-1", "item-1", 10)
		ev.ChannelType = "shopify"
		err := svc.Ingest(ctx, []StockChangeEvent{ev})
		require.NoError(t, err)
		assert.Empty(t, requests.appliedCreates)
	})

	t.Run("skips malformed events", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		ev := stockEvent("chanA", "sku-1", "item-1", 10)
		ev.ChannelUID = ""
		err := svc.Ingest(ctx, []StockChangeEvent{ev})
		require.NoError(t, err)
		assert.Empty(t, requests.appliedCreates)
	})

	t.Run("missing sync metadata still creates the row", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		ev := stockEvent("chanA", "sku-1", "item-1", 10)
		ev.RequestMetadata = nil
		err := svc.Ingest(ctx, []StockChangeEvent{ev})
		require.NoError(t, err)
		require.Len(t, requests.appliedCreates, 1)
		assert.False(t, requests.appliedCreates[0].HasSyncMetadata())
	})

	t.Run("all events filtered is a no-op", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("nobody", "sku-1", "item-1", 10),
		})
		require.NoError(t, err)
		assert.Empty(t, requests.appliedCreates)
		assert.Empty(t, requests.appliedUpdates)
	})

	t.Run("persistence failure propagates", func(t *testing.T) {
		requests := &fakeRequests{applyErr: errors.New("db down")}
		channels := &fakeChannels{uids: []string{"chanA"}}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("chanA", "sku-1", "item-1", 10),
		})
		require.Error(t, err)
	})

	t.Run("channel lookup failure propagates", func(t *testing.T) {
		requests := &fakeRequests{}
		channels := &fakeChannels{listErr: errors.New("db down")}
		svc := newIntakeService(requests, channels)

		err := svc.Ingest(ctx, []StockChangeEvent{
			stockEvent("chanA", "sku-1", "item-1", 10),
		})
		require.Error(t, err)
	})
}

func TestStockChangeEvent_MergedMetadata(t *testing.T) {
	t.Run("product metadata layers over request metadata", func(t *testing.T) {
		ev := StockChangeEvent{
			RequestMetadata: map[string]any{"warehouse_id": "wh-req", "sku_id": "sk-1"},
			ProductMetadata: map[string]any{"warehouse_id": "wh-prod"},
		}
		merged := ev.MergedMetadata()
		assert.Equal(t, "wh-prod", merged["warehouse_id"])
		assert.Equal(t, "sk-1", merged["sku_id"])
	})

	t.Run("stringifies decoded JSON values", func(t *testing.T) {
		ev := StockChangeEvent{
			RequestMetadata: map[string]any{
				"number":  json.Number("7314852637284561923"),
				"boolean": true,
				"none":    nil,
				"text":    "plain",
			},
		}
		merged := ev.MergedMetadata()
		assert.Equal(t, "7314852637284561923", merged["number"], "large identifiers keep full precision")
		assert.Equal(t, "true", merged["boolean"])
		assert.Equal(t, "", merged["none"])
		assert.Equal(t, "plain", merged["text"])
	})
}
