package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/inventory"
)

// ErrEmptyBatch indicates a transport-level malformation: an ingest call
// with no events at all.
var ErrEmptyBatch = errors.New("inventory: empty intake batch")

// IntakeService validates, deduplicates, and persists inbound stock-change
// events as PENDING inventory requests. A successful return means every valid
// event in the batch is durably recorded as either a new or merged row.
type IntakeService struct {
	requests    inventory.RequestRepository
	channels    channel.Repository
	channelType channel.Type
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewIntakeService creates a new IntakeService owning events of the given channel type.
func NewIntakeService(requests inventory.RequestRepository, channels channel.Repository, channelType channel.Type, logger *zap.Logger) *IntakeService {
	return &IntakeService{
		requests:    requests,
		channels:    channels,
		channelType: channelType,
		validate:    validator.New(),
		logger:      logger.Named("intake"),
		now:         time.Now,
	}
}

// Ingest processes one inbound batch. Events are handled independently: a
// malformed or unknown-channel event is skipped and logged, never retried.
// All resulting creations and merges are applied in a single transaction; on
// persistence failure the whole call fails and the transport redelivers.
func (s *IntakeService) Ingest(ctx context.Context, events []StockChangeEvent) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	validUIDs, err := s.knownChannelUIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolve channels: %w", err)
	}

	accepted := make([]StockChangeEvent, 0, len(events))
	for i := range events {
		ev := events[i]
		if err := s.validate.Struct(&ev); err != nil {
			s.logger.Info("Skipping malformed stock-change event", zap.Error(err))
			continue
		}
		if _, ok := validUIDs[ev.ChannelUID]; !ok {
			s.logger.Info("Skipping event for unknown channel", zap.String("channel_uid", ev.ChannelUID))
			continue
		}
		if ev.ChannelType != s.channelType.String() {
			s.logger.Info("Skipping event for foreign channel type",
				zap.String("channel_uid", ev.ChannelUID),
				zap.String("channel_type", ev.ChannelType),
			)
			continue
		}
		accepted = append(accepted, ev)
	}
	if len(accepted) == 0 {
		return nil
	}

	now := s.now()
	since := now.Add(-inventory.LookbackWindow)

	keys := make([]inventory.IdentityKey, 0, len(accepted))
	seen := make(map[inventory.IdentityKey]struct{}, len(accepted))
	for _, ev := range accepted {
		key := inventory.IdentityKey{ChannelUID: ev.ChannelUID, SKU: ev.SKU, ItemID: ev.ProductID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	existing, err := s.requests.FindPendingByKeys(ctx, keys, since)
	if err != nil {
		return fmt.Errorf("lookup pending requests: %w", err)
	}
	existingByKey := make(map[inventory.IdentityKey]*inventory.Request, len(existing))
	for i := range existing {
		existingByKey[existing[i].Key()] = &existing[i]
	}

	// Last write wins per key within the batch, in arrival order.
	staged := make(map[inventory.IdentityKey]*inventory.Request, len(accepted))
	order := make([]inventory.IdentityKey, 0, len(accepted))
	updated := make(map[inventory.IdentityKey]*inventory.Request)
	for _, ev := range accepted {
		key := inventory.IdentityKey{ChannelUID: ev.ChannelUID, SKU: ev.SKU, ItemID: ev.ProductID}

		if req, ok := existingByKey[key]; ok {
			req.MergeQuantity(ev.AvailableQuantity, now)
			updated[key] = req
			continue
		}
		if req, ok := staged[key]; ok {
			req.MergeQuantity(ev.AvailableQuantity, now)
			req.Metadata = ev.MergedMetadata()
			continue
		}
		req := inventory.NewRequest(ev.ChannelUID, ev.SKU, ev.ProductID, ev.AvailableQuantity, ev.MergedMetadata())
		req.CreatedAt = now
		req.UpdatedAt = now
		staged[key] = req
		order = append(order, key)
	}

	creates := make([]*inventory.Request, 0, len(order))
	for _, key := range order {
		creates = append(creates, staged[key])
	}
	updates := make([]*inventory.Request, 0, len(updated))
	for i := range existing {
		if req, ok := updated[existing[i].Key()]; ok {
			updates = append(updates, req)
		}
	}

	if err := s.requests.ApplyIntake(ctx, creates, updates); err != nil {
		return fmt.Errorf("persist intake batch: %w", err)
	}

	s.logger.Info("Intake batch persisted",
		zap.Int("received", len(events)),
		zap.Int("accepted", len(accepted)),
		zap.Int("created", len(creates)),
		zap.Int("merged", len(updates)),
	)
	return nil
}

func (s *IntakeService) knownChannelUIDs(ctx context.Context) (map[string]struct{}, error) {
	uids, err := s.channels.ListUIDs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	return set, nil
}
