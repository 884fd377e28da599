package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	channeldom "github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/integration"
	"github.com/channelsync/backend/internal/domain/inventory"
)

// ChannelCredentials resolves a channel with a live access credential.
type ChannelCredentials interface {
	GetValidChannel(ctx context.Context, channelUID string) (*channeldom.Channel, error)
}

// ReconcileService drains PENDING inventory requests per channel, grouped by
// marketplace product, and issues one batch-update call per product group.
// Grouping by product matches the external API's batch shape: call volume
// scales with distinct products touched, not with individual stock movements.
type ReconcileService struct {
	requests    inventory.RequestRepository
	channels    channeldom.Repository
	credentials ChannelCredentials
	sync        integration.StockSyncClient
	logger      *zap.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// NewReconcileService creates a new ReconcileService. callTimeout bounds each
// outbound sync call; a timed-out call is treated as a transport fault.
func NewReconcileService(
	requests inventory.RequestRepository,
	channels channeldom.Repository,
	credentials ChannelCredentials,
	sync integration.StockSyncClient,
	callTimeout time.Duration,
	logger *zap.Logger,
) *ReconcileService {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &ReconcileService{
		requests:    requests,
		channels:    channels,
		credentials: credentials,
		sync:        sync,
		logger:      logger.Named("reconcile"),
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// ReconcileAll runs reconciliation for every known channel. Channels are
// independent; one channel's failure never aborts another's run.
func (s *ReconcileService) ReconcileAll(ctx context.Context) []ChannelRunReport {
	uids, err := s.channels.ListUIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to list channels for reconciliation", zap.Error(err))
		return nil
	}

	reports := make([]ChannelRunReport, 0, len(uids))
	for _, uid := range uids {
		report, err := s.ReconcileChannel(ctx, uid)
		if err != nil {
			s.logger.Warn("Skipping channel for this run",
				zap.String("channel_uid", uid),
				zap.Error(err),
			)
			continue
		}
		reports = append(reports, *report)
	}
	return reports
}

// ReconcileChannel runs one channel's reconciliation: obtain a valid
// credential, load the pending window oldest-first, group by product, and
// sync each group. State is persisted after each group so a crash mid-run
// leaves auditable PROCESSING/FAILED rows rather than silent loss.
func (s *ReconcileService) ReconcileChannel(ctx context.Context, channelUID string) (*ChannelRunReport, error) {
	ch, err := s.credentials.GetValidChannel(ctx, channelUID)
	if err != nil {
		return nil, err
	}
	cred := integration.ChannelCredential{AccessToken: ch.AccessToken, ShopCipher: ch.ShopCipher}

	since := s.now().Add(-inventory.LookbackWindow)
	pending, err := s.requests.FindPendingByChannel(ctx, channelUID, since)
	if err != nil {
		return nil, err
	}

	report := &ChannelRunReport{ChannelUID: channelUID, Total: len(pending)}
	if len(pending) == 0 {
		s.logger.Info("No pending inventory requests", zap.String("channel_uid", channelUID))
		return report, nil
	}

	// Group by marketplace item, preserving oldest-first order within and
	// across groups.
	groups := make(map[string][]*inventory.Request)
	itemOrder := make([]string, 0)
	for i := range pending {
		req := &pending[i]
		if _, ok := groups[req.ItemID]; !ok {
			itemOrder = append(itemOrder, req.ItemID)
		}
		groups[req.ItemID] = append(groups[req.ItemID], req)
	}
	report.Products = len(itemOrder)

	for _, itemID := range itemOrder {
		s.reconcileGroup(ctx, cred, channelUID, itemID, groups[itemID], report)
	}

	s.logger.Info("Channel reconciliation completed",
		zap.String("channel_uid", channelUID),
		zap.Int("products", report.Products),
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// reconcileGroup drives one product group through claim, payload build, sync
// call, and outcome persistence. Persistence failures are logged and the run
// continues with the next group.
func (s *ReconcileService) reconcileGroup(ctx context.Context, cred integration.ChannelCredential, channelUID, itemID string, group []*inventory.Request, report *ChannelRunReport) {
	ids := make([]uuid.UUID, len(group))
	for i, req := range group {
		ids[i] = req.ID
	}

	// Claim with a status guard; rows grabbed by a concurrent run drop out here.
	claimedIDs, err := s.requests.Claim(ctx, ids, inventory.StatusPending, inventory.StatusProcessing)
	if err != nil {
		s.logger.Error("Failed to claim product group",
			zap.String("channel_uid", channelUID),
			zap.String("item_id", itemID),
			zap.Error(err),
		)
		report.Skipped += len(group)
		return
	}
	claimed := make(map[uuid.UUID]struct{}, len(claimedIDs))
	for _, id := range claimedIDs {
		claimed[id] = struct{}{}
	}
	if len(claimed) < len(group) {
		report.Skipped += len(group) - len(claimed)
	}

	entries := make([]integration.SkuInventory, 0, len(claimed))
	syncIDs := make([]uuid.UUID, 0, len(claimed))
	invalidIDs := make([]uuid.UUID, 0)
	for _, req := range group {
		if _, ok := claimed[req.ID]; !ok {
			continue
		}
		if !req.HasSyncMetadata() {
			s.logger.Warn("Request missing sync metadata",
				zap.String("request_id", req.ID.String()),
				zap.String("key", req.Key().String()),
			)
			invalidIDs = append(invalidIDs, req.ID)
			continue
		}
		entries = append(entries, integration.SkuInventory{
			SkuID:       req.SKUID(),
			WarehouseID: req.WarehouseID(),
			Quantity:    req.Quantity.IntPart(),
		})
		syncIDs = append(syncIDs, req.ID)
	}

	if len(invalidIDs) > 0 {
		if err := s.requests.MarkOutcome(ctx, invalidIDs, inventory.StatusFailed, ""); err != nil {
			s.logger.Error("Failed to persist invalid-metadata failures", zap.Error(err))
		}
		report.Failed += len(invalidIDs)
	}
	if len(entries) == 0 {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	outcome, err := s.sync.UpdateStock(callCtx, cred, itemID, entries)
	cancel()

	switch {
	case err != nil:
		// Transport fault: the call never produced a marketplace verdict.
		s.logger.Error("Stock sync transport fault",
			zap.String("channel_uid", channelUID),
			zap.String("item_id", itemID),
			zap.Int("entries", len(entries)),
			zap.Error(err),
		)
		s.persistOutcome(ctx, syncIDs, inventory.StatusFailed, "", report)
	case !outcome.Accepted():
		s.logger.Warn("Stock sync rejected by marketplace",
			zap.String("channel_uid", channelUID),
			zap.String("item_id", itemID),
			zap.Int("code", outcome.Code),
			zap.String("message", outcome.Message),
			zap.String("tracking_id", outcome.TrackingID),
		)
		s.persistOutcome(ctx, syncIDs, inventory.StatusFailed, outcome.TrackingID, report)
	default:
		s.logger.Info("Stock sync batch accepted",
			zap.String("channel_uid", channelUID),
			zap.String("item_id", itemID),
			zap.Int("entries", len(entries)),
			zap.String("tracking_id", outcome.TrackingID),
		)
		s.persistOutcome(ctx, syncIDs, inventory.StatusSuccess, outcome.TrackingID, report)
	}
}

func (s *ReconcileService) persistOutcome(ctx context.Context, ids []uuid.UUID, status inventory.RequestStatus, trackingID string, report *ChannelRunReport) {
	if err := s.requests.MarkOutcome(ctx, ids, status, trackingID); err != nil {
		s.logger.Error("Failed to persist sync outcome",
			zap.String("status", status.String()),
			zap.Int("requests", len(ids)),
			zap.Error(err),
		)
		return
	}
	if status == inventory.StatusSuccess {
		report.Succeeded += len(ids)
	} else {
		report.Failed += len(ids)
	}
}
