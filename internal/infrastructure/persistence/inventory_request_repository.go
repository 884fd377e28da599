package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/channelsync/backend/internal/domain/inventory"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormInventoryRequestRepository implements inventory.RequestRepository using GORM
type GormInventoryRequestRepository struct {
	db *gorm.DB
}

// NewGormInventoryRequestRepository creates a new GormInventoryRequestRepository
func NewGormInventoryRequestRepository(db *gorm.DB) *GormInventoryRequestRepository {
	return &GormInventoryRequestRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormInventoryRequestRepository) WithTx(tx *gorm.DB) *GormInventoryRequestRepository {
	return &GormInventoryRequestRepository{db: tx}
}

// FindPendingByKeys bulk-loads PENDING requests matching any of the given
// identity keys, created at or after since.
func (r *GormInventoryRequestRepository) FindPendingByKeys(ctx context.Context, keys []inventory.IdentityKey, since time.Time) ([]inventory.Request, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	tuples := make([][]any, len(keys))
	for i, key := range keys {
		tuples[i] = []any{key.ChannelUID, key.SKU, key.ItemID}
	}

	var requestModels []models.InventoryRequestModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", inventory.StatusPending).
		Where("created_at >= ?", since).
		Where("(channel_uid, sku, item_id) IN ?", tuples).
		Find(&requestModels).Error; err != nil {
		return nil, err
	}

	requests := make([]inventory.Request, len(requestModels))
	for i, model := range requestModels {
		requests[i] = *model.ToDomain()
	}
	return requests, nil
}

// FindPendingByChannel loads PENDING requests for a channel created at or
// after since, oldest first.
func (r *GormInventoryRequestRepository) FindPendingByChannel(ctx context.Context, channelUID string, since time.Time) ([]inventory.Request, error) {
	var requestModels []models.InventoryRequestModel
	if err := r.db.WithContext(ctx).
		Where("channel_uid = ? AND status = ?", channelUID, inventory.StatusPending).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&requestModels).Error; err != nil {
		return nil, err
	}

	requests := make([]inventory.Request, len(requestModels))
	for i, model := range requestModels {
		requests[i] = *model.ToDomain()
	}
	return requests, nil
}

// ApplyIntake persists one intake batch in a single transaction. New rows are
// inserted with an upsert against the partial unique index on
// (channel_uid, sku, item_id) for PENDING rows: a concurrent insert of the
// same key folds into the existing row instead of failing, taking the new
// quantity and metadata and bumping created_at so the row re-enters the
// reconciliation window. Updates are in-place merges of rows loaded earlier
// in the same intake run.
func (r *GormInventoryRequestRepository) ApplyIntake(ctx context.Context, creates []*inventory.Request, updates []*inventory.Request) error {
	if len(creates) == 0 && len(updates) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(creates) > 0 {
			createModels := make([]models.InventoryRequestModel, len(creates))
			for i, req := range creates {
				createModels[i].FromDomain(req)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "channel_uid"}, {Name: "sku"}, {Name: "item_id"},
				},
				TargetWhere: clause.Where{Exprs: []clause.Expression{
					clause.Eq{Column: clause.Column{Name: "status"}, Value: string(inventory.StatusPending)},
				}},
				DoUpdates: clause.AssignmentColumns([]string{"quantity", "metadata", "created_at", "updated_at"}),
			}).Create(&createModels).Error; err != nil {
				return err
			}
		}

		for _, req := range updates {
			model := models.InventoryRequestModelFromDomain(req)
			if err := tx.Model(&models.InventoryRequestModel{}).
				Where("id = ?", model.ID).
				Updates(map[string]any{
					"quantity":   model.Quantity,
					"metadata":   model.MetadataJSON,
					"updated_at": model.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// Claim transitions the given requests from one status to another with a
// status guard, returning the IDs actually claimed. Rows already moved by a
// concurrent run are left alone and omitted from the result.
func (r *GormInventoryRequestRepository) Claim(ctx context.Context, ids []uuid.UUID, from, to inventory.RequestStatus) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var claimedModels []models.InventoryRequestModel
	if err := r.db.WithContext(ctx).
		Model(&claimedModels).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("id IN ? AND status = ?", ids, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		}).Error; err != nil {
		return nil, err
	}

	claimed := make([]uuid.UUID, len(claimedModels))
	for i, model := range claimedModels {
		claimed[i] = model.ID
	}
	return claimed, nil
}

// MarkOutcome sets the final status and tracking id for the given requests.
// An empty tracking id leaves any previously stored value untouched.
func (r *GormInventoryRequestRepository) MarkOutcome(ctx context.Context, ids []uuid.UUID, status inventory.RequestStatus, trackingID string) error {
	if len(ids) == 0 {
		return nil
	}

	values := map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	}
	if trackingID != "" {
		values["tracking_id"] = trackingID
	}

	return r.db.WithContext(ctx).
		Model(&models.InventoryRequestModel{}).
		Where("id IN ?", ids).
		Updates(values).Error
}

// CountByStatus returns request counts per status for a channel
func (r *GormInventoryRequestRepository) CountByStatus(ctx context.Context, channelUID string) (map[inventory.RequestStatus]int64, error) {
	type statusCount struct {
		Status inventory.RequestStatus
		Count  int64
	}

	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryRequestModel{}).
		Select("status, COUNT(*) AS count").
		Where("channel_uid = ?", channelUID).
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[inventory.RequestStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var _ inventory.RequestRepository = (*GormInventoryRequestRepository)(nil)
