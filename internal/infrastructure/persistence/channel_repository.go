package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// GormChannelRepository implements channel.Repository using GORM
type GormChannelRepository struct {
	db *gorm.DB
}

// NewGormChannelRepository creates a new GormChannelRepository
func NewGormChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormChannelRepository) WithTx(tx *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: tx}
}

// FindByUID finds a channel by its public UID
func (r *GormChannelRepository) FindByUID(ctx context.Context, channelUID string) (*channel.Channel, error) {
	var model models.ChannelModel
	if err := r.db.WithContext(ctx).First(&model, "channel_uid = ?", channelUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListAll returns all channels ordered by creation time
func (r *GormChannelRepository) ListAll(ctx context.Context) ([]channel.Channel, error) {
	var channelModels []models.ChannelModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&channelModels).Error; err != nil {
		return nil, err
	}
	channels := make([]channel.Channel, len(channelModels))
	for i, model := range channelModels {
		channels[i] = *model.ToDomain()
	}
	return channels, nil
}

// ListUIDs returns the UIDs of all channels ordered by creation time
func (r *GormChannelRepository) ListUIDs(ctx context.Context) ([]string, error) {
	var uids []string
	if err := r.db.WithContext(ctx).
		Model(&models.ChannelModel{}).
		Order("created_at ASC").
		Pluck("channel_uid", &uids).Error; err != nil {
		return nil, err
	}
	return uids, nil
}

// Save inserts or updates a channel
func (r *GormChannelRepository) Save(ctx context.Context, c *channel.Channel) error {
	model := models.ChannelModelFromDomain(c)
	return r.db.WithContext(ctx).Save(model).Error
}

var _ channel.Repository = (*GormChannelRepository)(nil)
