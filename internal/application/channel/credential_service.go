package channel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/integration"
)

// CredentialService resolves a channel with a live access credential,
// refreshing on demand. Expiry is tracked only through the persisted record;
// every expired lookup costs exactly one refresh round trip.
type CredentialService struct {
	channels  channel.Repository
	refresher integration.TokenRefresher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(channels channel.Repository, refresher integration.TokenRefresher, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		channels:  channels,
		refresher: refresher,
		logger:    logger.Named("credentials"),
		now:       time.Now,
	}
}

// GetValidChannel loads the channel and guarantees its access credential is
// live at the time of the check. If it is expired, the refresh endpoint is
// called synchronously, the new pair is persisted, and the refreshed record
// is returned. On refresh failure the stale credential is never handed out.
func (s *CredentialService) GetValidChannel(ctx context.Context, channelUID string) (*channel.Channel, error) {
	ch, err := s.channels.FindByUID(ctx, channelUID)
	if err != nil {
		return nil, err
	}
	if !ch.HasCredentials() {
		return nil, fmt.Errorf("channel %s: %w", channelUID, channel.ErrMissingCredentials)
	}

	now := s.now()
	if !ch.CredentialExpired(now) {
		return ch, nil
	}

	pair, err := s.refresher.Refresh(ctx, ch.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", channelUID, err)
	}

	ch.ApplyRefresh(pair.AccessToken, pair.RefreshToken, pair.AccessExpiresIn, pair.RefreshExpiresIn, now)
	if err := s.channels.Save(ctx, ch); err != nil {
		return nil, fmt.Errorf("channel %s: persist refreshed credentials: %w", channelUID, err)
	}

	s.logger.Info("Refreshed channel credentials",
		zap.String("channel_uid", channelUID),
		zap.Int64("access_token_expiry", ch.AccessTokenExpiry),
	)
	return ch, nil
}
