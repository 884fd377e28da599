package channel

import "context"

// Repository defines the interface for channel persistence
type Repository interface {
	// FindByUID finds a channel by its UID
	FindByUID(ctx context.Context, channelUID string) (*Channel, error)

	// ListAll returns all channels
	ListAll(ctx context.Context) ([]Channel, error)

	// ListUIDs returns the UIDs of all channels (cheap existence filter for intake)
	ListUIDs(ctx context.Context) ([]string, error)

	// Save creates or updates a channel
	Save(ctx context.Context, ch *Channel) error
}
