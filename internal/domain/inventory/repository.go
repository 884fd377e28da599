package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestRepository defines the interface for inventory request persistence.
// The (channel_uid, sku, item_id) triple is the hot lookup path for both
// intake and reconciliation and must be index-backed.
type RequestRepository interface {
	// FindPendingByKeys bulk-loads PENDING requests matching any of the given
	// identity keys, created at or after since. Rows outside the window are
	// treated as not existing.
	FindPendingByKeys(ctx context.Context, keys []IdentityKey, since time.Time) ([]Request, error)

	// FindPendingByChannel loads PENDING requests for a channel created at or
	// after since, oldest first.
	FindPendingByChannel(ctx context.Context, channelUID string, since time.Time) ([]Request, error)

	// ApplyIntake persists one intake batch in a single transaction: creates
	// are inserted with a conditional upsert that merges quantity and metadata
	// into an existing PENDING row on identity-key conflict, updates are
	// in-place quantity merges of rows loaded earlier in the same call.
	ApplyIntake(ctx context.Context, creates []*Request, updates []*Request) error

	// Claim transitions the given requests from one status to another with a
	// status guard, returning the IDs actually claimed. A request already
	// moved by a concurrent run is not claimed.
	Claim(ctx context.Context, ids []uuid.UUID, from, to RequestStatus) ([]uuid.UUID, error)

	// MarkOutcome sets the terminal status and tracking id for the given requests.
	MarkOutcome(ctx context.Context, ids []uuid.UUID, status RequestStatus, trackingID string) error

	// CountByStatus returns request counts per status for a channel.
	CountByStatus(ctx context.Context, channelUID string) (map[RequestStatus]int64, error)
}
