package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidStatus indicates a status value outside the known set
	ErrInvalidStatus = errors.New("inventory: invalid request status")
	// ErrInvalidTransition indicates a disallowed status transition
	ErrInvalidTransition = errors.New("inventory: invalid status transition")
)

// LookbackWindow is the horizon beyond which a PENDING request is no longer
// considered for merge; a new event outside the window re-queues the row.
const LookbackWindow = 48 * time.Hour

// Metadata keys required by the marketplace batch-update API.
const (
	MetadataKeySKUID       = "sku_id"
	MetadataKeyWarehouseID = "warehouse_id"
)

// RequestStatus represents the lifecycle state of an inventory request
type RequestStatus string

const (
	// StatusPending indicates the request is queued and not yet attempted
	StatusPending RequestStatus = "PENDING"
	// StatusProcessing indicates the request is claimed by a batch in flight
	StatusProcessing RequestStatus = "PROCESSING"
	// StatusSuccess indicates the marketplace confirmed the update
	StatusSuccess RequestStatus = "SUCCESS"
	// StatusFailed indicates the marketplace rejected the update or the attempt errored
	StatusFailed RequestStatus = "FAILED"

	// Reserved for richer pipelines; nothing transitions into these today.
	StatusInQueue RequestStatus = "IN_QUEUE"
	StatusDone    RequestStatus = "DONE"
	StatusWarning RequestStatus = "WARNING"
)

// IsValid returns true if the status is part of the known set
func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed,
		StatusInQueue, StatusDone, StatusWarning:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transition is allowed from the status
func (s RequestStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo reports whether s -> target is an allowed transition.
// The reserved states are valid values but have no transitions in or out.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusFailed
	case StatusProcessing:
		return target == StatusSuccess || target == StatusFailed
	default:
		return false
	}
}

// String returns the string representation of RequestStatus
func (s RequestStatus) String() string {
	return string(s)
}

// IdentityKey deduplicates inventory work: one unit of pending work exists
// per (channel, SKU, marketplace item) at a time.
type IdentityKey struct {
	ChannelUID string
	SKU        string
	ItemID     string
}

// String returns a human-readable form for logging
func (k IdentityKey) String() string {
	return k.ChannelUID + "/" + k.SKU + "/" + k.ItemID
}

// Request is one unit of inventory reconciliation work. Rows are retained
// indefinitely as an audit log; there is no deletion path.
type Request struct {
	ID         uuid.UUID
	ChannelUID string
	SKU        string
	ItemID     string
	Quantity   decimal.Decimal
	Status     RequestStatus
	TrackingID string
	FeedID     string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewRequest creates a PENDING request for the given identity and quantity.
func NewRequest(channelUID, sku, itemID string, quantity decimal.Decimal, metadata map[string]string) *Request {
	now := time.Now()
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Request{
		ID:         uuid.New(),
		ChannelUID: channelUID,
		SKU:        sku,
		ItemID:     itemID,
		Quantity:   quantity,
		Status:     StatusPending,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Key returns the identity key of the request
func (r *Request) Key() IdentityKey {
	return IdentityKey{ChannelUID: r.ChannelUID, SKU: r.SKU, ItemID: r.ItemID}
}

// MergeQuantity applies a newer observation for the same identity key
// (last write wins while the row is still PENDING).
func (r *Request) MergeQuantity(quantity decimal.Decimal, now time.Time) {
	r.Quantity = quantity
	r.UpdatedAt = now
}

// SKUID returns the marketplace SKU identifier from the request metadata
func (r *Request) SKUID() string {
	return r.Metadata[MetadataKeySKUID]
}

// WarehouseID returns the marketplace warehouse identifier from the request metadata
func (r *Request) WarehouseID() string {
	return r.Metadata[MetadataKeyWarehouseID]
}

// HasSyncMetadata returns true if the request carries the fields the
// marketplace batch-update API requires.
func (r *Request) HasSyncMetadata() bool {
	return r.SKUID() != "" && r.WarehouseID() != ""
}

func (r *Request) transition(target RequestStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, target)
	}
	r.Status = target
	r.UpdatedAt = now
	return nil
}

// MarkProcessing claims the request for a batch in flight
func (r *Request) MarkProcessing(now time.Time) error {
	return r.transition(StatusProcessing, now)
}

// MarkSuccess records a confirmed marketplace update
func (r *Request) MarkSuccess(trackingID string, now time.Time) error {
	if err := r.transition(StatusSuccess, now); err != nil {
		return err
	}
	r.TrackingID = trackingID
	return nil
}

// MarkFailed records a rejection or an errored attempt; the tracking id is
// kept when the marketplace supplied one.
func (r *Request) MarkFailed(trackingID string, now time.Time) error {
	if err := r.transition(StatusFailed, now); err != nil {
		return err
	}
	if trackingID != "" {
		r.TrackingID = trackingID
	}
	return nil
}
