package integration

import (
	"context"
	"encoding/json"
	"errors"
)

// ---------------------------------------------------------------------------
// Platform Errors
// ---------------------------------------------------------------------------

var (
	// ErrPlatformNotConfigured indicates the marketplace adapter is missing configuration
	ErrPlatformNotConfigured = errors.New("integration: platform not configured")
	// ErrPlatformUnavailable indicates a transport-level failure reaching the marketplace
	ErrPlatformUnavailable = errors.New("integration: platform temporarily unavailable")
	// ErrPlatformRequestFailed indicates an HTTP-level failure from the marketplace
	ErrPlatformRequestFailed = errors.New("integration: platform request failed")
	// ErrPlatformInvalidResponse indicates an unparseable marketplace response
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	// ErrCredentialRefresh indicates the token-refresh endpoint reported failure;
	// callers must not proceed with the stale credential.
	ErrCredentialRefresh = errors.New("integration: credential refresh failed")
)

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// ChannelCredential is the per-channel material an authenticated call needs.
type ChannelCredential struct {
	// AccessToken authorizes the call
	AccessToken string
	// ShopCipher identifies the shop on the marketplace side
	ShopCipher string
}

// SkuInventory is one entry of a product batch update.
type SkuInventory struct {
	// SkuID is the marketplace SKU identifier
	SkuID string
	// WarehouseID is the marketplace warehouse identifier
	WarehouseID string
	// Quantity is the available quantity in integer units
	Quantity int64
}

// SyncOutcome is the structured result of one batch-update call.
// A transport fault is reported as an error instead of an outcome;
// a non-zero Code is a rejection, not a fault.
type SyncOutcome struct {
	// Code is the marketplace result code; zero means accepted
	Code int
	// Message is the marketplace result message
	Message string
	// TrackingID is the marketplace request identifier, kept for audit
	TrackingID string
	// Raw is the unmodified response body
	Raw json.RawMessage
}

// Accepted returns true if the marketplace accepted the update
func (o *SyncOutcome) Accepted() bool {
	return o.Code == 0
}

// TokenPair is a refreshed credential pair with expiry offsets in seconds.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  int64
	RefreshExpiresIn int64
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// StockSyncClient performs the signed batch-update call for one product.
// Signing and transport live behind this port; the caller only needs the
// outcome/fault distinction and must bound the call with a timeout.
type StockSyncClient interface {
	UpdateStock(ctx context.Context, cred ChannelCredential, itemID string, entries []SkuInventory) (*SyncOutcome, error)
}

// TokenRefresher exchanges a refresh credential for a new token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}
