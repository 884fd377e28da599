package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/channelsync/backend/internal/domain/integration"
)

const (
	// maxTikTokResponseSize limits the response body size to prevent memory exhaustion
	maxTikTokResponseSize = 10 * 1024 * 1024 // 10MB max response

	inventoryUpdatePathFmt = "/product/202309/products/%s/inventory/update"
	tokenRefreshPath       = "/api/v2/token/refresh"
	accessTokenHeader      = "x-tts-access-token"
)

// TikTokClient implements the StockSyncClient and TokenRefresher ports
// against the TikTok Shop open API.
type TikTokClient struct {
	config     *TikTokConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewTikTokClient creates a new TikTok Shop client with the given configuration
func NewTikTokClient(config *TikTokConfig) (*TikTokClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &TikTokClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		now: time.Now,
	}, nil
}

// UpdateStock pushes warehouse quantities for one product's SKUs in a single
// call. The returned outcome carries the platform's verdict; a non-nil error
// means the call itself never completed.
func (c *TikTokClient) UpdateStock(ctx context.Context, cred integration.ChannelCredential, itemID string, entries []integration.SkuInventory) (*integration.SyncOutcome, error) {
	if cred.AccessToken == "" {
		return nil, integration.ErrPlatformNotConfigured
	}

	payload := tiktokInventoryUpdateRequest{Skus: make([]tiktokSkuUpdate, len(entries))}
	for i, entry := range entries {
		payload.Skus[i] = tiktokSkuUpdate{
			ID: entry.SkuID,
			Inventory: []tiktokWarehouseInventory{
				{Quantity: entry.Quantity, WarehouseID: entry.WarehouseID},
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to marshal inventory payload: %w", err)
	}

	path := fmt.Sprintf(inventoryUpdatePathFmt, itemID)
	params := map[string]string{
		"app_key":     c.config.AppKey,
		"shop_cipher": cred.ShopCipher,
		"timestamp":   strconv.FormatInt(c.now().Unix(), 10),
	}
	params["sign"] = c.config.Sign(path, params, body)

	respBody, err := c.doRequest(ctx, http.MethodPost, c.config.APIBaseURL, path, params, cred.AccessToken, body)
	if err != nil {
		return nil, err
	}

	var envelope tiktokEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}

	return &integration.SyncOutcome{
		Code:       envelope.Code,
		Message:    envelope.Message,
		TrackingID: envelope.RequestID,
		Raw:        respBody,
	}, nil
}

// Refresh exchanges a refresh token for a fresh token pair
func (c *TikTokClient) Refresh(ctx context.Context, refreshToken string) (*integration.TokenPair, error) {
	if refreshToken == "" {
		return nil, integration.ErrPlatformNotConfigured
	}

	params := map[string]string{
		"app_key":       c.config.AppKey,
		"app_secret":    c.config.AppSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, c.config.AuthBaseURL, tokenRefreshPath, params, "", nil)
	if err != nil {
		return nil, err
	}

	var envelope tiktokEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("%w: code %d: %s", integration.ErrPlatformRequestFailed, envelope.Code, envelope.Message)
	}

	var data tiktokTokenData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if data.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", integration.ErrPlatformInvalidResponse)
	}

	return &integration.TokenPair{
		AccessToken:      data.AccessToken,
		RefreshToken:     data.RefreshToken,
		AccessExpiresIn:  data.AccessTokenExpireIn,
		RefreshExpiresIn: data.RefreshTokenExpireIn,
	}, nil
}

// doRequest performs one HTTP round trip against a TikTok Shop endpoint
func (c *TikTokClient) doRequest(ctx context.Context, method, baseURL, path string, params map[string]string, accessToken string, body []byte) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	fullURL := fmt.Sprintf("%s%s?%s", baseURL, path, query.Encode())

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set(accessTokenHeader, accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTikTokResponseSize))
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformRequestFailed, resp.StatusCode)
	}

	return respBody, nil
}

var (
	_ integration.StockSyncClient = (*TikTokClient)(nil)
	_ integration.TokenRefresher  = (*TikTokClient)(nil)
)
