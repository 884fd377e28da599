package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// TikTokConfig holds configuration for TikTok Shop open API integration
type TikTokConfig struct {
	// AppKey is the application key from the TikTok Shop partner console
	AppKey string
	// AppSecret is the application secret used for request signing
	AppSecret string
	// APIBaseURL is the base URL for the open API
	APIBaseURL string
	// AuthBaseURL is the base URL for the token service
	AuthBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// TikTokProductionAPIURL is the production open-API endpoint
	TikTokProductionAPIURL = "https://open-api.tiktokglobalshop.com"
	// TikTokAuthURL is the token refresh service endpoint
	TikTokAuthURL = "https://auth.tiktok-shops.com"
)

// Errors for TikTok Shop configuration
var (
	ErrTikTokConfigMissingAppKey    = errors.New("tiktok: app key is required")
	ErrTikTokConfigMissingAppSecret = errors.New("tiktok: app secret is required")
)

// NewTikTokConfig creates a new TikTok Shop configuration with defaults
func NewTikTokConfig(appKey, appSecret string) *TikTokConfig {
	return &TikTokConfig{
		AppKey:         appKey,
		AppSecret:      appSecret,
		APIBaseURL:     TikTokProductionAPIURL,
		AuthBaseURL:    TikTokAuthURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the TikTok Shop configuration
func (c *TikTokConfig) Validate() error {
	if c.AppKey == "" {
		return ErrTikTokConfigMissingAppKey
	}
	if c.AppSecret == "" {
		return ErrTikTokConfigMissingAppSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = TikTokProductionAPIURL
	}
	if c.AuthBaseURL == "" {
		c.AuthBaseURL = TikTokAuthURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Sign generates the signature for a TikTok Shop API request.
// The signature process:
// 1. Sort query parameter keys, excluding sign and access_token
// 2. Concatenate: app_secret + path + key1value1key2value2... + body + app_secret
// 3. Calculate HMAC-SHA256 keyed with app_secret, hex encoded
func (c *TikTokConfig) Sign(path string, params map[string]string, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "access_token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(c.AppSecret)
	builder.WriteString(path)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}
	builder.Write(body)
	builder.WriteString(c.AppSecret)

	h := hmac.New(sha256.New, []byte(c.AppSecret))
	h.Write([]byte(builder.String()))
	return hex.EncodeToString(h.Sum(nil))
}
