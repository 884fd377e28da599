package channel

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMissingCredentials indicates the channel has never completed authorization
	ErrMissingCredentials = errors.New("channel: no stored credentials")
	// ErrInvalidChannelUID indicates an empty or malformed channel UID
	ErrInvalidChannelUID = errors.New("channel: invalid channel UID")
)

// Type identifies which marketplace a channel is connected to.
type Type string

const (
	// TypeTikTok is the TikTok Shop marketplace
	TypeTikTok Type = "tiktok"
)

// String returns the string representation of Type
func (t Type) String() string {
	return string(t)
}

const uidLength = 15

const uidAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUID returns a random alphanumeric channel UID.
func GenerateUID() string {
	buf := make([]byte, uidLength)
	if _, err := rand.Read(buf); err != nil {
		panic("channel: failed to read random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = uidAlphabet[int(b)%len(uidAlphabet)]
	}
	return string(buf)
}

// Channel is a connected marketplace storefront holding its own API credentials.
// At most one live access credential exists per channel; only a credential
// refresh mutates the token fields.
type Channel struct {
	ChannelUID  string
	CompanyUUID uuid.UUID
	Name        string
	Country     string
	ShopID      int64
	ShopCipher  string
	Type        Type

	AccessToken        string
	RefreshToken       string
	AccessTokenExpiry  int64 // epoch seconds
	RefreshTokenExpiry int64 // epoch seconds

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewChannel creates a channel with a generated UID.
func NewChannel(name string, shopID int64, shopCipher string, channelType Type) *Channel {
	now := time.Now()
	return &Channel{
		ChannelUID: GenerateUID(),
		Name:       name,
		ShopID:     shopID,
		ShopCipher: shopCipher,
		Type:       channelType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasCredentials returns true if both tokens are present.
func (c *Channel) HasCredentials() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// CredentialExpired returns true if the access credential is expired at the given time.
func (c *Channel) CredentialExpired(now time.Time) bool {
	return now.Unix() > c.AccessTokenExpiry
}

// ApplyRefresh installs a refreshed credential pair. Expiry offsets are in
// seconds and are converted to absolute epoch expiries before persistence.
func (c *Channel) ApplyRefresh(accessToken, refreshToken string, accessExpiresIn, refreshExpiresIn int64, now time.Time) {
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.AccessTokenExpiry = now.Unix() + accessExpiresIn
	c.RefreshTokenExpiry = now.Unix() + refreshExpiresIn
	c.UpdatedAt = now
}
