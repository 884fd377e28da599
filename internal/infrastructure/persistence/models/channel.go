package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/channel"
)

// ChannelModel is the persistence model for the Channel domain entity.
type ChannelModel struct {
	ChannelUID         string       `gorm:"type:varchar(15);primary_key"`
	CompanyUUID        uuid.UUID    `gorm:"type:uuid;not null;index:idx_channels_company"`
	Name               string       `gorm:"type:varchar(255);not null"`
	Country            string       `gorm:"type:varchar(64)"`
	ShopID             int64        `gorm:"not null;default:0"`
	ShopCipher         string       `gorm:"type:varchar(255)"`
	Type               channel.Type `gorm:"type:varchar(20);not null;index:idx_channels_type"`
	AccessToken        string       `gorm:"type:text"`
	RefreshToken       string       `gorm:"type:text"`
	AccessTokenExpiry  int64        `gorm:"not null;default:0"`
	RefreshTokenExpiry int64        `gorm:"not null;default:0"`
	CreatedAt          time.Time    `gorm:"not null"`
	UpdatedAt          time.Time    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChannelModel) TableName() string {
	return "channels"
}

// ToDomain converts the persistence model to a domain Channel entity.
func (m *ChannelModel) ToDomain() *channel.Channel {
	return &channel.Channel{
		ChannelUID:         m.ChannelUID,
		CompanyUUID:        m.CompanyUUID,
		Name:               m.Name,
		Country:            m.Country,
		ShopID:             m.ShopID,
		ShopCipher:         m.ShopCipher,
		Type:               m.Type,
		AccessToken:        m.AccessToken,
		RefreshToken:       m.RefreshToken,
		AccessTokenExpiry:  m.AccessTokenExpiry,
		RefreshTokenExpiry: m.RefreshTokenExpiry,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Channel entity.
func (m *ChannelModel) FromDomain(c *channel.Channel) {
	m.ChannelUID = c.ChannelUID
	m.CompanyUUID = c.CompanyUUID
	m.Name = c.Name
	m.Country = c.Country
	m.ShopID = c.ShopID
	m.ShopCipher = c.ShopCipher
	m.Type = c.Type
	m.AccessToken = c.AccessToken
	m.RefreshToken = c.RefreshToken
	m.AccessTokenExpiry = c.AccessTokenExpiry
	m.RefreshTokenExpiry = c.RefreshTokenExpiry
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// ChannelModelFromDomain creates a new persistence model from a domain Channel entity.
func ChannelModelFromDomain(c *channel.Channel) *ChannelModel {
	m := &ChannelModel{}
	m.FromDomain(c)
	return m
}
