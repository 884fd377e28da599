package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelsync/backend/internal/domain/inventory"
)

// InventoryRequestModel is the persistence model for the inventory Request
// domain entity. The partial unique index on (channel_uid, sku, item_id)
// covering only PENDING rows is what makes concurrent intake upserts safe;
// it is created by migration, not by GORM tags.
type InventoryRequestModel struct {
	ID           uuid.UUID               `gorm:"type:uuid;primary_key"`
	ChannelUID   string                  `gorm:"type:varchar(15);not null;index:idx_inventory_requests_channel_status,priority:1"`
	SKU          string                  `gorm:"type:varchar(100);not null"`
	ItemID       string                  `gorm:"type:varchar(100);not null"`
	Quantity     decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	Status       inventory.RequestStatus `gorm:"type:varchar(20);not null;index:idx_inventory_requests_channel_status,priority:2"`
	TrackingID   string                  `gorm:"type:varchar(100)"`
	FeedID       string                  `gorm:"type:varchar(100)"`
	MetadataJSON string                  `gorm:"column:metadata;type:jsonb;default:'{}'"`
	CreatedAt    time.Time               `gorm:"not null;index:idx_inventory_requests_channel_status,priority:3"`
	UpdatedAt    time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryRequestModel) TableName() string {
	return "inventory_requests"
}

// ToDomain converts the persistence model to a domain Request entity.
func (m *InventoryRequestModel) ToDomain() *inventory.Request {
	req := &inventory.Request{
		ID:         m.ID,
		ChannelUID: m.ChannelUID,
		SKU:        m.SKU,
		ItemID:     m.ItemID,
		Quantity:   m.Quantity,
		Status:     m.Status,
		TrackingID: m.TrackingID,
		FeedID:     m.FeedID,
		Metadata:   make(map[string]string),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}

	if m.MetadataJSON != "" {
		var metadata map[string]string
		if err := json.Unmarshal([]byte(m.MetadataJSON), &metadata); err == nil {
			req.Metadata = metadata
		}
	}

	return req
}

// FromDomain populates the persistence model from a domain Request entity.
func (m *InventoryRequestModel) FromDomain(req *inventory.Request) {
	m.ID = req.ID
	m.ChannelUID = req.ChannelUID
	m.SKU = req.SKU
	m.ItemID = req.ItemID
	m.Quantity = req.Quantity
	m.Status = req.Status
	m.TrackingID = req.TrackingID
	m.FeedID = req.FeedID
	m.CreatedAt = req.CreatedAt
	m.UpdatedAt = req.UpdatedAt

	if len(req.Metadata) > 0 {
		if jsonBytes, err := json.Marshal(req.Metadata); err == nil {
			m.MetadataJSON = string(jsonBytes)
		}
	} else {
		m.MetadataJSON = "{}"
	}
}

// InventoryRequestModelFromDomain creates a new persistence model from a domain Request entity.
func InventoryRequestModelFromDomain(req *inventory.Request) *InventoryRequestModel {
	m := &InventoryRequestModel{}
	m.FromDomain(req)
	return m
}
