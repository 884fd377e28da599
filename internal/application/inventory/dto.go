package inventory

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// StockChangeEvent is one inbound stock-change observation, carried by the
// message transport as either a single object, a bare array, or wrapped in
// {"inventory_requests": [...]} (or its {"events": [...]} alias).
type StockChangeEvent struct {
	ChannelUID        string          `json:"channel_uid" validate:"required"`
	ChannelType       string          `json:"channel_type"`
	SKU               string          `json:"sku"`
	ProductID         string          `json:"product_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	RequestMetadata   map[string]any  `json:"request_metadata"`
	ProductMetadata   map[string]any  `json:"product_metadata"`
}

// MergedMetadata flattens request metadata with product metadata layered on
// top, stringifying every value. Missing fields stay absent; string
// conversions default to empty downstream.
func (e *StockChangeEvent) MergedMetadata() map[string]string {
	merged := make(map[string]string, len(e.RequestMetadata)+len(e.ProductMetadata))
	for k, v := range e.RequestMetadata {
		merged[k] = stringifyMetadataValue(v)
	}
	for k, v := range e.ProductMetadata {
		merged[k] = stringifyMetadataValue(v)
	}
	return merged
}

// stringifyMetadataValue renders a decoded JSON value as a string. Numeric
// identifiers must survive round-tripping, so callers decoding event payloads
// use json.Number rather than float64.
func stringifyMetadataValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ChannelRunReport summarizes one channel's reconciliation run.
type ChannelRunReport struct {
	ChannelUID string `json:"channel_uid"`
	Products   int    `json:"products"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}
