package marketplace

import "encoding/json"

// tiktokEnvelope is the common response wrapper of the TikTok Shop open API.
// A zero code means the call was accepted; any other code carries a
// platform-side rejection.
type tiktokEnvelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// tiktokTokenData is the data payload of a token refresh response
type tiktokTokenData struct {
	AccessToken          string   `json:"access_token"`
	RefreshToken         string   `json:"refresh_token"`
	AccessTokenExpireIn  int64    `json:"access_token_expire_in"`
	RefreshTokenExpireIn int64    `json:"refresh_token_expire_in"`
	OpenID               string   `json:"open_id"`
	SellerName           string   `json:"seller_name"`
	SellerBaseRegion     string   `json:"seller_base_region"`
	UserType             int      `json:"user_type"`
	GrantedScopes        []string `json:"granted_scopes"`
}

// tiktokWarehouseInventory is one warehouse quantity entry of a SKU
type tiktokWarehouseInventory struct {
	Quantity    int64  `json:"quantity"`
	WarehouseID string `json:"warehouse_id,omitempty"`
}

// tiktokSkuUpdate is one SKU entry of an inventory update payload
type tiktokSkuUpdate struct {
	ID        string                     `json:"id"`
	Inventory []tiktokWarehouseInventory `json:"inventory"`
}

// tiktokInventoryUpdateRequest is the body of the inventory update call
type tiktokInventoryUpdateRequest struct {
	Skus []tiktokSkuUpdate `json:"skus"`
}
