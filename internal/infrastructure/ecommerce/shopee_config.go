package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ShopeeConfig holds configuration for the Shopee open platform API.
type ShopeeConfig struct {
	// PartnerID is the partner identifier from the Shopee open platform
	PartnerID string
	// PartnerKey signs outbound API calls
	PartnerKey string
	// ShopID is the connected shop
	ShopID string
	// WebhookSecret verifies inbound push payloads
	WebhookSecret string
	// APIBaseURL is the base URL for the Shopee API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// ShopeeProductionAPIURL is the production API endpoint
const ShopeeProductionAPIURL = "https://partner.shopeemobile.com"

// Errors for Shopee configuration
var (
	ErrShopeeConfigMissingPartnerID  = errors.New("shopee: partner ID is required")
	ErrShopeeConfigMissingPartnerKey = errors.New("shopee: partner key is required")
	ErrShopeeConfigMissingShopID     = errors.New("shopee: shop ID is required")
	ErrShopeeConfigMissingSecret     = errors.New("shopee: webhook secret is required")
)

// NewShopeeConfig creates a Shopee configuration with defaults.
func NewShopeeConfig(partnerID, partnerKey, shopID, webhookSecret string) *ShopeeConfig {
	return &ShopeeConfig{
		PartnerID:      partnerID,
		PartnerKey:     partnerKey,
		ShopID:         shopID,
		WebhookSecret:  webhookSecret,
		APIBaseURL:     ShopeeProductionAPIURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Shopee configuration.
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID == "" {
		return ErrShopeeConfigMissingPartnerID
	}
	if c.PartnerKey == "" {
		return ErrShopeeConfigMissingPartnerKey
	}
	if c.ShopID == "" {
		return ErrShopeeConfigMissingShopID
	}
	if c.WebhookSecret == "" {
		return ErrShopeeConfigMissingSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = ShopeeProductionAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Sign generates the request signature for a Shopee API call.
// Shopee signs HMAC-SHA256(partner_key, partner_id + path + timestamp + shop_id).
func (c *ShopeeConfig) Sign(path string, timestamp int64) string {
	base := fmt.Sprintf("%s%s%d%s", c.PartnerID, path, timestamp, c.ShopID)
	h := hmac.New(sha256.New, []byte(c.PartnerKey))
	h.Write([]byte(base))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhook checks an inbound push signature against the raw body.
func (c *ShopeeConfig) VerifyWebhook(body []byte, signature string) bool {
	h := hmac.New(sha256.New, []byte(c.WebhookSecret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
