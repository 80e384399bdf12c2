package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// LazadaConfig holds configuration for the Lazada open platform API.
type LazadaConfig struct {
	// AppKey is the application key from the Lazada open platform
	AppKey string
	// AppSecret signs outbound API calls
	AppSecret string
	// SellerID is the connected seller account
	SellerID string
	// WebhookSecret verifies inbound push payloads
	WebhookSecret string
	// APIBaseURL is the base URL for the Lazada API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// LazadaProductionAPIURL is the production API endpoint
const LazadaProductionAPIURL = "https://api.lazada.com/rest"

// Errors for Lazada configuration
var (
	ErrLazadaConfigMissingAppKey    = errors.New("lazada: app key is required")
	ErrLazadaConfigMissingAppSecret = errors.New("lazada: app secret is required")
	ErrLazadaConfigMissingSellerID  = errors.New("lazada: seller ID is required")
	ErrLazadaConfigMissingSecret    = errors.New("lazada: webhook secret is required")
)

// NewLazadaConfig creates a Lazada configuration with defaults.
func NewLazadaConfig(appKey, appSecret, sellerID, webhookSecret string) *LazadaConfig {
	return &LazadaConfig{
		AppKey:         appKey,
		AppSecret:      appSecret,
		SellerID:       sellerID,
		WebhookSecret:  webhookSecret,
		APIBaseURL:     LazadaProductionAPIURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Lazada configuration.
func (c *LazadaConfig) Validate() error {
	if c.AppKey == "" {
		return ErrLazadaConfigMissingAppKey
	}
	if c.AppSecret == "" {
		return ErrLazadaConfigMissingAppSecret
	}
	if c.SellerID == "" {
		return ErrLazadaConfigMissingSellerID
	}
	if c.WebhookSecret == "" {
		return ErrLazadaConfigMissingSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = LazadaProductionAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Sign generates the signature for a Lazada API call.
// Lazada uses uppercase hex HMAC-SHA256(app_secret, path + sorted key/value
// concatenation).
func (c *LazadaConfig) Sign(path string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(path)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}

	h := hmac.New(sha256.New, []byte(c.AppSecret))
	h.Write([]byte(builder.String()))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// VerifyWebhook checks an inbound push signature against the raw body.
func (c *LazadaConfig) VerifyWebhook(body []byte, signature string) bool {
	h := hmac.New(sha256.New, []byte(c.WebhookSecret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
