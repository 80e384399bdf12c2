package marketplace

import (
	"context"
	"errors"
	"strings"

	"github.com/channelsync/backend/internal/domain/order"
)

// ---------------------------------------------------------------------------
// Marketplace Errors
// ---------------------------------------------------------------------------

var (
	// ErrAdapterNotConfigured indicates no adapter is registered for a
	// marketplace code. This is a configuration gap, never retried.
	ErrAdapterNotConfigured = errors.New("marketplace: adapter not configured")
	// ErrRequestFailed indicates a network/auth/rejection failure talking
	// to the marketplace API.
	ErrRequestFailed = errors.New("marketplace: request failed")
	// ErrInvalidResponse indicates the marketplace returned an unparseable
	// or semantically invalid response.
	ErrInvalidResponse = errors.New("marketplace: invalid response")
	// ErrInvalidSignature indicates a webhook payload failed signature
	// verification.
	ErrInvalidSignature = errors.New("marketplace: invalid webhook signature")
	// ErrInvalidPayload indicates a webhook payload could not be normalized
	// into a canonical order.
	ErrInvalidPayload = errors.New("marketplace: invalid webhook payload")
)

// ---------------------------------------------------------------------------
// Code represents a known marketplace
// ---------------------------------------------------------------------------

// Code identifies a marketplace. The set of known marketplaces is a closed
// enumeration; adapters for a subset of them may be configured at runtime.
type Code string

const (
	// CodeShopee represents the Shopee marketplace
	CodeShopee Code = "SHOPEE"
	// CodeLazada represents the Lazada marketplace
	CodeLazada Code = "LAZADA"
	// CodeTikTok represents the TikTok Shop marketplace
	CodeTikTok Code = "TIKTOK"
)

// ParseCode normalizes a marketplace name into a Code. Matching is
// case-insensitive.
func ParseCode(name string) (Code, bool) {
	switch Code(strings.ToUpper(strings.TrimSpace(name))) {
	case CodeShopee:
		return CodeShopee, true
	case CodeLazada:
		return CodeLazada, true
	case CodeTikTok:
		return CodeTikTok, true
	default:
		return "", false
	}
}

// IsValid returns true if the code is a known marketplace.
func (c Code) IsValid() bool {
	_, ok := ParseCode(string(c))
	return ok
}

// String returns the string representation of the Code.
func (c Code) String() string {
	return string(c)
}

// Equals compares two marketplace names case-insensitively.
func (c Code) Equals(name string) bool {
	return strings.EqualFold(string(c), strings.TrimSpace(name))
}

// ---------------------------------------------------------------------------
// Port Interface
// ---------------------------------------------------------------------------

// StockItem is a single stock level to push to a marketplace.
type StockItem struct {
	// SKU correlates the product across the ERP and all marketplaces
	SKU string
	// Quantity is the new authoritative quantity
	Quantity int64
}

// Marketplace is the port interface every marketplace adapter implements.
// Implementations differ in auth scheme and wire format but uniformly
// surface failures as a single error value the synchronization engine
// can record.
type Marketplace interface {
	// Code returns the marketplace this adapter handles
	Code() Code

	// UpdateStock pushes new stock levels to the marketplace. A nil error
	// means every item was accepted.
	UpdateStock(ctx context.Context, items []StockItem) error

	// ParseOrderWebhook verifies and normalizes an inbound webhook payload
	// into exactly one canonical order. The signature is the value of the
	// platform's signature header.
	ParseOrderWebhook(payload []byte, signature string) (*order.Order, error)
}

// Registry provides access to the configured marketplace adapters. It is
// constructed once at process start; lookups are case-insensitive.
type Registry interface {
	// Get returns the adapter for the given marketplace name, or
	// ErrAdapterNotConfigured.
	Get(name string) (Marketplace, error)

	// All returns every configured adapter.
	All() []Marketplace

	// Names returns the names of every configured marketplace.
	Names() []string
}
