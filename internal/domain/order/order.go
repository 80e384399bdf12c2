package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Order Errors
// ---------------------------------------------------------------------------

var (
	ErrMissingMarketplace = errors.New("order: marketplace name is required")
	ErrMissingExternalID  = errors.New("order: external order ID is required")
	ErrMissingCustomer    = errors.New("order: customer email is required")
	ErrNoLineItems        = errors.New("order: at least one line item is required")
	ErrInvalidLineItem    = errors.New("order: invalid line item")
)

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// Customer is the buyer identity attached to a canonical order.
// Email is the primary matching key against the ERP contact database.
type Customer struct {
	// Name is the customer's display name
	Name string
	// Email is the primary matching key
	Email string
	// Phone is the customer's phone number (optional)
	Phone string
	// TaxID is the customer's legal/tax identifier (optional)
	TaxID string
	// BillingName is a distinct legal billing identity (optional)
	BillingName string
	// BillingTaxID is the tax ID of the billing identity (optional)
	BillingTaxID string
}

// HasBillingIdentity returns true if the order carries a billing identity
// distinct from the buyer, requiring a separate ERP billing contact.
func (c Customer) HasBillingIdentity() bool {
	return c.BillingTaxID != "" && c.BillingName != ""
}

// LineItem is a single ordered product line.
// UnitPrice is the gross (tax-inclusive) price as charged on the marketplace.
type LineItem struct {
	// SKU correlates the product across the ERP and all marketplaces
	SKU string
	// Quantity is the ordered quantity, always > 0
	Quantity int64
	// UnitPrice is the gross unit price charged to the buyer
	UnitPrice decimal.Decimal
	// DisplayName is the product name as shown on the marketplace
	DisplayName string
}

// Validate checks the line item invariants.
func (li LineItem) Validate() error {
	if li.SKU == "" {
		return fmt.Errorf("%w: empty SKU", ErrInvalidLineItem)
	}
	if li.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive for SKU %s", ErrInvalidLineItem, li.SKU)
	}
	if li.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: negative unit price for SKU %s", ErrInvalidLineItem, li.SKU)
	}
	return nil
}

// GrossTotal returns quantity * unit price.
func (li LineItem) GrossTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is the canonical, marketplace-independent representation of a sale.
// It is produced exactly once by webhook normalization and consumed exactly
// once by the order materializer.
type Order struct {
	// MarketplaceName identifies the originating marketplace. It is excluded
	// from stock fan-out after materialization.
	MarketplaceName string
	// ExternalOrderID is the marketplace-assigned order identifier
	ExternalOrderID string
	// Customer is the buyer identity
	Customer Customer
	// LineItems are the ordered product lines
	LineItems []LineItem
	// ShippingFee is the gross shipping amount, nil when free or absent
	ShippingFee *decimal.Decimal
}

// Validate checks the canonical order invariants.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.MarketplaceName) == "" {
		return ErrMissingMarketplace
	}
	if strings.TrimSpace(o.ExternalOrderID) == "" {
		return ErrMissingExternalID
	}
	if strings.TrimSpace(o.Customer.Email) == "" {
		return ErrMissingCustomer
	}
	if len(o.LineItems) == 0 {
		return ErrNoLineItems
	}
	for _, li := range o.LineItems {
		if err := li.Validate(); err != nil {
			return err
		}
	}
	if o.ShippingFee != nil && o.ShippingFee.IsNegative() {
		return fmt.Errorf("%w: negative shipping fee", ErrInvalidLineItem)
	}
	return nil
}

// DedupKey returns the idempotency key for webhook deduplication,
// unique per marketplace order.
func (o *Order) DedupKey() string {
	return strings.ToLower(o.MarketplaceName) + ":" + o.ExternalOrderID
}

// HasShipping returns true if the order carries a positive shipping fee.
func (o *Order) HasShipping() bool {
	return o.ShippingFee != nil && o.ShippingFee.IsPositive()
}
