package erp

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// ERP Errors
// ---------------------------------------------------------------------------

var (
	// ErrProductNotFound indicates no ERP product matches a SKU exactly.
	ErrProductNotFound = errors.New("erp: product not found")
	// ErrStockRecordNotFound indicates a product has no stock record for
	// the configured warehouse location.
	ErrStockRecordNotFound = errors.New("erp: stock record not found")
	// ErrInsufficientStock indicates a reduction would bring the on-hand
	// quantity below zero. No write is performed.
	ErrInsufficientStock = errors.New("erp: insufficient stock")
	// ErrCustomerNotFound indicates a customer lookup returned nothing.
	ErrCustomerNotFound = errors.New("erp: customer not found")
	// ErrSalesOrderNotFound indicates no sales order matches a reference.
	ErrSalesOrderNotFound = errors.New("erp: sales order not found")
	// ErrRemoteCallFailed indicates a network, timeout or auth failure on
	// an ERP round trip. Retryable at the operator's discretion only.
	ErrRemoteCallFailed = errors.New("erp: remote call failed")
	// ErrPendingApplyFailed indicates the apply phase failed after the
	// pending quantity was already written. The stock record is in an
	// inconsistent state requiring manual recovery; never retried blindly.
	ErrPendingApplyFailed = errors.New("erp: apply after pending write failed")
)

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// ProductRef is a resolved ERP product.
type ProductRef struct {
	// ID is the ERP-assigned product identifier
	ID int64
	// SKU is the product's stock-keeping unit code
	SKU string
	// Name is the product's ERP display name
	Name string
}

// StockRecord is the authoritative count for a (product, location) pair.
type StockRecord struct {
	// ID is the ERP-assigned stock record identifier
	ID int64
	// ProductID is the product this record tracks
	ProductID int64
	// LocationID is the warehouse location
	LocationID int64
	// Quantity is the current on-hand quantity
	Quantity int64
}

// CustomerInput is the data used to find or create an ERP customer.
type CustomerInput struct {
	Name  string
	Email string
	Phone string
	TaxID string
}

// BillingContactInput describes a child billing contact of a customer.
type BillingContactInput struct {
	ParentID int64
	Name     string
	TaxID    string
}

// SalesOrderLine is one resolved line of a sales order. UnitPrice is the
// net (tax-exclusive) price per the ERP's pricing convention.
type SalesOrderLine struct {
	ProductID int64
	Name      string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// SalesOrderInput is the data used to create a draft sales order.
type SalesOrderInput struct {
	CustomerID int64
	// BillingContactID is zero when the buyer is also the invoice recipient
	BillingContactID int64
	// ExternalRef is <marketplacePrefix>-<externalOrderId>, unique per
	// marketplace order
	ExternalRef string
	Lines       []SalesOrderLine
}

// SalesOrderStatus is the lifecycle state of an ERP sales order.
type SalesOrderStatus string

const (
	SalesOrderStatusDraft     SalesOrderStatus = "draft"
	SalesOrderStatusConfirmed SalesOrderStatus = "confirmed"
)

// SalesOrder is a created ERP sales order.
type SalesOrder struct {
	ID          int64
	Number      string
	CustomerID  int64
	ExternalRef string
	Status      SalesOrderStatus
}

// StockMovement is the before/after result of one stock mutation.
type StockMovement struct {
	SKU           string
	PreviousStock int64
	NewStock      int64
}

// ---------------------------------------------------------------------------
// Client Port Interface
// ---------------------------------------------------------------------------

// Client is the port interface to the inventory system-of-record. All
// methods are blocking remote calls; none are assumed idempotent.
type Client interface {
	// FindOrCreateCustomer looks a customer up by email and creates it
	// when absent.
	FindOrCreateCustomer(ctx context.Context, in CustomerInput) (int64, error)

	// FindOrCreateBillingContact resolves a child contact of a customer
	// matching the billing tax ID, creating it when absent.
	FindOrCreateBillingContact(ctx context.Context, in BillingContactInput) (int64, error)

	// ResolveProductBySKU resolves a SKU to an ERP product by exact match.
	ResolveProductBySKU(ctx context.Context, sku string) (*ProductRef, error)

	// ResolveStockRecord resolves the stock record for a product in the
	// given warehouse location.
	ResolveStockRecord(ctx context.Context, productID, locationID int64) (*StockRecord, error)

	// WritePendingQuantity stages a target quantity on a stock record.
	// It does not change the on-hand quantity until applied.
	WritePendingQuantity(ctx context.Context, recordID int64, quantity int64) error

	// ApplyPendingQuantity commits a previously staged quantity as the
	// new on-hand quantity.
	ApplyPendingQuantity(ctx context.Context, recordID int64) error

	// CreateSalesOrder creates a draft sales order.
	CreateSalesOrder(ctx context.Context, in SalesOrderInput) (*SalesOrder, error)

	// ConfirmSalesOrder transitions a draft sales order to confirmed.
	ConfirmSalesOrder(ctx context.Context, orderID int64) error

	// FindSalesOrderByRef looks up a sales order by its external reference.
	// Returns ErrSalesOrderNotFound when no order carries the reference.
	FindSalesOrderByRef(ctx context.Context, externalRef string) (*SalesOrder, error)
}
