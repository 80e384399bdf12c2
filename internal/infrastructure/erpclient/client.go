// Package erpclient implements the ERP port over the ERP's JSON-RPC
// external API. One integration user authenticates once per process;
// all object calls share the cached user ID.
package erpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/erp"
)

// maxResponseSize is the maximum allowed response size from the ERP (10MB)
const maxResponseSize = 10 * 1024 * 1024

const rpcPath = "/jsonrpc"

// Client talks to the ERP over JSON-RPC and implements erp.Client.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger

	reqID int64

	// uid caches the authenticated user ID; 0 means not yet logged in
	mu  sync.Mutex
	uid int64
}

// NewClient creates an ERP client with the given configuration.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

var _ erp.Client = (*Client)(nil)

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// FindOrCreateCustomer looks a customer up by email and creates it when absent.
func (c *Client) FindOrCreateCustomer(ctx context.Context, in erp.CustomerInput) (int64, error) {
	domain := []any{[]any{"email", "=", in.Email}}
	rows, err := c.searchRead(ctx, "res.partner", domain, []string{"id"}, 1)
	if err != nil {
		return 0, err
	}

	var partners []partnerRow
	if err := json.Unmarshal(rows, &partners); err != nil {
		return 0, fmt.Errorf("%w: parse partner rows: %v", erp.ErrRemoteCallFailed, err)
	}
	if len(partners) > 0 {
		return partners[0].ID, nil
	}

	values := map[string]any{
		"name":  in.Name,
		"email": in.Email,
	}
	if in.Phone != "" {
		values["phone"] = in.Phone
	}
	if in.TaxID != "" {
		values["vat"] = in.TaxID
	}

	id, err := c.create(ctx, "res.partner", values)
	if err != nil {
		return 0, err
	}
	c.logger.Info("created erp customer",
		zap.Int64("partner_id", id),
		zap.String("email", in.Email),
	)
	return id, nil
}

// FindOrCreateBillingContact resolves a child invoice contact of a customer
// matching the billing tax ID, creating it when absent.
func (c *Client) FindOrCreateBillingContact(ctx context.Context, in erp.BillingContactInput) (int64, error) {
	domain := []any{
		[]any{"parent_id", "=", in.ParentID},
		[]any{"vat", "=", in.TaxID},
		[]any{"type", "=", "invoice"},
	}
	rows, err := c.searchRead(ctx, "res.partner", domain, []string{"id"}, 1)
	if err != nil {
		return 0, err
	}

	var partners []partnerRow
	if err := json.Unmarshal(rows, &partners); err != nil {
		return 0, fmt.Errorf("%w: parse partner rows: %v", erp.ErrRemoteCallFailed, err)
	}
	if len(partners) > 0 {
		return partners[0].ID, nil
	}

	return c.create(ctx, "res.partner", map[string]any{
		"parent_id": in.ParentID,
		"name":      in.Name,
		"vat":       in.TaxID,
		"type":      "invoice",
	})
}

// ---------------------------------------------------------------------------
// Product and Stock Operations
// ---------------------------------------------------------------------------

// ResolveProductBySKU resolves a SKU to an ERP product by exact match on
// the internal reference.
func (c *Client) ResolveProductBySKU(ctx context.Context, sku string) (*erp.ProductRef, error) {
	domain := []any{[]any{"default_code", "=", sku}}
	rows, err := c.searchRead(ctx, "product.product", domain, []string{"id", "default_code", "name"}, 1)
	if err != nil {
		return nil, err
	}

	var products []productRow
	if err := json.Unmarshal(rows, &products); err != nil {
		return nil, fmt.Errorf("%w: parse product rows: %v", erp.ErrRemoteCallFailed, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: sku %q", erp.ErrProductNotFound, sku)
	}

	return &erp.ProductRef{
		ID:   products[0].ID,
		SKU:  products[0].DefaultCode,
		Name: products[0].Name,
	}, nil
}

// ResolveStockRecord resolves the stock record for a product in the given
// warehouse location.
func (c *Client) ResolveStockRecord(ctx context.Context, productID, locationID int64) (*erp.StockRecord, error) {
	domain := []any{
		[]any{"product_id", "=", productID},
		[]any{"location_id", "=", locationID},
	}
	rows, err := c.searchRead(ctx, "stock.quant", domain, []string{"id", "product_id", "location_id", "quantity"}, 1)
	if err != nil {
		return nil, err
	}

	var quants []quantRow
	if err := json.Unmarshal(rows, &quants); err != nil {
		return nil, fmt.Errorf("%w: parse stock rows: %v", erp.ErrRemoteCallFailed, err)
	}
	if len(quants) == 0 {
		return nil, fmt.Errorf("%w: product %d location %d", erp.ErrStockRecordNotFound, productID, locationID)
	}

	q := quants[0]
	return &erp.StockRecord{
		ID:         q.ID,
		ProductID:  q.ProductID.ID,
		LocationID: q.LocationID.ID,
		Quantity:   int64(q.Quantity),
	}, nil
}

// WritePendingQuantity stages a target quantity on a stock record without
// changing the on-hand count.
func (c *Client) WritePendingQuantity(ctx context.Context, recordID int64, quantity int64) error {
	_, err := c.execute(ctx, "stock.quant", "write", []any{
		[]any{recordID},
		map[string]any{"inventory_quantity": quantity},
	}, nil)
	return err
}

// ApplyPendingQuantity commits a previously staged quantity as the new
// on-hand quantity.
func (c *Client) ApplyPendingQuantity(ctx context.Context, recordID int64) error {
	_, err := c.execute(ctx, "stock.quant", "action_apply_inventory", []any{
		[]any{recordID},
	}, nil)
	return err
}

// ---------------------------------------------------------------------------
// Sales Order Operations
// ---------------------------------------------------------------------------

// CreateSalesOrder creates a draft sales order with one line per resolved
// product.
func (c *Client) CreateSalesOrder(ctx context.Context, in erp.SalesOrderInput) (*erp.SalesOrder, error) {
	lines := make([]any, 0, len(in.Lines))
	for _, line := range in.Lines {
		lines = append(lines, []any{0, 0, map[string]any{
			"product_id":      line.ProductID,
			"name":            line.Name,
			"product_uom_qty": line.Quantity,
			"price_unit":      line.UnitPrice.InexactFloat64(),
		}})
	}

	values := map[string]any{
		"partner_id":       in.CustomerID,
		"client_order_ref": in.ExternalRef,
		"order_line":       lines,
	}
	if in.BillingContactID != 0 {
		values["partner_invoice_id"] = in.BillingContactID
	}

	id, err := c.create(ctx, "sale.order", values)
	if err != nil {
		return nil, err
	}

	rows, err := c.execute(ctx, "sale.order", "read", []any{[]any{id}}, map[string]any{
		"fields": []string{"name"},
	})
	if err != nil {
		return nil, err
	}
	var orders []orderRow
	if err := json.Unmarshal(rows, &orders); err != nil || len(orders) == 0 {
		return nil, fmt.Errorf("%w: read created order %d", erp.ErrRemoteCallFailed, id)
	}

	return &erp.SalesOrder{
		ID:          id,
		Number:      orders[0].Name,
		CustomerID:  in.CustomerID,
		ExternalRef: in.ExternalRef,
		Status:      erp.SalesOrderStatusDraft,
	}, nil
}

// ConfirmSalesOrder transitions a draft sales order to confirmed.
func (c *Client) ConfirmSalesOrder(ctx context.Context, orderID int64) error {
	_, err := c.execute(ctx, "sale.order", "action_confirm", []any{
		[]any{orderID},
	}, nil)
	return err
}

// FindSalesOrderByRef looks up a sales order by its external reference.
func (c *Client) FindSalesOrderByRef(ctx context.Context, externalRef string) (*erp.SalesOrder, error) {
	domain := []any{[]any{"client_order_ref", "=", externalRef}}
	rows, err := c.searchRead(ctx, "sale.order", domain, []string{"id", "name", "partner_id", "client_order_ref", "state"}, 1)
	if err != nil {
		return nil, err
	}

	var orders []orderRow
	if err := json.Unmarshal(rows, &orders); err != nil {
		return nil, fmt.Errorf("%w: parse order rows: %v", erp.ErrRemoteCallFailed, err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: ref %q", erp.ErrSalesOrderNotFound, externalRef)
	}

	row := orders[0]
	status := erp.SalesOrderStatusDraft
	if row.State == "sale" || row.State == "done" {
		status = erp.SalesOrderStatusConfirmed
	}

	return &erp.SalesOrder{
		ID:          row.ID,
		Number:      row.Name,
		CustomerID:  row.PartnerID.ID,
		ExternalRef: row.ClientOrderRef,
		Status:      status,
	}, nil
}

// ---------------------------------------------------------------------------
// JSON-RPC plumbing
// ---------------------------------------------------------------------------

// searchRead runs search_read on a model and returns the raw result rows.
func (c *Client) searchRead(ctx context.Context, model string, domain []any, fields []string, limit int) (json.RawMessage, error) {
	kwargs := map[string]any{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	return c.execute(ctx, model, "search_read", []any{domain}, kwargs)
}

// create runs create on a model and returns the new record ID.
func (c *Client) create(ctx context.Context, model string, values map[string]any) (int64, error) {
	result, err := c.execute(ctx, model, "create", []any{values}, nil)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, fmt.Errorf("%w: parse created id: %v", erp.ErrRemoteCallFailed, err)
	}
	return id, nil
}

// execute runs an execute_kw object call with the cached session.
func (c *Client) execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	if kwargs == nil {
		kwargs = map[string]any{}
	}
	callArgs := []any{c.config.Database, uid, c.config.APIKey, model, method, args, kwargs}
	return c.call(ctx, "object", "execute_kw", callArgs)
}

// authenticate logs in once and caches the user ID.
func (c *Client) authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}

	result, err := c.call(ctx, "common", "authenticate", []any{
		c.config.Database, c.config.Username, c.config.APIKey, map[string]any{},
	})
	if err != nil {
		return 0, err
	}

	// The ERP returns false instead of a user ID on bad credentials
	var uid int64
	if err := json.Unmarshal(result, &uid); err != nil || uid == 0 {
		return 0, fmt.Errorf("%w: authentication rejected for user %q", erp.ErrRemoteCallFailed, c.config.Username)
	}

	c.uid = uid
	c.logger.Debug("authenticated against erp", zap.Int64("uid", uid))
	return uid, nil
}

// call performs one JSON-RPC round trip.
func (c *Client) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: rpcParams{
			Service: service,
			Method:  method,
			Args:    args,
		},
		ID: atomic.AddInt64(&c.reqID, 1),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("erpclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+rpcPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("erpclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", erp.ErrRemoteCallFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", erp.ErrRemoteCallFailed, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", erp.ErrRemoteCallFailed, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", erp.ErrRemoteCallFailed, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", erp.ErrRemoteCallFailed, rpcResp.Error.String())
	}

	return rpcResp.Result, nil
}
