package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
)

const lazadaStockUpdatePath = "/products/price_quantity/update"

// LazadaAdapter implements the marketplace port for Lazada.
type LazadaAdapter struct {
	config     *LazadaConfig
	httpClient *http.Client
}

// NewLazadaAdapter creates a Lazada adapter with the given configuration.
func NewLazadaAdapter(config *LazadaConfig) (*LazadaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &LazadaAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

var _ marketplace.Marketplace = (*LazadaAdapter)(nil)

// Code returns the marketplace code this adapter handles.
func (a *LazadaAdapter) Code() marketplace.Code {
	return marketplace.CodeLazada
}

// ---------------------------------------------------------------------------
// Stock Operations
// ---------------------------------------------------------------------------

// UpdateStock pushes absolute stock levels for the given SKUs.
func (a *LazadaAdapter) UpdateStock(ctx context.Context, items []marketplace.StockItem) error {
	if len(items) == 0 {
		return nil
	}

	products := make([]LazadaStockUpdateItem, 0, len(items))
	for _, item := range items {
		products = append(products, LazadaStockUpdateItem{
			SellerSKU: item.SKU,
			Quantity:  item.Quantity,
		})
	}

	respBody, err := a.doRequest(ctx, lazadaStockUpdatePath, LazadaStockUpdateRequest{
		SellerID: a.config.SellerID,
		Products: products,
	})
	if err != nil {
		return err
	}

	var resp LazadaAPIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: lazada: parse response: %v", marketplace.ErrInvalidResponse, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: lazada: %s - %s", marketplace.ErrRequestFailed, resp.Code, resp.Message)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook Normalization
// ---------------------------------------------------------------------------

// ParseOrderWebhook verifies the push signature and normalizes the payload
// into a canonical order.
func (a *LazadaAdapter) ParseOrderWebhook(payload []byte, signature string) (*order.Order, error) {
	if !a.config.VerifyWebhook(payload, signature) {
		return nil, marketplace.ErrInvalidSignature
	}

	var webhook LazadaOrderWebhook
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("%w: lazada: %v", marketplace.ErrInvalidPayload, err)
	}
	if webhook.TradeOrderID == "" {
		return nil, fmt.Errorf("%w: lazada: missing trade_order_id", marketplace.ErrInvalidPayload)
	}
	if len(webhook.OrderItems) == 0 {
		return nil, fmt.Errorf("%w: lazada: order %s has no items", marketplace.ErrInvalidPayload, webhook.TradeOrderID)
	}

	o := &order.Order{
		MarketplaceName: marketplace.CodeLazada.String(),
		ExternalOrderID: webhook.TradeOrderID,
		Customer: order.Customer{
			Name:         NormalizeName(webhook.Customer.FullName),
			Email:        NormalizeEmail(webhook.Customer.Email),
			Phone:        webhook.Customer.Phone,
			TaxID:        webhook.Customer.TaxID,
			BillingName:  NormalizeName(webhook.Customer.BillingName),
			BillingTaxID: webhook.Customer.BillingTaxID,
		},
	}

	for _, item := range webhook.OrderItems {
		o.LineItems = append(o.LineItems, order.LineItem{
			SKU:         item.SellerSKU,
			Quantity:    item.Quantity,
			UnitPrice:   ParseDecimal(item.ItemPrice),
			DisplayName: NormalizeName(item.Name),
		})
	}

	if fee := ParseDecimal(webhook.ShippingFee); fee.IsPositive() {
		o.ShippingFee = &fee
	}

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: lazada: %v", marketplace.ErrInvalidPayload, err)
	}
	return o, nil
}

// doRequest performs a signed HTTP request against the Lazada API.
func (a *LazadaAdapter) doRequest(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("lazada: marshal request: %w", err)
	}

	params := map[string]string{
		"app_key":     a.config.AppKey,
		"timestamp":   strconv.FormatInt(time.Now().UnixMilli(), 10),
		"sign_method": "sha256",
	}
	params["sign"] = a.config.Sign(path, params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIBaseURL+path+"?"+values.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("lazada: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: lazada: %v", marketplace.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("lazada: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: lazada: HTTP %d", marketplace.ErrRequestFailed, resp.StatusCode)
	}

	return respBody, nil
}
