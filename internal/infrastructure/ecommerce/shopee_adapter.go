package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
)

// maxResponseSize is the maximum allowed marketplace API response size (10MB)
const maxResponseSize = 10 * 1024 * 1024

const shopeeStockUpdatePath = "/api/v2/product/update_stock"

// ShopeeAdapter implements the marketplace port for Shopee.
type ShopeeAdapter struct {
	config     *ShopeeConfig
	httpClient *http.Client
}

// NewShopeeAdapter creates a Shopee adapter with the given configuration.
func NewShopeeAdapter(config *ShopeeConfig) (*ShopeeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ShopeeAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

var _ marketplace.Marketplace = (*ShopeeAdapter)(nil)

// Code returns the marketplace code this adapter handles.
func (a *ShopeeAdapter) Code() marketplace.Code {
	return marketplace.CodeShopee
}

// ---------------------------------------------------------------------------
// Stock Operations
// ---------------------------------------------------------------------------

// UpdateStock pushes absolute stock levels for the given SKUs.
func (a *ShopeeAdapter) UpdateStock(ctx context.Context, items []marketplace.StockItem) error {
	if len(items) == 0 {
		return nil
	}

	stockList := make([]ShopeeStockUpdateItem, 0, len(items))
	for _, item := range items {
		stockList = append(stockList, ShopeeStockUpdateItem{
			ItemSKU: item.SKU,
			Stock:   item.Quantity,
		})
	}

	respBody, err := a.doRequest(ctx, shopeeStockUpdatePath, ShopeeStockUpdateRequest{
		ShopID:    a.config.ShopID,
		StockList: stockList,
	})
	if err != nil {
		return err
	}

	var resp ShopeeAPIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: shopee: parse response: %v", marketplace.ErrInvalidResponse, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: shopee: %s - %s", marketplace.ErrRequestFailed, resp.Error, resp.Message)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook Normalization
// ---------------------------------------------------------------------------

// ParseOrderWebhook verifies the push signature and normalizes the payload
// into a canonical order.
func (a *ShopeeAdapter) ParseOrderWebhook(payload []byte, signature string) (*order.Order, error) {
	if !a.config.VerifyWebhook(payload, signature) {
		return nil, marketplace.ErrInvalidSignature
	}

	var webhook ShopeeOrderWebhook
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", marketplace.ErrInvalidPayload, err)
	}
	if webhook.OrderSN == "" {
		return nil, fmt.Errorf("%w: shopee: missing ordersn", marketplace.ErrInvalidPayload)
	}
	if len(webhook.Items) == 0 {
		return nil, fmt.Errorf("%w: shopee: order %s has no items", marketplace.ErrInvalidPayload, webhook.OrderSN)
	}

	o := &order.Order{
		MarketplaceName: marketplace.CodeShopee.String(),
		ExternalOrderID: webhook.OrderSN,
		Customer: order.Customer{
			Name:  NormalizeName(webhook.Buyer.Name),
			Email: NormalizeEmail(webhook.Buyer.Email),
			Phone: webhook.Buyer.Phone,
			TaxID: webhook.Buyer.TaxID,
		},
	}
	if webhook.Billing != nil {
		o.Customer.BillingName = NormalizeName(webhook.Billing.Name)
		o.Customer.BillingTaxID = webhook.Billing.TaxID
	}

	for _, item := range webhook.Items {
		o.LineItems = append(o.LineItems, order.LineItem{
			SKU:         item.ItemSKU,
			Quantity:    item.Quantity,
			UnitPrice:   ParseDecimal(item.ItemPrice),
			DisplayName: NormalizeName(item.ItemName),
		})
	}

	if fee := ParseDecimal(webhook.ShippingFee); fee.IsPositive() {
		o.ShippingFee = &fee
	}

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", marketplace.ErrInvalidPayload, err)
	}
	return o, nil
}

// doRequest performs a signed HTTP request against the Shopee API.
func (a *ShopeeAdapter) doRequest(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("shopee: marshal request: %w", err)
	}

	timestamp := time.Now().Unix()
	url := fmt.Sprintf("%s%s?partner_id=%s&timestamp=%d&shop_id=%s&sign=%s",
		a.config.APIBaseURL, path,
		a.config.PartnerID, timestamp, a.config.ShopID,
		a.config.Sign(path, timestamp),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("shopee: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", marketplace.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("shopee: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: shopee: HTTP %d", marketplace.ErrRequestFailed, resp.StatusCode)
	}

	return respBody, nil
}
