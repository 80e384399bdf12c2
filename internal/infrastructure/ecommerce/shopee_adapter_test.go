package ecommerce

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/marketplace"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestShopeeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ShopeeConfig
		wantErr error
	}{
		{
			name:    "valid config",
			config:  NewShopeeConfig("p1", "k1", "s1", "wh1"),
			wantErr: nil,
		},
		{
			name:    "missing partner id",
			config:  &ShopeeConfig{PartnerKey: "k1", ShopID: "s1", WebhookSecret: "wh1"},
			wantErr: ErrShopeeConfigMissingPartnerID,
		},
		{
			name:    "missing partner key",
			config:  &ShopeeConfig{PartnerID: "p1", ShopID: "s1", WebhookSecret: "wh1"},
			wantErr: ErrShopeeConfigMissingPartnerKey,
		},
		{
			name:    "missing shop id",
			config:  &ShopeeConfig{PartnerID: "p1", PartnerKey: "k1", WebhookSecret: "wh1"},
			wantErr: ErrShopeeConfigMissingShopID,
		},
		{
			name:    "missing webhook secret",
			config:  &ShopeeConfig{PartnerID: "p1", PartnerKey: "k1", ShopID: "s1"},
			wantErr: ErrShopeeConfigMissingSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, tt.config.APIBaseURL)
				assert.True(t, tt.config.TimeoutSeconds > 0)
			}
		})
	}
}

func TestShopeeConfig_SignIsDeterministic(t *testing.T) {
	config := NewShopeeConfig("1001", "secret", "2002", "wh")
	sig1 := config.Sign("/api/v2/product/update_stock", 1700000000)
	sig2 := config.Sign("/api/v2/product/update_stock", 1700000000)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64)

	other := config.Sign("/api/v2/product/update_stock", 1700000001)
	assert.NotEqual(t, sig1, other)
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

func shopeeSign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func shopeeTestPayload() []byte {
	return []byte(`{
		"ordersn": "2208SHP001",
		"buyer": {"name": "ANA LIMA", "email": "Ana@Example.com", "phone": "+5511999", "tax_id": "BR123"},
		"billing": {"name": "lima comercio ltda", "tax_id": "BR999"},
		"items": [
			{"item_sku": "A1", "item_name": "widget   deluxe", "quantity": 2, "item_price": "11.90"}
		],
		"shipping_fee": "5.95"
	}`)
}

func TestShopeeAdapter_Code(t *testing.T) {
	adapter, err := NewShopeeAdapter(NewShopeeConfig("p", "k", "s", "wh"))
	require.NoError(t, err)
	assert.Equal(t, marketplace.CodeShopee, adapter.Code())
}

func TestShopeeAdapter_ParseOrderWebhook(t *testing.T) {
	adapter, err := NewShopeeAdapter(NewShopeeConfig("p", "k", "s", "wh-secret"))
	require.NoError(t, err)

	payload := shopeeTestPayload()
	o, err := adapter.ParseOrderWebhook(payload, shopeeSign("wh-secret", payload))
	require.NoError(t, err)

	assert.Equal(t, "SHOPEE", o.MarketplaceName)
	assert.Equal(t, "2208SHP001", o.ExternalOrderID)
	assert.Equal(t, "Ana Lima", o.Customer.Name)
	assert.Equal(t, "ana@example.com", o.Customer.Email)
	assert.Equal(t, "BR123", o.Customer.TaxID)
	assert.Equal(t, "Lima Comercio Ltda", o.Customer.BillingName)
	assert.Equal(t, "BR999", o.Customer.BillingTaxID)
	assert.True(t, o.Customer.HasBillingIdentity())

	require.Len(t, o.LineItems, 1)
	assert.Equal(t, "A1", o.LineItems[0].SKU)
	assert.Equal(t, int64(2), o.LineItems[0].Quantity)
	assert.Equal(t, "11.9", o.LineItems[0].UnitPrice.String())
	assert.Equal(t, "Widget Deluxe", o.LineItems[0].DisplayName)

	require.NotNil(t, o.ShippingFee)
	assert.Equal(t, "5.95", o.ShippingFee.String())
}

func TestShopeeAdapter_ParseOrderWebhookRejectsBadSignature(t *testing.T) {
	adapter, err := NewShopeeAdapter(NewShopeeConfig("p", "k", "s", "wh-secret"))
	require.NoError(t, err)

	_, err = adapter.ParseOrderWebhook(shopeeTestPayload(), "deadbeef")
	assert.ErrorIs(t, err, marketplace.ErrInvalidSignature)
}

func TestShopeeAdapter_ParseOrderWebhookRejectsEmptyOrder(t *testing.T) {
	adapter, err := NewShopeeAdapter(NewShopeeConfig("p", "k", "s", "wh-secret"))
	require.NoError(t, err)

	payload := []byte(`{"ordersn": "X1", "buyer": {"email": "a@b.c"}, "items": []}`)
	_, err = adapter.ParseOrderWebhook(payload, shopeeSign("wh-secret", payload))
	assert.ErrorIs(t, err, marketplace.ErrInvalidPayload)
}

func TestShopeeAdapter_ParseOrderWebhookRejectsMissingOrderSN(t *testing.T) {
	adapter, err := NewShopeeAdapter(NewShopeeConfig("p", "k", "s", "wh-secret"))
	require.NoError(t, err)

	payload := []byte(`{"buyer": {"email": "a@b.c"}, "items": [{"item_sku": "A1", "quantity": 1}]}`)
	_, err = adapter.ParseOrderWebhook(payload, shopeeSign("wh-secret", payload))
	assert.ErrorIs(t, err, marketplace.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "ordersn")
}

func TestShopeeAdapter_UpdateStock(t *testing.T) {
	var gotRequest ShopeeStockUpdateRequest
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		json.NewEncoder(w).Encode(ShopeeAPIResponse{Error: ""})
	}))
	defer server.Close()

	config := NewShopeeConfig("1001", "secret", "2002", "wh")
	config.APIBaseURL = server.URL
	adapter, err := NewShopeeAdapter(config)
	require.NoError(t, err)

	err = adapter.UpdateStock(context.Background(), []marketplace.StockItem{
		{SKU: "A1", Quantity: 8},
		{SKU: "B2", Quantity: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, "2002", gotRequest.ShopID)
	require.Len(t, gotRequest.StockList, 2)
	assert.Equal(t, ShopeeStockUpdateItem{ItemSKU: "A1", Stock: 8}, gotRequest.StockList[0])
	assert.Equal(t, ShopeeStockUpdateItem{ItemSKU: "B2", Stock: 0}, gotRequest.StockList[1])

	assert.Equal(t, []string{"1001"}, gotQuery["partner_id"])
	assert.NotEmpty(t, gotQuery["sign"])
	assert.NotEmpty(t, gotQuery["timestamp"])
}

func TestShopeeAdapter_UpdateStockAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ShopeeAPIResponse{Error: "error_param", Message: "unknown sku"})
	}))
	defer server.Close()

	config := NewShopeeConfig("1001", "secret", "2002", "wh")
	config.APIBaseURL = server.URL
	adapter, err := NewShopeeAdapter(config)
	require.NoError(t, err)

	err = adapter.UpdateStock(context.Background(), []marketplace.StockItem{{SKU: "A1", Quantity: 8}})
	assert.ErrorIs(t, err, marketplace.ErrRequestFailed)
	assert.Contains(t, err.Error(), "unknown sku")
}

func TestShopeeAdapter_UpdateStockHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	config := NewShopeeConfig("1001", "secret", "2002", "wh")
	config.APIBaseURL = server.URL
	adapter, err := NewShopeeAdapter(config)
	require.NoError(t, err)

	err = adapter.UpdateStock(context.Background(), []marketplace.StockItem{{SKU: "A1", Quantity: 8}})
	assert.ErrorIs(t, err, marketplace.ErrRequestFailed)
	assert.Contains(t, err.Error(), "429")
}

func TestShopeeAdapter_UpdateStockNoItems(t *testing.T) {
	adapter, err := NewShopeeAdapter(NewShopeeConfig("p", "k", "s", "wh"))
	require.NoError(t, err)
	// No server configured: an empty update must not make a request
	assert.NoError(t, adapter.UpdateStock(context.Background(), nil))
}
