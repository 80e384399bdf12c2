package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
	"github.com/channelsync/backend/internal/infrastructure/cache"
	"github.com/channelsync/backend/internal/infrastructure/storage"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAdapter is a scriptable marketplace adapter for intake tests.
type fakeAdapter struct {
	code     marketplace.Code
	parseErr error
	order    *order.Order
}

func (f *fakeAdapter) Code() marketplace.Code { return f.code }

func (f *fakeAdapter) UpdateStock(ctx context.Context, items []marketplace.StockItem) error {
	return nil
}

func (f *fakeAdapter) ParseOrderWebhook(payload []byte, signature string) (*order.Order, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.order, nil
}

// fakeRegistry serves a single adapter under its code name.
type fakeRegistry struct {
	adapter marketplace.Marketplace
}

func (r *fakeRegistry) Get(name string) (marketplace.Marketplace, error) {
	if r.adapter != nil && r.adapter.Code().Equals(name) {
		return r.adapter, nil
	}
	return nil, marketplace.ErrAdapterNotConfigured
}

func (r *fakeRegistry) All() []marketplace.Marketplace {
	if r.adapter == nil {
		return nil
	}
	return []marketplace.Marketplace{r.adapter}
}

func (r *fakeRegistry) Names() []string {
	if r.adapter == nil {
		return nil
	}
	return []string{r.adapter.Code().String()}
}

// failingDedupStore simulates a dedup backend outage.
type failingDedupStore struct{}

func (failingDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (failingDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (failingDedupStore) Close() error {
	return nil
}

func testOrder() *order.Order {
	return &order.Order{
		MarketplaceName: "SHOPEE",
		ExternalOrderID: "2403129XYZ",
		Customer: order.Customer{
			Name:  "Jane Buyer",
			Email: "jane@example.com",
		},
		LineItems: []order.LineItem{
			{SKU: "WIDGET-1", Quantity: 2},
		},
	}
}

func postWebhook(h *WebhookHandler, path, body, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/webhooks/:marketplace", h.Receive)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_Receive_Accepted(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeShopee, order: testOrder()}
	var enqueued *order.Order
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) {
			enqueued = o
			return "job-42", nil
		},
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/shopee", `{"ordersn":"2403129XYZ"}`, "sig")

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, enqueued)
	assert.Equal(t, "2403129XYZ", enqueued.ExternalOrderID)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "accepted", data["status"])
	assert.Equal(t, "SHOPEE", data["marketplace"])
	assert.Equal(t, "job-42", data["job_id"])
}

func TestWebhookHandler_Receive_Duplicate(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeShopee, order: testOrder()}
	enqueueCalls := 0
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) {
			enqueueCalls++
			return "job-1", nil
		},
		zap.NewNop(),
	)

	first := postWebhook(h, "/webhooks/shopee", `{"ordersn":"2403129XYZ"}`, "sig")
	assert.Equal(t, http.StatusAccepted, first.Code)

	second := postWebhook(h, "/webhooks/shopee", `{"ordersn":"2403129XYZ"}`, "sig")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, enqueueCalls)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "duplicate", data["status"])
}

func TestWebhookHandler_Receive_InvalidSignature(t *testing.T) {
	adapter := &fakeAdapter{
		code:     marketplace.CodeShopee,
		parseErr: marketplace.ErrInvalidSignature,
	}
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) {
			t.Fatal("rejected payload must not be enqueued")
			return "", nil
		},
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/shopee", `{"ordersn":"2403129XYZ"}`, "bad-sig")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidSignature, resp.Error.Code)
}

func TestWebhookHandler_Receive_InvalidPayload(t *testing.T) {
	adapter := &fakeAdapter{
		code:     marketplace.CodeShopee,
		parseErr: marketplace.ErrInvalidPayload,
	}
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) { return "", nil },
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/shopee", `not-json`, "sig")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidPayload, resp.Error.Code)
}

func TestWebhookHandler_Receive_EmptyBody(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeShopee, order: testOrder()}
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) { return "", nil },
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/shopee", "", "sig")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidPayload, resp.Error.Code)
}

func TestWebhookHandler_Receive_UnknownMarketplace(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeShopee, order: testOrder()}
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) { return "", nil },
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/lazada", `{"order_id":"1"}`, "sig")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeAdapterNotConfigured, resp.Error.Code)
}

func TestWebhookHandler_Receive_DedupOutageFailsOpen(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeShopee, order: testOrder()}
	enqueueCalls := 0
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		failingDedupStore{},
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) {
			enqueueCalls++
			return "job-1", nil
		},
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/shopee", `{"ordersn":"2403129XYZ"}`, "sig")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, enqueueCalls)
}

func TestWebhookHandler_Receive_EnqueueFailure(t *testing.T) {
	adapter := &fakeAdapter{code: marketplace.CodeShopee, order: testOrder()}
	h := NewWebhookHandler(
		&fakeRegistry{adapter: adapter},
		cache.NewInMemoryDedupStore(),
		storage.NewNopArchive(),
		func(ctx context.Context, o *order.Order) (string, error) {
			return "", errors.New("broker unavailable")
		},
		zap.NewNop(),
	)

	w := postWebhook(h, "/webhooks/shopee", `{"ordersn":"2403129XYZ"}`, "sig")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}
