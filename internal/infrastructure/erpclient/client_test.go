package erpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/erp"
)

// fakeERP is an httptest-backed JSON-RPC endpoint. Object calls are
// dispatched to handlers keyed by "model.method".
type fakeERP struct {
	t        *testing.T
	server   *httptest.Server
	uid      int64
	calls    []string
	handlers map[string]func(args []any, kwargs map[string]any) (any, error)
}

func newFakeERP(t *testing.T) *fakeERP {
	f := &fakeERP{
		t:        t,
		uid:      2,
		handlers: map[string]func(args []any, kwargs map[string]any) (any, error){},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeERP) handle(key string, fn func(args []any, kwargs map[string]any) (any, error)) {
	f.handlers[key] = fn
}

func (f *fakeERP) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	writeResult := func(result any) {
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		require.NoError(f.t, json.NewEncoder(w).Encode(resp))
	}
	writeError := func(msg string) {
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]any{
				"code":    200,
				"message": "Server Error",
				"data":    map[string]any{"name": "odoo.exceptions.UserError", "message": msg},
			},
		}
		require.NoError(f.t, json.NewEncoder(w).Encode(resp))
	}

	if req.Params.Service == "common" && req.Params.Method == "authenticate" {
		f.calls = append(f.calls, "authenticate")
		writeResult(f.uid)
		return
	}

	require.Equal(f.t, "object", req.Params.Service)
	require.Equal(f.t, "execute_kw", req.Params.Method)
	require.Len(f.t, req.Params.Args, 7)

	model := req.Params.Args[3].(string)
	method := req.Params.Args[4].(string)
	args := req.Params.Args[5].([]any)
	kwargs, _ := req.Params.Args[6].(map[string]any)

	key := model + "." + method
	f.calls = append(f.calls, key)

	handler, ok := f.handlers[key]
	if !ok {
		writeError(fmt.Sprintf("no handler for %s", key))
		return
	}
	result, err := handler(args, kwargs)
	if err != nil {
		writeError(err.Error())
		return
	}
	writeResult(result)
}

func (f *fakeERP) client(t *testing.T) *Client {
	cfg := NewConfig(f.server.URL, "testdb", "bot@example.com", "secret-key")
	c, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(&Config{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrConfigMissingBaseURL)

	_, err = NewClient(&Config{BaseURL: "http://erp"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrConfigMissingDatabase)
}

func TestResolveProductBySKU(t *testing.T) {
	f := newFakeERP(t)
	f.handle("product.product.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{"id": 41, "default_code": "A1", "name": "Widget"}}, nil
	})

	c := f.client(t)
	product, err := c.ResolveProductBySKU(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(41), product.ID)
	assert.Equal(t, "A1", product.SKU)
	assert.Equal(t, "Widget", product.Name)
}

func TestResolveProductBySKUNotFound(t *testing.T) {
	f := newFakeERP(t)
	f.handle("product.product.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{}, nil
	})

	c := f.client(t)
	_, err := c.ResolveProductBySKU(context.Background(), "NOPE")
	assert.ErrorIs(t, err, erp.ErrProductNotFound)
	assert.Contains(t, err.Error(), "NOPE")
}

func TestResolveStockRecordParsesRelations(t *testing.T) {
	f := newFakeERP(t)
	f.handle("stock.quant.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{
			"id":          700,
			"product_id":  []any{41, "Widget"},
			"location_id": []any{8, "WH/Stock"},
			"quantity":    12.0,
		}}, nil
	})

	c := f.client(t)
	record, err := c.ResolveStockRecord(context.Background(), 41, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(700), record.ID)
	assert.Equal(t, int64(41), record.ProductID)
	assert.Equal(t, int64(8), record.LocationID)
	assert.Equal(t, int64(12), record.Quantity)
}

func TestResolveStockRecordNotFound(t *testing.T) {
	f := newFakeERP(t)
	f.handle("stock.quant.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{}, nil
	})

	c := f.client(t)
	_, err := c.ResolveStockRecord(context.Background(), 41, 8)
	assert.ErrorIs(t, err, erp.ErrStockRecordNotFound)
}

func TestFindOrCreateCustomerFindsExisting(t *testing.T) {
	f := newFakeERP(t)
	f.handle("res.partner.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{"id": 55}}, nil
	})

	c := f.client(t)
	id, err := c.FindOrCreateCustomer(context.Background(), erp.CustomerInput{
		Name:  "Ana",
		Email: "ana@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)
	assert.NotContains(t, f.calls, "res.partner.create")
}

func TestFindOrCreateCustomerCreatesWhenAbsent(t *testing.T) {
	f := newFakeERP(t)
	f.handle("res.partner.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{}, nil
	})
	var created map[string]any
	f.handle("res.partner.create", func(args []any, kwargs map[string]any) (any, error) {
		created = args[0].(map[string]any)
		return 56, nil
	})

	c := f.client(t)
	id, err := c.FindOrCreateCustomer(context.Background(), erp.CustomerInput{
		Name:  "Ana",
		Email: "ana@example.com",
		Phone: "+49123",
		TaxID: "DE999",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(56), id)
	assert.Equal(t, "Ana", created["name"])
	assert.Equal(t, "ana@example.com", created["email"])
	assert.Equal(t, "+49123", created["phone"])
	assert.Equal(t, "DE999", created["vat"])
}

func TestFindOrCreateBillingContactCreatesInvoiceChild(t *testing.T) {
	f := newFakeERP(t)
	f.handle("res.partner.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{}, nil
	})
	var created map[string]any
	f.handle("res.partner.create", func(args []any, kwargs map[string]any) (any, error) {
		created = args[0].(map[string]any)
		return 57, nil
	})

	c := f.client(t)
	id, err := c.FindOrCreateBillingContact(context.Background(), erp.BillingContactInput{
		ParentID: 55,
		Name:     "Ana GmbH",
		TaxID:    "DE111",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(57), id)
	assert.Equal(t, "invoice", created["type"])
	assert.Equal(t, float64(55), created["parent_id"])
	assert.Equal(t, "DE111", created["vat"])
}

func TestWriteThenApplyPendingQuantity(t *testing.T) {
	f := newFakeERP(t)
	var staged float64
	f.handle("stock.quant.write", func(args []any, kwargs map[string]any) (any, error) {
		values := args[1].(map[string]any)
		staged = values["inventory_quantity"].(float64)
		return true, nil
	})
	f.handle("stock.quant.action_apply_inventory", func(args []any, kwargs map[string]any) (any, error) {
		ids := args[0].([]any)
		require.Equal(t, float64(700), ids[0])
		return nil, nil
	})

	c := f.client(t)
	require.NoError(t, c.WritePendingQuantity(context.Background(), 700, 8))
	require.NoError(t, c.ApplyPendingQuantity(context.Background(), 700))
	assert.Equal(t, float64(8), staged)
	assert.Equal(t, []string{"authenticate", "stock.quant.write", "stock.quant.action_apply_inventory"}, f.calls)
}

func TestCreateSalesOrderBuildsLineTuples(t *testing.T) {
	f := newFakeERP(t)
	var created map[string]any
	f.handle("sale.order.create", func(args []any, kwargs map[string]any) (any, error) {
		created = args[0].(map[string]any)
		return 900, nil
	})
	f.handle("sale.order.read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{"id": 900, "name": "S00042"}}, nil
	})

	c := f.client(t)
	salesOrder, err := c.CreateSalesOrder(context.Background(), erp.SalesOrderInput{
		CustomerID:       55,
		BillingContactID: 57,
		ExternalRef:      "SP-1001",
		Lines: []erp.SalesOrderLine{
			{ProductID: 41, Name: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), salesOrder.ID)
	assert.Equal(t, "S00042", salesOrder.Number)
	assert.Equal(t, erp.SalesOrderStatusDraft, salesOrder.Status)

	assert.Equal(t, float64(55), created["partner_id"])
	assert.Equal(t, float64(57), created["partner_invoice_id"])
	assert.Equal(t, "SP-1001", created["client_order_ref"])

	lines := created["order_line"].([]any)
	require.Len(t, lines, 1)
	tuple := lines[0].([]any)
	require.Len(t, tuple, 3)
	lineValues := tuple[2].(map[string]any)
	assert.Equal(t, float64(41), lineValues["product_id"])
	assert.Equal(t, float64(2), lineValues["product_uom_qty"])
	assert.Equal(t, 10.0, lineValues["price_unit"])
}

func TestCreateSalesOrderOmitsBillingContactWhenZero(t *testing.T) {
	f := newFakeERP(t)
	var created map[string]any
	f.handle("sale.order.create", func(args []any, kwargs map[string]any) (any, error) {
		created = args[0].(map[string]any)
		return 901, nil
	})
	f.handle("sale.order.read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{"id": 901, "name": "S00043"}}, nil
	})

	c := f.client(t)
	_, err := c.CreateSalesOrder(context.Background(), erp.SalesOrderInput{
		CustomerID:  55,
		ExternalRef: "SP-1002",
	})
	require.NoError(t, err)
	_, hasInvoice := created["partner_invoice_id"]
	assert.False(t, hasInvoice)
}

func TestFindSalesOrderByRefMapsConfirmedState(t *testing.T) {
	f := newFakeERP(t)
	f.handle("sale.order.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{
			"id":               900,
			"name":             "S00042",
			"partner_id":       []any{55, "Ana"},
			"client_order_ref": "SP-1001",
			"state":            "sale",
		}}, nil
	})

	c := f.client(t)
	salesOrder, err := c.FindSalesOrderByRef(context.Background(), "SP-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(900), salesOrder.ID)
	assert.Equal(t, int64(55), salesOrder.CustomerID)
	assert.Equal(t, erp.SalesOrderStatusConfirmed, salesOrder.Status)
}

func TestFindSalesOrderByRefNotFound(t *testing.T) {
	f := newFakeERP(t)
	f.handle("sale.order.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{}, nil
	})

	c := f.client(t)
	_, err := c.FindSalesOrderByRef(context.Background(), "SP-MISSING")
	assert.ErrorIs(t, err, erp.ErrSalesOrderNotFound)
}

func TestRPCErrorSurfacesMessage(t *testing.T) {
	f := newFakeERP(t)
	f.handle("sale.order.action_confirm", func(args []any, kwargs map[string]any) (any, error) {
		return nil, fmt.Errorf("order already locked")
	})

	c := f.client(t)
	err := c.ConfirmSalesOrder(context.Background(), 900)
	assert.ErrorIs(t, err, erp.ErrRemoteCallFailed)
	assert.Contains(t, err.Error(), "order already locked")
}

func TestAuthenticationRejectedOnZeroUID(t *testing.T) {
	f := newFakeERP(t)
	f.uid = 0

	c := f.client(t)
	_, err := c.ResolveProductBySKU(context.Background(), "A1")
	assert.ErrorIs(t, err, erp.ErrRemoteCallFailed)
	assert.Contains(t, err.Error(), "authentication rejected")
}

func TestAuthenticationCachedAcrossCalls(t *testing.T) {
	f := newFakeERP(t)
	f.handle("product.product.search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []map[string]any{{"id": 41, "default_code": "A1", "name": "Widget"}}, nil
	})

	c := f.client(t)
	_, err := c.ResolveProductBySKU(context.Background(), "A1")
	require.NoError(t, err)
	_, err = c.ResolveProductBySKU(context.Background(), "A1")
	require.NoError(t, err)

	authCalls := 0
	for _, call := range f.calls {
		if call == "authenticate" {
			authCalls++
		}
	}
	assert.Equal(t, 1, authCalls)
}

func TestHTTPErrorWrapsRemoteCallFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := NewClient(NewConfig(server.URL, "testdb", "bot@example.com", "key"), zap.NewNop())
	require.NoError(t, err)

	_, err = c.ResolveProductBySKU(context.Background(), "A1")
	assert.ErrorIs(t, err, erp.ErrRemoteCallFailed)
	assert.Contains(t, err.Error(), "502")
}
