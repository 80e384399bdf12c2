package ecommerce

// ShopeeStockUpdateRequest is the body of a stock update call.
type ShopeeStockUpdateRequest struct {
	ShopID    string                  `json:"shop_id"`
	StockList []ShopeeStockUpdateItem `json:"stock_list"`
}

// ShopeeStockUpdateItem is one SKU's new absolute stock level.
type ShopeeStockUpdateItem struct {
	ItemSKU string `json:"item_sku"`
	Stock   int64  `json:"stock"`
}

// ShopeeAPIResponse is the common envelope of Shopee API responses.
// Error is empty on success.
type ShopeeAPIResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// IsSuccess reports whether the API call succeeded.
func (r *ShopeeAPIResponse) IsSuccess() bool {
	return r.Error == ""
}

// ShopeeOrderWebhook is the push payload Shopee sends when an order is paid.
type ShopeeOrderWebhook struct {
	OrderSN     string            `json:"ordersn"`
	Buyer       ShopeeBuyer       `json:"buyer"`
	Billing     *ShopeeBilling    `json:"billing"`
	Items       []ShopeeOrderItem `json:"items"`
	ShippingFee string            `json:"shipping_fee"`
}

// ShopeeBuyer is the buyer block of an order webhook.
type ShopeeBuyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	TaxID string `json:"tax_id"`
}

// ShopeeBilling is the optional distinct billing identity of an order.
type ShopeeBilling struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

// ShopeeOrderItem is one ordered line in an order webhook.
type ShopeeOrderItem struct {
	ItemSKU   string `json:"item_sku"`
	ItemName  string `json:"item_name"`
	Quantity  int64  `json:"quantity"`
	ItemPrice string `json:"item_price"`
}
