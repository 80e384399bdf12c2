package ecommerce

// LazadaStockUpdateRequest is the body of a price/quantity update call.
type LazadaStockUpdateRequest struct {
	SellerID string                  `json:"seller_id"`
	Products []LazadaStockUpdateItem `json:"products"`
}

// LazadaStockUpdateItem is one SKU's new absolute quantity.
type LazadaStockUpdateItem struct {
	SellerSKU string `json:"seller_sku"`
	Quantity  int64  `json:"quantity"`
}

// LazadaAPIResponse is the common envelope of Lazada API responses.
// Code is "0" on success.
type LazadaAPIResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsSuccess reports whether the API call succeeded.
func (r *LazadaAPIResponse) IsSuccess() bool {
	return r.Code == "0" || r.Code == ""
}

// LazadaOrderWebhook is the push payload Lazada sends when an order is paid.
type LazadaOrderWebhook struct {
	TradeOrderID string            `json:"trade_order_id"`
	Customer     LazadaCustomer    `json:"customer"`
	OrderItems   []LazadaOrderItem `json:"order_items"`
	ShippingFee  string            `json:"shipping_fee"`
}

// LazadaCustomer is the buyer block of an order webhook. Lazada flattens
// the optional billing identity into the same block.
type LazadaCustomer struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	TaxID        string `json:"tax_id"`
	BillingName  string `json:"billing_name"`
	BillingTaxID string `json:"billing_tax_id"`
}

// LazadaOrderItem is one ordered line in an order webhook.
type LazadaOrderItem struct {
	SellerSKU string `json:"seller_sku"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	ItemPrice string `json:"item_price"`
}
