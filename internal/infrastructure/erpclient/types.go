package erpclient

import (
	"encoding/json"
	"fmt"
)

// rpcRequest is the JSON-RPC 2.0 envelope sent to the ERP.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

// rpcResponse is the JSON-RPC 2.0 envelope returned by the ERP.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    rpcErrorData `json:"data"`
}

type rpcErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *rpcError) String() string {
	if e.Data.Message != "" {
		return e.Data.Message
	}
	return e.Message
}

// Relation is a many2one field as serialized by the ERP: either false or
// an [id, display_name] pair.
type Relation struct {
	ID   int64
	Name string
}

// UnmarshalJSON accepts false, null, a bare ID, or an [id, name] pair.
func (r *Relation) UnmarshalJSON(data []byte) error {
	*r = Relation{}

	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) >= 1 {
			if err := json.Unmarshal(pair[0], &r.ID); err != nil {
				return fmt.Errorf("erpclient: relation id: %w", err)
			}
		}
		if len(pair) >= 2 {
			if err := json.Unmarshal(pair[1], &r.Name); err != nil {
				return fmt.Errorf("erpclient: relation name: %w", err)
			}
		}
		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		return nil
	}

	// false / null mean no relation set
	return nil
}

// partnerRow is a res.partner search result.
type partnerRow struct {
	ID int64 `json:"id"`
}

// productRow is a product.product search result.
type productRow struct {
	ID          int64  `json:"id"`
	DefaultCode string `json:"default_code"`
	Name        string `json:"name"`
}

// quantRow is a stock.quant search result. Quantities come back as floats.
type quantRow struct {
	ID         int64    `json:"id"`
	ProductID  Relation `json:"product_id"`
	LocationID Relation `json:"location_id"`
	Quantity   float64  `json:"quantity"`
}

// orderRow is a sale.order search result.
type orderRow struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	PartnerID      Relation `json:"partner_id"`
	ClientOrderRef string   `json:"client_order_ref"`
	State          string   `json:"state"`
}
